// Package contracts implements C5, the rental contract state machine:
// creation, payment capture, provider accept/reject, provisioning,
// activation, expiry, cancellation with partial refund, extension, and
// termination. It is structured the way the teacher's
// internal/app/services/gasbank.Service wraps a store and a set of
// collaborator gateways behind one entry point per externally-triggered
// event.
package contracts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aethermarket/coordinator/internal/apierr"
	"github.com/aethermarket/coordinator/internal/logging"
	"github.com/aethermarket/coordinator/internal/money"
	"github.com/aethermarket/coordinator/internal/services/payment"
	"github.com/aethermarket/coordinator/internal/storage"
)

// Clock is overridable in tests; production wiring passes time.Now and a
// nanosecond conversion.
type Clock func() time.Time

type Service struct {
	contracts storage.ContractStore
	offerings storage.OfferingStore
	providers storage.ProviderStore
	emails    storage.EmailStore
	gateways  map[string]payment.Gateway

	cancellationRefundFraction float64
	now                        Clock
	log                        *logging.Logger
}

func NewService(
	contracts storage.ContractStore,
	offerings storage.OfferingStore,
	providers storage.ProviderStore,
	emails storage.EmailStore,
	gateways map[string]payment.Gateway,
	cancellationRefundFraction float64,
	log *logging.Logger,
) *Service {
	return &Service{
		contracts:                  contracts,
		offerings:                  offerings,
		providers:                  providers,
		emails:                     emails,
		gateways:                   gateways,
		cancellationRefundFraction: cancellationRefundFraction,
		now:                        time.Now,
		log:                        log,
	}
}

func (s *Service) nowNs() int64 { return s.now().UnixNano() }

func (s *Service) gateway(method string) (payment.Gateway, error) {
	g, ok := s.gateways[method]
	if !ok {
		return nil, apierr.BadRequest("unknown_payment_method", fmt.Sprintf("no gateway registered for payment method %q", method))
	}
	return g, nil
}

// CreateRentalRequest is the "— -> requested" edge (§4.5): it derives the
// contract ID from the signed request, inserts it idempotently, then
// attempts payment capture. A repeat submission of the identical request
// returns the existing row rather than double-charging (Testable property 3).
func (s *Service) CreateRentalRequest(ctx context.Context, req SignRequest) (storage.Contract, error) {
	offering, err := s.offerings.GetOffering(ctx, req.ProviderPubkey, req.OfferingID)
	if err != nil {
		return storage.Contract{}, apierr.NotFound("offering_not_found", "offering does not exist")
	}
	if offering.Visibility != "public" {
		return storage.Contract{}, apierr.Forbidden("offering_not_public", "offering is not open for rental requests")
	}
	if offering.StockStatus != "in_stock" {
		return storage.Contract{}, apierr.Conflict("offering_out_of_stock", "offering has no available stock")
	}

	expected := money.ForDuration(offering.MonthlyPriceE9s, req.DurationHours)
	if req.PaymentAmountE9s != expected {
		return storage.Contract{}, apierr.BadRequest("amount_mismatch", "payment_amount_e9s does not match offering price for the requested duration")
	}

	contract, created, err := s.contracts.CreateContractTx(ctx, req.toContract())
	if err != nil {
		return storage.Contract{}, apierr.Wrap(err, "create contract")
	}
	if !created {
		return contract, nil
	}

	if err := s.capturePayment(ctx, &contract); err != nil {
		s.log.WithError(err).WithField("contract_id", fmt.Sprintf("%x", contract.ContractID)).Warn("payment capture failed")
	}
	return contract, nil
}

// capturePayment attempts the requested-to-pending/rejected transition
// based on gateway response; capture failure is not itself a caller error,
// it resolves the contract to "rejected" (§4.5 edge) and returns the
// underlying cause for logging.
func (s *Service) capturePayment(ctx context.Context, contract *storage.Contract) error {
	gw, err := s.gateway(contract.PaymentMethod)
	if err != nil {
		updated, rerr := s.contracts.TransitionTx(ctx, contract.ContractID, storage.StatusRequested, storage.StatusRejected, nil, "no gateway for payment method", s.nowNs(), noop)
		if rerr != nil {
			return rerr
		}
		*contract = updated
		return err
	}

	result, err := gw.Capture(ctx, string(contract.RequesterPubkey), contract.PaymentAmountE9s)
	if err != nil || result.Status != "succeeded" {
		updated, rerr := s.contracts.TransitionTx(ctx, contract.ContractID, storage.StatusRequested, storage.StatusRejected, nil, "payment capture failed", s.nowNs(), func(_ *sql.Tx, c *storage.Contract) error {
			c.PaymentStatus = "failed"
			return nil
		})
		if rerr == nil {
			*contract = updated
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("payment capture returned status %q", result.Status)
	}

	updated, err := s.contracts.TransitionTx(ctx, contract.ContractID, storage.StatusRequested, storage.StatusPending, nil, "payment capture succeeded", s.nowNs(), func(_ *sql.Tx, c *storage.Contract) error {
		c.PaymentStatus = "captured"
		switch contract.PaymentMethod {
		case storage.PaymentMethodStripe:
			c.StripePaymentIntentID = result.ID
		case storage.PaymentMethodICPay:
			c.ICPayIntentID = result.ID
		}
		return nil
	})
	if err != nil {
		return err
	}
	*contract = updated

	profile, err := s.providers.GetProfile(ctx, contract.ProviderPubkey)
	if err == nil && profile.AutoAcceptRentals {
		_, aerr := s.acceptInternal(ctx, contract.ContractID, nil)
		if aerr != nil {
			s.log.WithError(aerr).Warn("auto-accept failed after capture")
		}
	}
	return nil
}

func noop(_ *sql.Tx, _ *storage.Contract) error { return nil }
