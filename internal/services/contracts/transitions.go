package contracts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aethermarket/coordinator/internal/apierr"
	"github.com/aethermarket/coordinator/internal/money"
	"github.com/aethermarket/coordinator/internal/storage"
)

// Accept is the provider's "pending -> accepted" edge.
func (s *Service) Accept(ctx context.Context, contractID []byte, providerPubkey []byte) (storage.Contract, error) {
	return s.acceptInternal(ctx, contractID, providerPubkey)
}

func (s *Service) acceptInternal(ctx context.Context, contractID []byte, changedBy []byte) (storage.Contract, error) {
	return s.contracts.TransitionTx(ctx, contractID, storage.StatusPending, storage.StatusAccepted, changedBy, "provider accepted", s.nowNs(), noop)
}

// Reject is the provider's (or timeout's) "pending -> rejected" edge; it
// refunds the full captured amount since no provisioning work has started.
func (s *Service) Reject(ctx context.Context, contractID []byte, changedBy []byte, reason string) (storage.Contract, error) {
	contract, err := s.contracts.GetContract(ctx, contractID)
	if err != nil {
		return storage.Contract{}, apierr.NotFound("contract_not_found", "contract does not exist")
	}
	if err := s.refund(ctx, contract, contract.PaymentAmountE9s); err != nil {
		s.log.WithError(err).Warn("refund on reject failed")
	}
	return s.contracts.TransitionTx(ctx, contractID, storage.StatusPending, storage.StatusRejected, changedBy, reason, s.nowNs(), noop)
}

// ReportProvisioningStarted is the agent's "accepted -> provisioning" edge,
// gated by holding the provisioning lock (§4.6); lock acquisition happens
// in the caller (services/locks) before this is invoked.
func (s *Service) ReportProvisioningStarted(ctx context.Context, contractID []byte, agentPubkey []byte, poolID string) (storage.Contract, error) {
	return s.contracts.TransitionTx(ctx, contractID, storage.StatusAccepted, storage.StatusProvisioning, agentPubkey, "agent started provisioning", s.nowNs(), func(_ *sql.Tx, c *storage.Contract) error {
		c.AgentPoolID = poolID
		return nil
	})
}

// ReportProvisioned is the agent's "provisioning -> provisioned" edge; it
// carries the external instance identity back so the requester can connect.
func (s *Service) ReportProvisioned(ctx context.Context, contractID []byte, agentPubkey []byte, externalInstanceID, instanceDetails string) (storage.Contract, error) {
	contract, err := s.contracts.TransitionTx(ctx, contractID, storage.StatusProvisioning, storage.StatusProvisioned, agentPubkey, "agent reported provisioned", s.nowNs(), func(_ *sql.Tx, c *storage.Contract) error {
		c.ExternalInstanceID = externalInstanceID
		c.InstanceDetails = instanceDetails
		c.ProvisioningCompletedAtNs = ptr(s.nowNs())
		return nil
	})
	if err != nil {
		return storage.Contract{}, err
	}

	profile, perr := s.providers.GetProfile(ctx, contract.ProviderPubkey)
	if perr == nil && profile.AutoAcceptRentals {
		activated, aerr := s.Activate(ctx, contractID, nil)
		if aerr == nil {
			return activated, nil
		}
		s.log.WithError(aerr).Warn("auto-activate failed after provisioning")
	}
	return contract, nil
}

// Activate is the provider-confirmed (or auto_accept_rentals-driven)
// "provisioned -> active" edge; it stamps the rental window.
func (s *Service) Activate(ctx context.Context, contractID []byte, changedBy []byte) (storage.Contract, error) {
	start := s.nowNs()
	return s.contracts.TransitionTx(ctx, contractID, storage.StatusProvisioned, storage.StatusActive, changedBy, "rental activated", start, func(_ *sql.Tx, c *storage.Contract) error {
		c.StartTimestampNs = ptr(start)
		c.EndTimestampNs = ptr(money.EndTimestampNs(start, c.DurationHours))
		return nil
	})
}

// SweepExpired completes every active contract whose end_timestamp_ns has
// passed; it is driven by the cron sweeper, not a single signed request.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.nowNs()
	expired, err := s.contracts.ListExpiredActive(ctx, now)
	if err != nil {
		return 0, err
	}
	completed := 0
	for _, c := range expired {
		if _, err := s.contracts.TransitionTx(ctx, c.ContractID, storage.StatusActive, storage.StatusCompleted, nil, "duration elapsed", now, noop); err != nil {
			s.log.WithError(err).WithField("contract_id", fmt.Sprintf("%x", c.ContractID)).Warn("sweep: complete failed")
			continue
		}
		completed++
	}
	return completed, nil
}

// Cancel is the requester/provider-initiated early-exit edge, valid from
// accepted, provisioning, and active (§4.5). It refunds a config-driven
// fraction of the remaining, unconsumed amount (§9 Open Question: defaults
// to 0, i.e. no refund, until an operator configures otherwise).
func (s *Service) Cancel(ctx context.Context, contractID []byte, changedBy []byte, reason string) (storage.Contract, error) {
	contract, err := s.contracts.GetContract(ctx, contractID)
	if err != nil {
		return storage.Contract{}, apierr.NotFound("contract_not_found", "contract does not exist")
	}
	if !canTransition(contract.Status, storage.StatusCancelled) {
		return storage.Contract{}, apierr.Conflict("invalid_transition", fmt.Sprintf("cannot cancel a contract in status %q", contract.Status))
	}

	refundAmount := s.cancellationRefund(contract)
	if refundAmount > 0 {
		if err := s.refund(ctx, contract, refundAmount); err != nil {
			s.log.WithError(err).Warn("refund on cancel failed")
		}
	}

	return s.contracts.TransitionTx(ctx, contractID, contract.Status, storage.StatusCancelled, changedBy, reason, s.nowNs(), noop)
}

// cancellationRefund computes the refundable portion of a cancelled
// contract: cancellationRefundFraction of the unconsumed amount, which is
// the full payment if activation never happened and the prorated
// remainder otherwise.
func (s *Service) cancellationRefund(c storage.Contract) int64 {
	var unconsumedE9s int64
	switch {
	case c.StartTimestampNs == nil || c.EndTimestampNs == nil:
		// never activated: nothing has been consumed yet.
		unconsumedE9s = c.PaymentAmountE9s
	default:
		now := s.nowNs()
		total := *c.EndTimestampNs - *c.StartTimestampNs
		if total <= 0 || now >= *c.EndTimestampNs {
			return 0
		}
		remaining := *c.EndTimestampNs - now
		unconsumedE9s = money.Proportion(c.PaymentAmountE9s, remaining, total)
	}
	return money.Fraction(unconsumedE9s, s.cancellationRefundFraction)
}

// Terminate is the agent's "cancelled -> terminated" edge, confirming the
// underlying resource has been torn down.
func (s *Service) Terminate(ctx context.Context, contractID []byte, agentPubkey []byte) (storage.Contract, error) {
	return s.contracts.TransitionTx(ctx, contractID, storage.StatusCancelled, storage.StatusTerminated, agentPubkey, "agent confirmed teardown", s.nowNs(), noop)
}

// Extend appends a billed extension to an active contract, charging the
// additional hours at the offering's current hourly rate.
func (s *Service) Extend(ctx context.Context, contractID []byte, extensionHours int64) (storage.Contract, error) {
	contract, err := s.contracts.GetContract(ctx, contractID)
	if err != nil {
		return storage.Contract{}, apierr.NotFound("contract_not_found", "contract does not exist")
	}
	if contract.Status != storage.StatusActive {
		return storage.Contract{}, apierr.Conflict("invalid_transition", "only an active contract can be extended")
	}

	offering, err := s.offerings.GetOffering(ctx, contract.ProviderPubkey, contract.OfferingID)
	if err != nil {
		return storage.Contract{}, apierr.Wrap(err, "lookup offering for extension pricing")
	}
	extensionPayment := money.ForDuration(offering.MonthlyPriceE9s, extensionHours)

	gw, err := s.gateway(contract.PaymentMethod)
	if err != nil {
		return storage.Contract{}, err
	}
	result, err := gw.Capture(ctx, string(contract.RequesterPubkey), extensionPayment)
	if err != nil || result.Status != "succeeded" {
		return storage.Contract{}, apierr.External("extension_payment_failed", "failed to capture extension payment", err)
	}

	return s.contracts.AppendExtensionTx(ctx, contractID, extensionHours, extensionPayment)
}

func (s *Service) refund(ctx context.Context, contract storage.Contract, amountE9s int64) error {
	gw, err := s.gateway(contract.PaymentMethod)
	if err != nil {
		return err
	}
	intentID := string(contract.ContractID)
	switch contract.PaymentMethod {
	case storage.PaymentMethodStripe:
		intentID = contract.StripePaymentIntentID
	case storage.PaymentMethodICPay:
		intentID = contract.ICPayIntentID
	}
	_, err = gw.Refund(ctx, intentID, amountE9s)
	return err
}

func ptr(v int64) *int64 { return &v }
