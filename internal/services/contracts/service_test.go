package contracts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethermarket/coordinator/internal/logging"
	"github.com/aethermarket/coordinator/internal/money"
	"github.com/aethermarket/coordinator/internal/services/payment"
	"github.com/aethermarket/coordinator/internal/storage"
)

func newTestService(t *testing.T, gw *fakeGateway, captureStatus string) (*Service, *fakeContractStore) {
	t.Helper()
	gw.captureStatus = captureStatus

	offerings := &fakeOfferingStore{offering: storage.Offering{
		ProviderPubkey:  []byte("provider-pubkey-bytes"),
		OfferingID:      "offering-1",
		MonthlyPriceE9s: 730_000_000_000, // 1e9 per hour at 730h/month
		Visibility:      "public",
		StockStatus:     "in_stock",
	}}
	providers := &fakeProviderStore{profile: storage.ProviderProfile{AutoAcceptRentals: false}}
	contractsStore := newFakeContractStore()

	svc := NewService(contractsStore, offerings, providers, fakeEmailStore{}, map[string]payment.Gateway{
		storage.PaymentMethodToken: gw,
	}, 0, logging.NewDefault("contracts-test"))
	return svc, contractsStore
}

func TestCreateRentalRequestCapturesAndIsIdempotent(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(t, gw, "succeeded")

	req := sampleRequest()
	first, err := svc.CreateRentalRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusPending, first.Status)
	assert.Equal(t, "captured", first.PaymentStatus)

	second, err := svc.CreateRentalRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ContractID, second.ContractID)
	assert.Equal(t, first.Status, second.Status)
}

func TestCreateRentalRequestCapturesAgainstRequesterPubkeyNotContractID(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(t, gw, "succeeded")

	req := sampleRequest()
	contract, err := svc.CreateRentalRequest(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, gw.capturedPrincipals, 1)
	assert.Equal(t, string(req.RequesterPubkey), gw.capturedPrincipals[0],
		"the token gateway checks balance by requester pubkey, not by the derived contract ID")
	assert.NotEqual(t, string(contract.ContractID), gw.capturedPrincipals[0])
}

func TestCreateRentalRequestRejectsOnCaptureFailure(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(t, gw, "failed")

	contract, err := svc.CreateRentalRequest(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, storage.StatusRejected, contract.Status)
}

func TestRejectRefundsFullAmount(t *testing.T) {
	gw := &fakeGateway{}
	svc, store := newTestService(t, gw, "succeeded")

	contract, err := svc.CreateRentalRequest(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.Equal(t, storage.StatusPending, contract.Status)

	rejected, err := svc.Reject(context.Background(), contract.ContractID, nil, "provider declined")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusRejected, rejected.Status)
	require.Len(t, gw.refunds, 1)
	assert.Equal(t, contract.PaymentAmountE9s, gw.refunds[0])

	stored := store.rows[string(contract.ContractID)]
	assert.Equal(t, storage.StatusRejected, stored.Status)
}

func TestCancelProratesRemainderThroughIntegerArithmetic(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(t, gw, "succeeded")
	svc.cancellationRefundFraction = 0.5

	contract, err := svc.CreateRentalRequest(context.Background(), sampleRequest())
	require.NoError(t, err)
	_, err = svc.Accept(context.Background(), contract.ContractID, []byte("provider-pubkey-bytes"))
	require.NoError(t, err)

	start := time.Unix(0, 0)
	svc.now = func() time.Time { return start }
	_, err = svc.ReportProvisioningStarted(context.Background(), contract.ContractID, []byte("agent-1"), "pool-1")
	require.NoError(t, err)
	_, err = svc.ReportProvisioned(context.Background(), contract.ContractID, []byte("agent-1"), "instance-1", "{}")
	require.NoError(t, err)
	active, err := svc.Activate(context.Background(), contract.ContractID, nil)
	require.NoError(t, err)
	require.NotNil(t, active.EndTimestampNs)

	// Halfway through the rental window: expect exactly half the
	// unconsumed remainder (itself half the payment) refunded, i.e. a
	// quarter of the total payment, computed without any float64 drift.
	total := *active.EndTimestampNs - *active.StartTimestampNs
	midpoint := *active.StartTimestampNs + total/2
	svc.now = func() time.Time { return time.Unix(0, midpoint) }

	_, err = svc.Cancel(context.Background(), contract.ContractID, nil, "requester cancelled")
	require.NoError(t, err)

	require.Len(t, gw.refunds, 1)
	wantUnconsumed := money.Proportion(contract.PaymentAmountE9s, total/2, total)
	wantRefund := money.Fraction(wantUnconsumed, 0.5)
	assert.Equal(t, wantRefund, gw.refunds[0])
}

func TestCancelWithZeroRefundFractionRefundsNothing(t *testing.T) {
	gw := &fakeGateway{}
	svc, store := newTestService(t, gw, "succeeded")

	contract, err := svc.CreateRentalRequest(context.Background(), sampleRequest())
	require.NoError(t, err)
	accepted, err := svc.Accept(context.Background(), contract.ContractID, []byte("provider-pubkey-bytes"))
	require.NoError(t, err)
	assert.Equal(t, storage.StatusAccepted, accepted.Status)

	cancelled, err := svc.Cancel(context.Background(), contract.ContractID, nil, "requester cancelled")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCancelled, cancelled.Status)
	assert.Empty(t, gw.refunds, "cancellationRefundFraction=0 should refund nothing")

	_ = store
}
