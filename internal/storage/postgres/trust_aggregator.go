package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aethermarket/coordinator/internal/services/offerings"
)

// TrustAggregator computes offerings.TrustMetrics straight from the
// contracts/provider tables via sqlx, kept as a read-only sibling of the
// sql.DB-backed stores rather than folded into ContractStore: it never
// mutates state and its queries are shaped around reporting, not the
// state-machine transitions ContractStore guards.
type TrustAggregator struct {
	db *sqlx.DB
}

func NewTrustAggregator(db *sqlx.DB) *TrustAggregator {
	return &TrustAggregator{db: db}
}

const trustWindow = 90 * 24 * time.Hour

// Reputation penalty weights. The original tracks negative reputation via
// an externally-fed ledger of discrete point deltas with no producer in
// this system; lacking that feed, these weights derive the same signal
// from contract outcomes this aggregator already has on hand, scaled so a
// provider with a handful of rejections/cancellations/provisioning
// failures in the window crosses the formula's -50 threshold the same way
// a few bad reputation events would.
const (
	rejectionReputationWeight          = 10
	earlyCancellationReputationWeight  = 15
	provisioningFailureReputationWeight = 20
)

func (a *TrustAggregator) Aggregate(ctx context.Context, providerPubkey []byte, now time.Time) (offerings.TrustMetrics, error) {
	var m offerings.TrustMetrics

	sinceNs := now.Add(-trustWindow).UnixNano()

	var totals struct {
		Total      int64 `db:"total"`
		Completed  int64 `db:"completed"`
		Cancelled  int64 `db:"cancelled"`
		Rejected   int64 `db:"rejected"`
		Accepted   int64 `db:"accepted"`
		EarlyCancs int64 `db:"early_cancellations"`
	}
	if err := a.db.GetContext(ctx, &totals, `
		SELECT
			count(*) FILTER (WHERE status_updated_at_ns >= $2)                                     AS total,
			count(*) FILTER (WHERE status = 'completed' AND status_updated_at_ns >= $2)             AS completed,
			count(*) FILTER (WHERE status = 'cancelled' AND status_updated_at_ns >= $2)              AS cancelled,
			count(*) FILTER (WHERE status = 'rejected' AND status_updated_at_ns >= $2)                AS rejected,
			count(*) FILTER (WHERE status NOT IN ('requested','pending','rejected') AND status_updated_at_ns >= $2) AS accepted,
			count(*) FILTER (WHERE status = 'cancelled' AND start_timestamp_ns IS NULL AND status_updated_at_ns >= $2) AS early_cancellations
		FROM contracts WHERE provider_pubkey = $1
	`, providerPubkey, sinceNs); err != nil {
		return m, err
	}

	var provisioningFailures int64
	if err := a.db.GetContext(ctx, &provisioningFailures, `
		SELECT count(*) FROM contract_status_history h
		JOIN contracts c ON c.contract_id = h.contract_id
		WHERE c.provider_pubkey = $1 AND h.new_status = 'cancelled' AND h.memo ILIKE '%provisioning%failed%'
		AND h.changed_at_ns >= $2
	`, providerPubkey, sinceNs); err != nil {
		return m, err
	}

	var avgResponseHours float64
	if err := a.db.GetContext(ctx, &avgResponseHours, `
		SELECT COALESCE(avg(extract(epoch FROM (
			to_timestamp(h.changed_at_ns / 1e9) - to_timestamp(r.changed_at_ns / 1e9)
		)) / 3600.0), 0)
		FROM contract_status_history h
		JOIN contract_status_history r ON r.contract_id = h.contract_id AND r.new_status IN ('requested','pending')
		JOIN contracts c ON c.contract_id = h.contract_id
		WHERE c.provider_pubkey = $1 AND h.new_status IN ('accepted','rejected') AND h.changed_at_ns >= $2
	`, providerPubkey, sinceNs); err != nil {
		return m, err
	}

	var stuckValueE9s int64
	stuckBeforeNs := now.Add(-48 * time.Hour).UnixNano()
	if err := a.db.GetContext(ctx, &stuckValueE9s, `
		SELECT COALESCE(sum(payment_amount_e9s), 0) FROM contracts
		WHERE provider_pubkey = $1 AND status IN ('accepted','provisioning') AND status_updated_at_ns < $2
	`, providerPubkey, stuckBeforeNs); err != nil {
		return m, err
	}

	var repeatCustomers int64
	if err := a.db.GetContext(ctx, &repeatCustomers, `
		SELECT count(*) FROM (
			SELECT requester_pubkey FROM contracts WHERE provider_pubkey = $1 AND status_updated_at_ns >= $2
			GROUP BY requester_pubkey HAVING count(*) > 1
		) repeats
	`, providerPubkey, sinceNs); err != nil {
		return m, err
	}

	var hasContact bool
	if err := a.db.GetContext(ctx, &hasContact, `
		SELECT contact IS NOT NULL AND contact::text <> '{}' FROM provider_profiles WHERE account_id = $1
	`, providerPubkey); err != nil {
		hasContact = false
	}

	m.HasContactInfo = hasContact
	m.StuckContractsValueUSD = e9sToUSD(stuckValueE9s)
	m.RepeatCustomers = int(repeatCustomers)
	m.AvgResponseTimeHours = avgResponseHours
	m.GhostRisk = stuckValueE9s > 0
	m.NegativeReputation90d = -(float64(totals.Rejected)*rejectionReputationWeight +
		float64(totals.EarlyCancs)*earlyCancellationReputationWeight +
		float64(provisioningFailures)*provisioningFailureReputationWeight)

	if totals.Total > 0 {
		m.CompletionRate = float64(totals.Completed) / float64(totals.Total)
		m.EarlyCancellationRate = float64(totals.EarlyCancs) / float64(totals.Total)
		m.ProvisioningFailureRate = float64(provisioningFailures) / float64(totals.Total)
	}
	if totals.Accepted+totals.Rejected > 0 {
		m.RejectionRate = float64(totals.Rejected) / float64(totals.Accepted+totals.Rejected)
	}

	return m, nil
}

// e9sToUSD is a placeholder conversion for dashboards until a real
// exchange-rate feed is wired; contracts are currently priced in e9s of the
// provider's chosen currency, assumed 1:1 with USD.
func e9sToUSD(e9s int64) float64 {
	return float64(e9s) / 1e9
}
