package offerings

import (
	"context"
	"time"
)

// TrustMetrics are the aggregates the §4.10 formula is computed over,
// fetched via the aggregator this package is handed (sqlx-backed in
// production, grounded on the teacher's database/sql repository style).
type TrustMetrics struct {
	EarlyCancellationRate   float64
	ProvisioningFailureRate float64
	RejectionRate           float64
	AvgResponseTimeHours    float64
	NegativeReputation90d   float64
	GhostRisk               bool
	StuckContractsValueUSD  float64
	HasContactInfo          bool
	RepeatCustomers         int
	CompletionRate          float64
}

// Score implements spec.md's trust-score formula verbatim, clamped to
// [0, 100]. Testable property 12 (monotonicity: removing a penalty
// condition never decreases the score) holds because every term below is
// an independent additive contribution with no cross-term cancellation.
func Score(m TrustMetrics) int {
	score := 100
	if m.EarlyCancellationRate > 0.20 {
		score -= 25
	}
	if m.ProvisioningFailureRate > 0.15 {
		score -= 20
	}
	if m.RejectionRate > 0.30 {
		score -= 15
	}
	if m.AvgResponseTimeHours > 48 {
		score -= 15
	}
	if m.NegativeReputation90d < -50 {
		score -= 15
	}
	if m.GhostRisk {
		score -= 10
	}
	if m.StuckContractsValueUSD > 5000 {
		score -= 10
	}
	if !m.HasContactInfo {
		score -= 10
	}
	if m.RepeatCustomers > 10 {
		score += 5
	}
	if m.CompletionRate > 0.95 {
		score += 5
	}
	if m.AvgResponseTimeHours < 4 {
		score += 5
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// Aggregator computes TrustMetrics for a provider from the underlying
// contract/history tables; the concrete SQL lives in storage/postgres,
// kept behind this interface so Score stays a pure, easily tested function.
type Aggregator interface {
	Aggregate(ctx context.Context, providerPubkey []byte, now time.Time) (TrustMetrics, error)
}

// RefreshTrustScore recomputes and caches a provider's score, along with
// human-readable reasons for any active red flags, in the same
// read-then-write call (§4.10).
func (s *Service) RefreshTrustScore(ctx context.Context, agg Aggregator, providerPubkey []byte) (int, error) {
	metrics, err := agg.Aggregate(ctx, providerPubkey, time.Now())
	if err != nil {
		return 0, err
	}
	score := Score(metrics)
	reasons := flagReasons(metrics)

	if err := s.providers.SetTrustScore(ctx, providerPubkey, score, reasons); err != nil {
		return 0, err
	}
	return score, nil
}

func flagReasons(m TrustMetrics) []string {
	var reasons []string
	if m.EarlyCancellationRate > 0.20 {
		reasons = append(reasons, "early cancellation rate above 20%")
	}
	if m.ProvisioningFailureRate > 0.15 {
		reasons = append(reasons, "provisioning failure rate above 15%")
	}
	if m.RejectionRate > 0.30 {
		reasons = append(reasons, "rejection rate above 30%")
	}
	if m.AvgResponseTimeHours > 48 {
		reasons = append(reasons, "average response time above 48 hours")
	}
	if m.NegativeReputation90d < -50 {
		reasons = append(reasons, "negative reputation trend over the last 90 days")
	}
	if m.GhostRisk {
		reasons = append(reasons, "ghost risk: contracts stuck in accepted/provisioning for over 48 hours")
	}
	if m.StuckContractsValueUSD > 5000 {
		reasons = append(reasons, "stuck contract value above $5000")
	}
	if !m.HasContactInfo {
		reasons = append(reasons, "no contact information on file")
	}
	return reasons
}
