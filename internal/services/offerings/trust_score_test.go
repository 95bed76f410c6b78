package offerings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScorePerfectMetricsCapsAt100(t *testing.T) {
	m := TrustMetrics{HasContactInfo: true, RepeatCustomers: 20, CompletionRate: 0.99, AvgResponseTimeHours: 1}
	assert.Equal(t, 100, Score(m))
}

func TestScoreRemovingPenaltyNeverDecreasesScore(t *testing.T) {
	base := TrustMetrics{
		EarlyCancellationRate:   0.5,
		ProvisioningFailureRate: 0.5,
		RejectionRate:           0.5,
		AvgResponseTimeHours:    60,
		NegativeReputation90d:   -80,
		GhostRisk:               true,
		StuckContractsValueUSD:  10000,
		HasContactInfo:          false,
	}
	baseScore := Score(base)

	cleared := base
	cleared.EarlyCancellationRate = 0
	assert.GreaterOrEqual(t, Score(cleared), baseScore)

	cleared = base
	cleared.GhostRisk = false
	assert.GreaterOrEqual(t, Score(cleared), baseScore)

	cleared = base
	cleared.HasContactInfo = true
	assert.GreaterOrEqual(t, Score(cleared), baseScore)
}

func TestScoreClampsToZero(t *testing.T) {
	m := TrustMetrics{
		EarlyCancellationRate:   0.9,
		ProvisioningFailureRate: 0.9,
		RejectionRate:           0.9,
		AvgResponseTimeHours:    1000,
		NegativeReputation90d:   -100,
		GhostRisk:               true,
		StuckContractsValueUSD:  1000000,
		HasContactInfo:          false,
	}
	assert.Equal(t, 0, Score(m))
}
