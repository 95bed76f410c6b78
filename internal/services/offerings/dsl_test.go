package offerings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethermarket/coordinator/internal/storage"
)

func TestParseQuerySimpleAndRange(t *testing.T) {
	clauses, err := ParseQuery("type:compute AND country:US AND price:[0 TO 100]")
	require.NoError(t, err)
	require.Len(t, clauses, 3)

	assert.Equal(t, storage.SearchClause{Field: "provisioner_type", Op: storage.OpEquals, Value: "compute"}, clauses[0])
	assert.Equal(t, storage.SearchClause{Field: "datacenter_country", Op: storage.OpEquals, Value: "US"}, clauses[1])
	assert.Equal(t, storage.SearchClause{Field: "monthly_price_e9s", Op: storage.OpRange, Lo: "0", Hi: "100"}, clauses[2])
}

func TestParseQueryUnknownFieldFails(t *testing.T) {
	_, err := ParseQuery("bogus:value")
	assert.Error(t, err)
}

func TestParseQueryComparators(t *testing.T) {
	clauses, err := ParseQuery("cpu>=4")
	require.NoError(t, err)
	require.Len(t, clauses, 1)
	assert.Equal(t, storage.OpGTE, clauses[0].Op)
	assert.Equal(t, "cpu_cores", clauses[0].Field)
	assert.Equal(t, "4", clauses[0].Value)
}

func TestMatchesAppliesAllClauses(t *testing.T) {
	offering := storage.Offering{
		ProvisionerType:   "compute",
		DatacenterCountry: "US",
		MonthlyPriceE9s:   50,
		CPUCores:          8,
	}
	clauses, err := ParseQuery("type:compute AND country:US AND price:[0 TO 100] AND cpu>=4")
	require.NoError(t, err)

	ok, err := matches(offering, clauses)
	require.NoError(t, err)
	assert.True(t, ok)

	offering.DatacenterCountry = "DE"
	ok, err = matches(offering, clauses)
	require.NoError(t, err)
	assert.False(t, ok)
}
