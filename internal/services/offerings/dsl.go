// Package offerings implements C10: the search DSL, gval-backed clause
// evaluation, and the trust-score formula. The parser below is a small
// hand-written string splitter (clauses on " AND ", then each clause on
// its operator) over the field:value / range / comparator grammar; no
// query-DSL library exists anywhere in the
// examples pack, so parsing stays on top of the standard library while
// each parsed clause compiles to a github.com/PaesslerAG/gval expression
// for evaluation (see SPEC_FULL's DOMAIN STACK table).
package offerings

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aethermarket/coordinator/internal/apierr"
	"github.com/aethermarket/coordinator/internal/storage"
)

// fieldAliases maps DSL field names to the storage.Offering attribute they
// filter on; querying anything else fails UnknownField (§4.10).
var fieldAliases = map[string]string{
	"type":    "provisioner_type",
	"country": "datacenter_country",
	"city":    "datacenter_city",
	"price":   "monthly_price_e9s",
	"cpu":     "cpu_cores",
	"memory":  "memory_mb",
	"storage": "storage_gb",
	"gpu":     "gpu_model",
	"stock":   "stock_status",
}

// ParseQuery parses a DSL string into clauses joined by AND (§4.10).
// Supported shapes per token: field:value, field:[lo TO hi],
// field>=value, field<=value, field>value, field<value.
func ParseQuery(query string) ([]storage.SearchClause, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	var clauses []storage.SearchClause
	for _, token := range strings.Split(query, " AND ") {
		clause, err := parseToken(strings.TrimSpace(token))
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	return clauses, nil
}

func parseToken(token string) (storage.SearchClause, error) {
	for _, op := range []struct {
		sep string
		kind storage.SearchClauseOp
	}{
		{">=", storage.OpGTE},
		{"<=", storage.OpLTE},
		{">", storage.OpGT},
		{"<", storage.OpLT},
	} {
		if idx := strings.Index(token, op.sep); idx > 0 {
			field := canonicalField(token[:idx])
			value := strings.TrimSpace(token[idx+len(op.sep):])
			if field == "" {
				return storage.SearchClause{}, unknownField(token[:idx])
			}
			return storage.SearchClause{Field: field, Op: op.kind, Value: value}, nil
		}
	}

	idx := strings.Index(token, ":")
	if idx <= 0 {
		return storage.SearchClause{}, apierr.BadRequest("invalid_clause", fmt.Sprintf("unparseable search clause %q", token))
	}
	rawField := token[:idx]
	field := canonicalField(rawField)
	if field == "" {
		return storage.SearchClause{}, unknownField(rawField)
	}
	rest := strings.TrimSpace(token[idx+1:])

	if strings.HasPrefix(rest, "[") && strings.HasSuffix(rest, "]") {
		inner := strings.TrimSuffix(strings.TrimPrefix(rest, "["), "]")
		parts := strings.SplitN(inner, " TO ", 2)
		if len(parts) != 2 {
			return storage.SearchClause{}, apierr.BadRequest("invalid_range", fmt.Sprintf("malformed range clause %q", token))
		}
		return storage.SearchClause{Field: field, Op: storage.OpRange, Lo: strings.TrimSpace(parts[0]), Hi: strings.TrimSpace(parts[1])}, nil
	}

	return storage.SearchClause{Field: field, Op: storage.OpEquals, Value: rest}, nil
}

func canonicalField(raw string) string {
	return fieldAliases[strings.ToLower(strings.TrimSpace(raw))]
}

func unknownField(raw string) error {
	return apierr.BadRequest("unknown_field", fmt.Sprintf("unknown search field %q", raw))
}

// isNumericField reports whether the clause compares against a number
// rather than a string, for building the correct gval literal.
func isNumericField(field string) bool {
	switch field {
	case "monthly_price_e9s", "cpu_cores", "memory_mb", "storage_gb":
		return true
	}
	return false
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, apierr.BadRequest("invalid_number", fmt.Sprintf("expected a number, got %q", s))
	}
	return v, nil
}
