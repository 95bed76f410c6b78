package offerings

import (
	"fmt"

	"github.com/PaesslerAG/gval"

	"github.com/aethermarket/coordinator/internal/apierr"
	"github.com/aethermarket/coordinator/internal/storage"
)

// matches reports whether an offering satisfies every clause of a parsed
// query, each clause compiled to and evaluated as a gval expression
// against the offering's field map.
func matches(o storage.Offering, clauses []storage.SearchClause) (bool, error) {
	if len(clauses) == 0 {
		return true, nil
	}
	params := fieldMap(o)

	for _, c := range clauses {
		expr, err := clauseExpr(c)
		if err != nil {
			return false, err
		}
		value, err := gval.Evaluate(expr, params)
		if err != nil {
			return false, apierr.Wrap(err, "evaluate search clause")
		}
		ok, _ := value.(bool)
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func clauseExpr(c storage.SearchClause) (string, error) {
	switch c.Op {
	case storage.OpEquals:
		if isNumericField(c.Field) {
			n, err := parseNumber(c.Value)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s == %v", c.Field, n), nil
		}
		return fmt.Sprintf("%s == %q", c.Field, c.Value), nil
	case storage.OpRange:
		lo, err := parseNumber(c.Lo)
		if err != nil {
			return "", err
		}
		hi, err := parseNumber(c.Hi)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s >= %v && %s <= %v", c.Field, lo, c.Field, hi), nil
	case storage.OpGTE, storage.OpLTE, storage.OpGT, storage.OpLT:
		n, err := parseNumber(c.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %v", c.Field, opSymbol(c.Op), n), nil
	default:
		return "", apierr.BadRequest("invalid_operator", fmt.Sprintf("unsupported search operator %q", c.Op))
	}
}

func opSymbol(op storage.SearchClauseOp) string {
	switch op {
	case storage.OpGTE:
		return ">="
	case storage.OpLTE:
		return "<="
	case storage.OpGT:
		return ">"
	case storage.OpLT:
		return "<"
	}
	return "=="
}

func fieldMap(o storage.Offering) map[string]interface{} {
	return map[string]interface{}{
		"provisioner_type":    o.ProvisionerType,
		"datacenter_country":  o.DatacenterCountry,
		"datacenter_city":     o.DatacenterCity,
		"monthly_price_e9s":   float64(o.MonthlyPriceE9s),
		"cpu_cores":           float64(o.CPUCores),
		"memory_mb":           float64(o.MemoryMB),
		"storage_gb":          float64(o.StorageGB),
		"gpu_model":           o.GPUModel,
		"stock_status":        o.StockStatus,
	}
}
