// Package underwriting implements the deterministic loan decision
// pipeline: normalize, derive metrics, apply the policy table, score,
// resolve the verdict, and render the memo.
package underwriting

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// toNumber coerces a loosely-typed value to a float64. A native number
// or a numeric string is accepted; anything else (including NaN and
// non-numeric strings) yields false. Absence is "unknown", not zero.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(n, ",", ""))
		s = strings.TrimPrefix(s, "$")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// toCount coerces a value to a non-negative integer count, defaulting to 0.
func toCount(v any) int {
	f, ok := toNumber(v)
	if !ok || f < 0 {
		return 0
	}
	return int(f)
}

// toText coerces a value to a trimmed string, defaulting to empty.
func toText(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// toFlag interprets a loosely-typed yes/no field. A bool is taken as-is;
// a string matches "yes" case-insensitively.
func toFlag(v any) bool {
	switch f := v.(type) {
	case bool:
		return f
	case string:
		return strings.EqualFold(strings.TrimSpace(f), "yes")
	default:
		return false
	}
}

// group returns a nested object field, or an empty map when the field is
// absent or not an object.
func group(c domain.Case, key string) map[string]any {
	m, ok := c[key].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}

// num returns the first key in m that coerces to a number.
func num(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := toNumber(m[k]); ok {
			return v, true
		}
	}
	return 0, false
}

// numOr is num with an explicit policy default.
func numOr(m map[string]any, def float64, keys ...string) float64 {
	if v, ok := num(m, keys...); ok {
		return v
	}
	return def
}

// sumDebts aggregates monthly debt obligations. An explicit aggregate
// total field is authoritative when present; otherwise every numeric
// line item except aggregate fields is summed. Keys are visited in
// sorted order so the aggregation is deterministic.
func sumDebts(debts map[string]any) float64 {
	keys := make([]string, 0, len(debts))
	for k := range debts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if strings.HasPrefix(strings.ToLower(k), "total_") {
			if v, ok := toNumber(debts[k]); ok {
				return v
			}
		}
	}

	var total float64
	for _, k := range keys {
		if strings.HasPrefix(strings.ToLower(k), "total_") {
			continue
		}
		if v, ok := toNumber(debts[k]); ok {
			total += v
		}
	}
	return total
}

// normalizeDeposits extracts itemized deposits, skipping entries that
// are not objects or carry no parseable amount.
func normalizeDeposits(v any) []domain.Deposit {
	items, ok := v.([]any)
	if !ok {
		return nil
	}

	var deposits []domain.Deposit
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		amount, ok := toNumber(entry["amount"])
		if !ok {
			continue
		}
		deposits = append(deposits, domain.Deposit{
			Amount:      amount,
			Date:        toText(entry["date"]),
			Description: toText(entry["description"]),
		})
	}
	return deposits
}

// Normalize coerces a raw case record into typed application fields.
// It never fails: absent or malformed fields degrade to documented
// defaults (zero, empty, or unset), and the result is derived once and
// never mutated afterward.
func Normalize(c domain.Case) domain.Application {
	if c == nil {
		c = domain.Case{}
	}

	employment := group(c, "employment")
	loan := group(c, "loan")
	property := group(c, "property")
	assets := group(c, "assets")
	credit := group(c, "credit_history")
	debts := group(c, "debts")

	caseID := toText(c["case_id"])
	if caseID == "" {
		caseID = domain.DefaultCaseID
	}

	liquid, ok := toNumber(assets["liquid_assets_total"])
	if !ok {
		liquid = numOr(assets, 0, "checking") + numOr(assets, 0, "savings")
	}

	propertyType := toText(property["type"])
	if propertyType == "" {
		propertyType = toText(loan["property_type"])
	}

	creditScore := c["credit_score"]
	if _, ok := toNumber(creditScore); !ok {
		creditScore = credit["credit_score"]
	}

	app := domain.Application{
		CaseID:          caseID,
		CreditScore:     toCount(creditScore),
		LatePayments12M: toCount(credit["late_payments_12mo"]),
		Inquiries6M:     toCount(credit["inquiries_6mo"]),

		MonthlyIncome:   numOr(employment, 0, "monthly_income"),
		EmploymentYears: numOr(employment, 0, "years", "years_employed"),
		EmploymentGap:   toFlag(employment["employment_gap"]) || toFlag(employment["gap"]),

		LoanAmount:      numOr(loan, 0, "amount"),
		ProposedPayment: numOr(loan, 0, "monthly_piti", "estimated_payment"),

		AppraisedValue: numOr(property, 0, "appraised_value"),
		PropertyType:   propertyType,
		// Missing repair cost means no repairs, so the default is zero.
		RequiredRepairs: numOr(property, 0, "required_repairs"),

		LiquidAssets:        liquid,
		RecentDeposits:      normalizeDeposits(assets["recent_deposits"]),
		DepositExplanations: toText(assets["deposit_explanations"]),

		ExistingDebt: sumDebts(debts),
	}

	if dti, ok := toNumber(c["dti_ratio"]); ok {
		app.SuppliedDTI = &dti
	}

	return app
}
