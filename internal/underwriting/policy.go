package underwriting

import (
	"fmt"
	"math"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Policy thresholds. These mirror the published program guidelines and
// change only with a program revision.
const (
	minCreditScore    = 620
	maxDTI            = 0.50
	maxLTV            = 0.97
	minReservesMonths = 2.0
	maxLatePayments   = 2
	minTenureYears    = 2.0
	holdbackCap       = 5000
	holdbackRate      = 0.03
)

// policyOutcome says which list a fired rule appends to.
type policyOutcome int

const (
	outcomeReason policyOutcome = iota
	outcomeCondition
)

// policyRule is one row of the underwriting guideline table. applies
// and message are pure functions of the normalized application and its
// derived metrics.
type policyRule struct {
	name    string
	outcome policyOutcome
	applies func(app domain.Application, m domain.Metrics) bool
	message func(app domain.Application, m domain.Metrics) string
}

// policyTable is evaluated top to bottom on every case. Rules never
// suppress or reorder one another, so output ordering is stable for a
// given input. Late payments intentionally appear twice: any lateness
// needs a letter of explanation, and excessive lateness is an
// independent hard fail on top of that.
var policyTable = []policyRule{
	{
		name:    "credit_minimum",
		outcome: outcomeReason,
		applies: func(app domain.Application, m domain.Metrics) bool {
			return app.CreditScore < minCreditScore
		},
		message: func(app domain.Application, m domain.Metrics) string {
			return fmt.Sprintf("Credit score %d is below minimum %d.", app.CreditScore, minCreditScore)
		},
	},
	{
		name:    "dti_undefined",
		outcome: outcomeReason,
		applies: func(app domain.Application, m domain.Metrics) bool {
			return !m.DTI.Defined()
		},
		message: func(app domain.Application, m domain.Metrics) string {
			return "DTI could not be calculated; verify income and debt documentation."
		},
	},
	{
		name:    "dti_maximum",
		outcome: outcomeReason,
		applies: func(app domain.Application, m domain.Metrics) bool {
			return m.DTI.Exceeds(maxDTI)
		},
		message: func(app domain.Application, m domain.Metrics) string {
			return fmt.Sprintf("DTI %.1f%% exceeds 50%% maximum.", m.DTI.Value()*100)
		},
	},
	{
		name:    "ltv_undefined",
		outcome: outcomeReason,
		applies: func(app domain.Application, m domain.Metrics) bool {
			return !m.LTV.Defined()
		},
		message: func(app domain.Application, m domain.Metrics) string {
			return "LTV could not be calculated; verify loan amount and appraised value."
		},
	},
	{
		name:    "ltv_maximum",
		outcome: outcomeReason,
		applies: func(app domain.Application, m domain.Metrics) bool {
			return m.LTV.Exceeds(maxLTV)
		},
		message: func(app domain.Application, m domain.Metrics) string {
			return fmt.Sprintf("LTV %.1f%% exceeds 97%% maximum.", m.LTV.Value()*100)
		},
	},
	{
		name:    "reserves_undefined",
		outcome: outcomeReason,
		applies: func(app domain.Application, m domain.Metrics) bool {
			return !m.ReservesMonths.Defined()
		},
		message: func(app domain.Application, m domain.Metrics) string {
			return "Reserves could not be calculated; verify proposed payment and asset documentation."
		},
	},
	{
		name:    "reserves_minimum",
		outcome: outcomeCondition,
		applies: func(app domain.Application, m domain.Metrics) bool {
			return m.ReservesMonths.Below(minReservesMonths)
		},
		message: func(app domain.Application, m domain.Metrics) string {
			return fmt.Sprintf("Increase reserves to at least 2 months of PITI (currently %.1f).", m.ReservesMonths.Value())
		},
	},
	{
		name:    "late_payment_letter",
		outcome: outcomeCondition,
		applies: func(app domain.Application, m domain.Metrics) bool {
			return app.LatePayments12M > 0
		},
		message: func(app domain.Application, m domain.Metrics) string {
			return fmt.Sprintf("Provide letter of explanation for %d late payment(s) in last 12 months.", app.LatePayments12M)
		},
	},
	{
		name:    "late_payment_maximum",
		outcome: outcomeReason,
		applies: func(app domain.Application, m domain.Metrics) bool {
			return app.LatePayments12M > maxLatePayments
		},
		message: func(app domain.Application, m domain.Metrics) string {
			return fmt.Sprintf("Late payments in last 12 months (%d) exceed maximum of %d.", app.LatePayments12M, maxLatePayments)
		},
	},
	{
		name:    "employment_tenure",
		outcome: outcomeCondition,
		applies: func(app domain.Application, m domain.Metrics) bool {
			return app.EmploymentYears > 0 && app.EmploymentYears < minTenureYears
		},
		message: func(app domain.Application, m domain.Metrics) string {
			return fmt.Sprintf("Employment tenure is %.1f years; provide full 2-year employment history and verification.", app.EmploymentYears)
		},
	},
	{
		name:    "employment_gap",
		outcome: outcomeCondition,
		applies: func(app domain.Application, m domain.Metrics) bool {
			return app.EmploymentGap
		},
		message: func(app domain.Application, m domain.Metrics) string {
			return "Employment gap reported: provide written explanation and verification of current employment."
		},
	},
	{
		name:    "property_repairs",
		outcome: outcomeCondition,
		applies: func(app domain.Application, m domain.Metrics) bool {
			return app.RequiredRepairs > 0
		},
		message: func(app domain.Application, m domain.Metrics) string {
			holdback := math.Min(holdbackCap, holdbackRate*app.AppraisedValue)
			return fmt.Sprintf("Property repairs required ($%s): complete prior to closing or escrow holdback up to $%s per policy.",
				formatAmount(app.RequiredRepairs), formatAmount(holdback))
		},
	},
	{
		name:    "condo_review",
		outcome: outcomeCondition,
		applies: func(app domain.Application, m domain.Metrics) bool {
			return strings.Contains(strings.ToLower(app.PropertyType), "condo")
		},
		message: func(app domain.Application, m domain.Metrics) string {
			return "Condominium: require project approval/review documentation (HOA budget, insurance, questionnaire, etc.)."
		},
	},
	{
		name:    "large_deposits",
		outcome: outcomeCondition,
		applies: func(app domain.Application, m domain.Metrics) bool {
			if app.DepositExplanations != "" {
				return false
			}
			for _, d := range app.RecentDeposits {
				if d.Amount >= m.LargeDepositThreshold {
					return true
				}
			}
			return false
		},
		message: func(app domain.Application, m domain.Metrics) string {
			count := 0
			for _, d := range app.RecentDeposits {
				if d.Amount >= m.LargeDepositThreshold {
					count++
				}
			}
			return fmt.Sprintf("Source %d large deposit(s) at or above $%.2f with documentation (gift letter, sale proceeds, etc.).",
				count, m.LargeDepositThreshold)
		},
	},
}

// EvaluatePolicy runs the guideline table in order and collects the
// fired messages. Both returned slices are always non-nil.
func EvaluatePolicy(app domain.Application, m domain.Metrics) (reasons, conditions []string) {
	reasons = []string{}
	conditions = []string{}
	for _, rule := range policyTable {
		if !rule.applies(app, m) {
			continue
		}
		switch rule.outcome {
		case outcomeReason:
			reasons = append(reasons, rule.message(app, m))
		case outcomeCondition:
			conditions = append(conditions, rule.message(app, m))
		}
	}
	return reasons, conditions
}

// formatAmount renders a dollar amount with thousands separators and
// no cents, matching the style used in condition text.
func formatAmount(v float64) string {
	s := fmt.Sprintf("%.0f", math.Abs(v))
	if len(s) > 3 {
		var b strings.Builder
		lead := len(s) % 3
		if lead > 0 {
			b.WriteString(s[:lead])
		}
		for i := lead; i < len(s); i += 3 {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(s[i : i+3])
		}
		s = b.String()
	}
	if v < 0 {
		return "-" + s
	}
	return s
}
