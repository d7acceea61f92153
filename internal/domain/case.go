// Package domain defines the core interfaces and types for Kestrel.
package domain

// Case is a raw loan application record as submitted by a client.
// No field is required to be present or correctly typed; the normalizer
// is responsible for coercing it into an Application.
type Case map[string]any

// DefaultCaseID is used when a submitted case carries no case_id.
const DefaultCaseID = "demo"

// Application holds the typed fields extracted from a Case.
// Derived once per evaluation and never mutated afterward.
type Application struct {
	CaseID string `json:"case_id"`

	// Credit
	CreditScore     int `json:"credit_score"`
	LatePayments12M int `json:"late_payments_12mo"`
	Inquiries6M     int `json:"inquiries_6mo"`

	// Employment / income
	MonthlyIncome   float64 `json:"monthly_income"`
	EmploymentYears float64 `json:"employment_years"`
	EmploymentGap   bool    `json:"employment_gap"`

	// Loan terms
	LoanAmount      float64 `json:"loan_amount"`
	ProposedPayment float64 `json:"proposed_payment"`

	// Property
	AppraisedValue  float64 `json:"appraised_value"`
	PropertyType    string  `json:"property_type"`
	RequiredRepairs float64 `json:"required_repairs"`

	// Assets
	LiquidAssets        float64   `json:"liquid_assets"`
	RecentDeposits      []Deposit `json:"recent_deposits,omitempty"`
	DepositExplanations string    `json:"deposit_explanations,omitempty"`

	// Debts
	ExistingDebt float64 `json:"existing_debt"`

	// Pre-supplied DTI ratio, authoritative when within [0, 1.5].
	SuppliedDTI *float64 `json:"supplied_dti,omitempty"`
}

// Deposit is a single itemized deposit from the assets group.
type Deposit struct {
	Amount      float64 `json:"amount"`
	Date        string  `json:"date,omitempty"`
	Description string  `json:"description,omitempty"`
}
