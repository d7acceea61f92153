package domain

import (
	"time"
)

// Decision is the final verdict for a case. Exactly one of three states
// is reachable: reasons force a denial, otherwise conditions force a
// conditional approval, otherwise the case is approved.
const (
	DecisionApproved    = "APPROVED"
	DecisionConditional = "CONDITIONAL_APPROVAL"
	DecisionDenied      = "DENIED"
)

// Metrics holds the derived financial quantities for a case. All four
// ratios are computed unconditionally, even when a hard fail elsewhere
// makes them moot, so they can be tested and displayed in isolation.
type Metrics struct {
	DTI                   Ratio   `json:"dti"`
	LTV                   Ratio   `json:"ltv"`
	ReservesMonths        Ratio   `json:"reserves_months"`
	LargeDepositThreshold float64 `json:"large_deposit_threshold"`
	TotalObligations      float64 `json:"total_obligations"`
	ExistingDebt          float64 `json:"existing_debt"`
}

// Result is the complete underwriting outcome for a case. It is created
// fresh on every evaluation and replaces any prior stored result for the
// same case identity wholesale; it is never partially updated.
type Result struct {
	CaseID        string    `json:"case_id"`
	Decision      string    `json:"final_decision"`
	RiskScore     int       `json:"risk_score"`
	Metrics       Metrics   `json:"metrics"`
	Conditions    []string  `json:"conditions"`
	Reasons       []string  `json:"reasons"`
	Memo          string    `json:"decision_memo"`
	RawInput      Case      `json:"raw_input"`
	GeneratedAt   time.Time `json:"generated_at"`
	EngineVersion string    `json:"engine_version,omitempty"`
}

// ResultSummary is the API response shape for a submission, mirroring
// the stored result minus the raw payload echo.
type ResultSummary struct {
	CaseID     string   `json:"case_id"`
	Decision   string   `json:"final_decision"`
	RiskScore  int      `json:"risk_score"`
	Conditions []string `json:"conditions"`
	Reasons    []string `json:"reasons"`
	Memo       string   `json:"decision_memo,omitempty"`
}

// Summary strips the audit payload for API responses.
func (r *Result) Summary() *ResultSummary {
	return &ResultSummary{
		CaseID:     r.CaseID,
		Decision:   r.Decision,
		RiskScore:  r.RiskScore,
		Conditions: r.Conditions,
		Reasons:    r.Reasons,
		Memo:       r.Memo,
	}
}
