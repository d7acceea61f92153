package underwriting

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func fixedEngine() *Engine {
	e := NewEngine(nil)
	e.now = func() time.Time { return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC) }
	return e
}

func scenarioApproved() domain.Case {
	return domain.Case{
		"case_id":      "scenario-a",
		"credit_score": 750.0,
		"dti_ratio":    0.30,
		"employment": map[string]any{
			"monthly_income": 10000.0,
			"years":          6.0,
		},
		"loan": map[string]any{
			"amount":       200000.0,
			"monthly_piti": 1800.0,
		},
		"property": map[string]any{
			"appraised_value": 300000.0,
			"type":            "Single Family",
		},
		"assets": map[string]any{
			"liquid_assets_total": 20000.0,
		},
	}
}

func TestEngineApproved(t *testing.T) {
	res := fixedEngine().Evaluate(scenarioApproved())

	if res.Decision != domain.DecisionApproved {
		t.Fatalf("decision = %s, reasons = %v, conditions = %v", res.Decision, res.Reasons, res.Conditions)
	}
	if len(res.Reasons) != 0 || len(res.Conditions) != 0 {
		t.Errorf("reasons = %v, conditions = %v", res.Reasons, res.Conditions)
	}
	// Credit tier 5 plus a 2 point DTI contribution at 30%.
	if res.RiskScore != 7 {
		t.Errorf("risk score = %d, want 7", res.RiskScore)
	}
	if res.CaseID != "scenario-a" {
		t.Errorf("case id = %q", res.CaseID)
	}
	if res.EngineVersion != EngineVersion {
		t.Errorf("engine version = %q", res.EngineVersion)
	}
}

func TestEngineDeniedLowCredit(t *testing.T) {
	c := scenarioApproved()
	c["credit_score"] = 600.0

	res := fixedEngine().Evaluate(c)

	if res.Decision != domain.DecisionDenied {
		t.Fatalf("decision = %s", res.Decision)
	}
	found := false
	for _, r := range res.Reasons {
		if r == "Credit score 600 is below minimum 620." {
			found = true
		}
	}
	if !found {
		t.Errorf("reasons = %v", res.Reasons)
	}
}

func TestEngineConditionalApproval(t *testing.T) {
	c := domain.Case{
		"case_id":      "scenario-c",
		"credit_score": 700.0,
		"dti_ratio":    0.45,
		"employment": map[string]any{
			"monthly_income": 8000.0,
			"years":          4.0,
		},
		"loan": map[string]any{
			"amount":       285000.0,
			"monthly_piti": 2000.0,
		},
		"property": map[string]any{
			"appraised_value": 300000.0,
			"type":            "Single Family",
		},
		"assets": map[string]any{
			"liquid_assets_total": 2400.0,
		},
		"credit_history": map[string]any{
			"late_payments_12mo": 1.0,
		},
	}

	res := fixedEngine().Evaluate(c)

	if res.Decision != domain.DecisionConditional {
		t.Fatalf("decision = %s, reasons = %v", res.Decision, res.Reasons)
	}
	if len(res.Reasons) != 0 {
		t.Errorf("reasons = %v", res.Reasons)
	}
	if len(res.Conditions) != 2 {
		t.Fatalf("conditions = %v", res.Conditions)
	}
	if res.Conditions[0] != "Increase reserves to at least 2 months of PITI (currently 1.2)." {
		t.Errorf("conditions[0] = %q", res.Conditions[0])
	}
	if res.Conditions[1] != "Provide letter of explanation for 1 late payment(s) in last 12 months." {
		t.Errorf("conditions[1] = %q", res.Conditions[1])
	}
}

func TestEngineDeniedZeroAppraisal(t *testing.T) {
	c := scenarioApproved()
	prop := c["property"].(map[string]any)
	prop["appraised_value"] = 0.0

	res := fixedEngine().Evaluate(c)

	if res.Decision != domain.DecisionDenied {
		t.Fatalf("decision = %s", res.Decision)
	}
	found := false
	for _, r := range res.Reasons {
		if strings.Contains(r, "LTV could not be calculated") {
			found = true
		}
	}
	if !found {
		t.Errorf("reasons = %v", res.Reasons)
	}
	if res.Metrics.LTV.Defined() {
		t.Error("ltv should be undefined")
	}
}

func TestEngineDeterminism(t *testing.T) {
	e := fixedEngine()
	first := e.Evaluate(scenarioApproved())
	second := e.Evaluate(scenarioApproved())

	if !reflect.DeepEqual(first, second) {
		t.Error("repeated evaluation of the same case diverged")
	}
}

func TestEngineIdempotence(t *testing.T) {
	e := fixedEngine()
	first := e.Evaluate(scenarioApproved())
	replay := e.Evaluate(first.RawInput)

	if replay.Decision != first.Decision || replay.RiskScore != first.RiskScore {
		t.Errorf("replay decision/score = %s/%d, want %s/%d",
			replay.Decision, replay.RiskScore, first.Decision, first.RiskScore)
	}
	if !reflect.DeepEqual(replay.Reasons, first.Reasons) || !reflect.DeepEqual(replay.Conditions, first.Conditions) {
		t.Error("replay lists diverged")
	}
}

func TestEngineEmptyCase(t *testing.T) {
	res := fixedEngine().Evaluate(domain.Case{})

	if res.CaseID != domain.DefaultCaseID {
		t.Errorf("case id = %q", res.CaseID)
	}
	if res.Decision != domain.DecisionDenied {
		t.Errorf("decision = %s, want denial for an empty case", res.Decision)
	}
	if res.RiskScore < 0 || res.RiskScore > 100 {
		t.Errorf("risk score %d out of bounds", res.RiskScore)
	}
}

func TestEnginePriorityLaw(t *testing.T) {
	cases := []domain.Case{
		scenarioApproved(),
		{},
		{"credit_score": 600.0},
		{"credit_score": 700.0, "dti_ratio": 0.45,
			"employment": map[string]any{"monthly_income": 8000.0, "years": 1.0},
			"loan":       map[string]any{"amount": 100000.0, "monthly_piti": 900.0},
			"property":   map[string]any{"appraised_value": 200000.0},
			"assets":     map[string]any{"liquid_assets_total": 10000.0}},
	}

	e := fixedEngine()
	for i, c := range cases {
		res := e.Evaluate(c)
		var want string
		switch {
		case len(res.Reasons) > 0:
			want = domain.DecisionDenied
		case len(res.Conditions) > 0:
			want = domain.DecisionConditional
		default:
			want = domain.DecisionApproved
		}
		if res.Decision != want {
			t.Errorf("case %d: decision = %s, want %s", i, res.Decision, want)
		}
	}
}

type stubOverlay struct {
	reasons    []string
	conditions []string
}

func (s *stubOverlay) Evaluate(app domain.Application, m domain.Metrics) ([]string, []string) {
	return s.reasons, s.conditions
}

func TestEngineOverlayAppendsAfterPolicy(t *testing.T) {
	e := fixedEngine()
	e.overlay = &stubOverlay{
		reasons:    []string{"Program suspended in this region."},
		conditions: []string{"Provide flood insurance binder."},
	}

	res := e.Evaluate(scenarioApproved())

	if res.Decision != domain.DecisionDenied {
		t.Errorf("decision = %s", res.Decision)
	}
	if len(res.Reasons) != 1 || res.Reasons[0] != "Program suspended in this region." {
		t.Errorf("reasons = %v", res.Reasons)
	}
	if len(res.Conditions) != 1 {
		t.Errorf("conditions = %v", res.Conditions)
	}
	if !strings.Contains(res.Memo, "Program suspended in this region.") {
		t.Error("memo missing overlay reason")
	}
}

func TestMemoContents(t *testing.T) {
	res := fixedEngine().Evaluate(scenarioApproved())

	for _, want := range []string{
		"UNDERWRITING DECISION MEMO",
		"Case ID: scenario-a",
		"Date: 2026-08-31",
		"Decision: APPROVED",
		"Risk Score: 7/100",
		"Credit Score: 750",
		"DTI: 30.0%",
		"LTV: 66.7%",
		"Reserves: 11.1 months",
		"Reasons for Denial:\n  None",
		"Conditions:\n  None",
	} {
		if !strings.Contains(res.Memo, want) {
			t.Errorf("memo missing %q\nmemo:\n%s", want, res.Memo)
		}
	}
}

func TestMemoUndefinedMetricsRenderNA(t *testing.T) {
	res := fixedEngine().Evaluate(domain.Case{"credit_score": 700.0})
	if !strings.Contains(res.Memo, "DTI: N/A") || !strings.Contains(res.Memo, "LTV: N/A") {
		t.Errorf("memo:\n%s", res.Memo)
	}
	if !strings.Contains(res.Memo, "Reserves: N/A") {
		t.Errorf("memo:\n%s", res.Memo)
	}
}
