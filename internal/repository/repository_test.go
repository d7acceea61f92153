package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func sampleResult(caseID string) *domain.Result {
	return &domain.Result{
		CaseID:    caseID,
		Decision:  domain.DecisionConditional,
		RiskScore: 42,
		Metrics: domain.Metrics{
			DTI:                   domain.DefinedRatio(0.45),
			LTV:                   domain.DefinedRatio(0.95),
			ReservesMonths:        domain.UndefinedRatio(),
			LargeDepositThreshold: 1000,
			TotalObligations:      3600,
			ExistingDebt:          1600,
		},
		Conditions:    []string{"Increase reserves to at least 2 months of PITI (currently 1.2)."},
		Reasons:       []string{},
		Memo:          "UNDERWRITING DECISION MEMO\n...",
		RawInput:      domain.Case{"case_id": caseID, "credit_score": 700.0},
		GeneratedAt:   time.Now().UTC().Truncate(time.Second),
		EngineVersion: "kestrel/1.0",
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetResult", func(t *testing.T) {
		res := sampleResult("case-001")
		if err := repo.SaveResult(ctx, res); err != nil {
			t.Fatalf("SaveResult failed: %v", err)
		}

		got, err := repo.GetResult(ctx, "case-001")
		if err != nil {
			t.Fatalf("GetResult failed: %v", err)
		}
		if got.Decision != res.Decision || got.RiskScore != res.RiskScore {
			t.Errorf("got %s/%d, want %s/%d", got.Decision, got.RiskScore, res.Decision, res.RiskScore)
		}
		if len(got.Conditions) != 1 || got.Conditions[0] != res.Conditions[0] {
			t.Errorf("conditions = %v", got.Conditions)
		}
		if got.Metrics.ReservesMonths.Defined() {
			t.Error("undefined reserves ratio did not survive the round trip")
		}
		if got.Metrics.DTI.Value() != 0.45 {
			t.Errorf("dti = %f", got.Metrics.DTI.Value())
		}
		if got.RawInput["case_id"] != "case-001" {
			t.Errorf("raw input = %v", got.RawInput)
		}
	})

	t.Run("ResubmitReplacesWholesale", func(t *testing.T) {
		first := sampleResult("case-002")
		if err := repo.SaveResult(ctx, first); err != nil {
			t.Fatalf("SaveResult failed: %v", err)
		}

		second := sampleResult("case-002")
		second.Decision = domain.DecisionDenied
		second.RiskScore = 80
		second.Reasons = []string{"Credit score 600 is below minimum 620."}
		second.Conditions = []string{}
		if err := repo.SaveResult(ctx, second); err != nil {
			t.Fatalf("SaveResult (resubmit) failed: %v", err)
		}

		got, err := repo.GetResult(ctx, "case-002")
		if err != nil {
			t.Fatalf("GetResult failed: %v", err)
		}
		if got.Decision != domain.DecisionDenied || got.RiskScore != 80 {
			t.Errorf("got %s/%d after resubmit", got.Decision, got.RiskScore)
		}
		if len(got.Conditions) != 0 {
			t.Errorf("stale conditions survived: %v", got.Conditions)
		}
	})

	t.Run("GetMissingResult", func(t *testing.T) {
		_, err := repo.GetResult(ctx, "no-such-case")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("SaveResultValidation", func(t *testing.T) {
		if err := repo.SaveResult(ctx, &domain.Result{}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})

	t.Run("ListResults", func(t *testing.T) {
		results, err := repo.ListResults(ctx, 10)
		if err != nil {
			t.Fatalf("ListResults failed: %v", err)
		}
		if len(results) < 2 {
			t.Errorf("expected at least 2 results, got %d", len(results))
		}
	})
}

func TestOverlayRuleStorage(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rule := &domain.OverlayRule{
		ID:         "jumbo-001",
		Name:       "Jumbo reserves",
		Version:    "1",
		Expression: "loan_amount > 400000.0",
		Outcome:    domain.OverlayOutcomeCondition,
		Message:    "Jumbo loan: provide 6 months reserves documentation.",
		Enabled:    true,
	}

	t.Run("SaveAndGet", func(t *testing.T) {
		if err := repo.SaveOverlayRule(ctx, rule); err != nil {
			t.Fatalf("SaveOverlayRule failed: %v", err)
		}

		got, err := repo.GetOverlayRule(ctx, "jumbo-001")
		if err != nil {
			t.Fatalf("GetOverlayRule failed: %v", err)
		}
		if got.Expression != rule.Expression || got.Outcome != rule.Outcome || got.Message != rule.Message {
			t.Errorf("got %+v", got)
		}
		if !got.Enabled {
			t.Error("rule should be enabled")
		}
	})

	t.Run("UpsertSameVersion", func(t *testing.T) {
		updated := *rule
		updated.Message = "Jumbo loan: provide 9 months reserves documentation."
		if err := repo.SaveOverlayRule(ctx, &updated); err != nil {
			t.Fatalf("SaveOverlayRule (update) failed: %v", err)
		}

		got, err := repo.GetOverlayRule(ctx, "jumbo-001")
		if err != nil {
			t.Fatalf("GetOverlayRule failed: %v", err)
		}
		if got.Message != updated.Message {
			t.Errorf("message = %q", got.Message)
		}
	})

	t.Run("List", func(t *testing.T) {
		second := &domain.OverlayRule{
			ID:         "condo-floor",
			Name:       "Condo credit floor",
			Version:    "1",
			Expression: "property_type.contains('condo') && credit_score < 680",
			Outcome:    domain.OverlayOutcomeReason,
			Message:    "Condo program requires 680 minimum credit.",
			Enabled:    true,
		}
		if err := repo.SaveOverlayRule(ctx, second); err != nil {
			t.Fatalf("SaveOverlayRule failed: %v", err)
		}

		rules, err := repo.ListOverlayRules(ctx)
		if err != nil {
			t.Fatalf("ListOverlayRules failed: %v", err)
		}
		if len(rules) != 2 {
			t.Fatalf("expected 2 rules, got %d", len(rules))
		}
		if rules[0].ID != "condo-floor" || rules[1].ID != "jumbo-001" {
			t.Errorf("rules out of order: %s, %s", rules[0].ID, rules[1].ID)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.DeleteOverlayRule(ctx, "jumbo-001"); err != nil {
			t.Fatalf("DeleteOverlayRule failed: %v", err)
		}

		if _, err := repo.GetOverlayRule(ctx, "jumbo-001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound after delete", err)
		}

		rules, err := repo.ListOverlayRules(ctx)
		if err != nil {
			t.Fatalf("ListOverlayRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Errorf("expected 1 rule after delete, got %d", len(rules))
		}
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		if err := repo.DeleteOverlayRule(ctx, "never-existed"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}
	got := repo.rebind("INSERT INTO t (a, b) VALUES (?, ?)")
	want := "INSERT INTO t (a, b) VALUES ($1, $2)"
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}

	repo.driver = "sqlite"
	passthrough := "SELECT * FROM t WHERE a = ?"
	if got := repo.rebind(passthrough); got != passthrough {
		t.Errorf("sqlite rebind modified query: %q", got)
	}
}
