// Package overlay provides the CEL-Go based supplemental rule engine.
// Overlay rules run after the fixed guideline table and can only add
// reasons or conditions, never suppress them.
package overlay

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine compiles and evaluates overlay rules. Rules are keyed by ID
// and evaluated in ID order so output ordering is stable for a given
// rule set.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.OverlayRule
	Program cel.Program
}

// NewEngine creates an overlay engine. Expressions see two variables:
// app (normalized application fields) and metrics (derived ratios,
// with nil standing in for an undefined ratio).
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("app", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("metrics", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("credit_score", cel.IntType),
		cel.Variable("late_payments_12mo", cel.IntType),
		cel.Variable("loan_amount", cel.DoubleType),
		cel.Variable("appraised_value", cel.DoubleType),
		cel.Variable("monthly_income", cel.DoubleType),
		cel.Variable("property_type", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.OverlayRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}
	if cfg.Outcome != domain.OverlayOutcomeReason && cfg.Outcome != domain.OverlayOutcomeCondition {
		return fmt.Errorf("rule %s: outcome must be %q or %q", cfg.ID, domain.OverlayOutcomeReason, domain.OverlayOutcomeCondition)
	}
	if cfg.Message == "" {
		return fmt.Errorf("rule %s: message is required", cfg.ID)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.OverlayRule) error {
	if err := e.ValidateRule(cfg); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}
	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads every enabled rule.
func (e *Engine) LoadRules(configs []*domain.OverlayRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules atomically replaces the loaded rule set. A compile error
// in any rule leaves the previous set untouched.
func (e *Engine) ReloadRules(configs []*domain.OverlayRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.OverlayRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.OverlayRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Evaluate runs every loaded rule against the case and returns the
// messages of the ones that fired, split by outcome. A rule whose
// expression errors at runtime is skipped; overlay rules may add
// findings but never block a decision.
func (e *Engine) Evaluate(app domain.Application, m domain.Metrics) (reasons, conditions []string) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	sort.Slice(rules, func(i, j int) bool { return rules[i].Config.ID < rules[j].Config.ID })

	activation := buildActivation(app, m)

	for _, rule := range rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			continue
		}
		fired, ok := out.(types.Bool)
		if !ok || !bool(fired) {
			continue
		}
		switch rule.Config.Outcome {
		case domain.OverlayOutcomeReason:
			reasons = append(reasons, rule.Config.Message)
		case domain.OverlayOutcomeCondition:
			conditions = append(conditions, rule.Config.Message)
		}
	}

	return reasons, conditions
}

// buildActivation flattens the application and metrics into CEL
// variables. Undefined ratios surface as nil so expressions can test
// for them explicitly.
func buildActivation(app domain.Application, m domain.Metrics) map[string]any {
	ratioVal := func(r domain.Ratio) any {
		if !r.Defined() {
			return nil
		}
		return r.Value()
	}

	deposits := make([]any, 0, len(app.RecentDeposits))
	for _, d := range app.RecentDeposits {
		deposits = append(deposits, map[string]any{
			"amount":      d.Amount,
			"date":        d.Date,
			"description": d.Description,
		})
	}

	return map[string]any{
		"app": map[string]any{
			"case_id":              app.CaseID,
			"credit_score":         app.CreditScore,
			"late_payments_12mo":   app.LatePayments12M,
			"inquiries_6mo":        app.Inquiries6M,
			"monthly_income":       app.MonthlyIncome,
			"employment_years":     app.EmploymentYears,
			"employment_gap":       app.EmploymentGap,
			"loan_amount":          app.LoanAmount,
			"proposed_payment":     app.ProposedPayment,
			"appraised_value":      app.AppraisedValue,
			"property_type":        app.PropertyType,
			"required_repairs":     app.RequiredRepairs,
			"liquid_assets":        app.LiquidAssets,
			"recent_deposits":      deposits,
			"deposit_explanations": app.DepositExplanations,
			"existing_debt":        app.ExistingDebt,
		},
		"metrics": map[string]any{
			"dti":                     ratioVal(m.DTI),
			"ltv":                     ratioVal(m.LTV),
			"reserves_months":         ratioVal(m.ReservesMonths),
			"large_deposit_threshold": m.LargeDepositThreshold,
			"total_obligations":       m.TotalObligations,
			"existing_debt":           m.ExistingDebt,
		},
		"credit_score":       app.CreditScore,
		"late_payments_12mo": app.LatePayments12M,
		"loan_amount":        app.LoanAmount,
		"appraised_value":    app.AppraisedValue,
		"monthly_income":     app.MonthlyIncome,
		"property_type":      app.PropertyType,
	}
}

// compileRule compiles an expression and checks it yields a boolean.
func (e *Engine) compileRule(cfg *domain.OverlayRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}

// Close releases engine resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}
