package underwriting

import (
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// EngineVersion is stamped into every Result for audit trails.
const EngineVersion = "kestrel/1.0"

// Overlay evaluates supplemental rules on top of the fixed guideline
// table. Overlay findings are appended after the table's own output
// and can only add reasons or conditions, never remove them.
type Overlay interface {
	Evaluate(app domain.Application, m domain.Metrics) (reasons, conditions []string)
}

// Engine runs the full decision pipeline for one case at a time. It is
// pure and stateless apart from its clock, so a single Engine is safe
// for concurrent use.
type Engine struct {
	overlay Overlay
	now     func() time.Time
}

// NewEngine creates an engine. overlay may be nil when no supplemental
// rules are configured.
func NewEngine(overlay Overlay) *Engine {
	return &Engine{
		overlay: overlay,
		now:     time.Now,
	}
}

// Evaluate runs the pipeline end to end and produces a fresh Result.
// The generation timestamp is the only non-deterministic field;
// everything else is a pure function of the case.
func (e *Engine) Evaluate(raw domain.Case) *domain.Result {
	app := Normalize(raw)
	metrics := ComputeMetrics(app)
	reasons, conditions := EvaluatePolicy(app, metrics)

	if e.overlay != nil {
		extraReasons, extraConditions := e.overlay.Evaluate(app, metrics)
		reasons = append(reasons, extraReasons...)
		conditions = append(conditions, extraConditions...)
	}

	score := RiskScore(app, metrics)
	decision := Resolve(reasons, conditions)
	issuedAt := e.now().UTC()

	return &domain.Result{
		CaseID:        app.CaseID,
		Decision:      decision,
		RiskScore:     score,
		Metrics:       metrics,
		Conditions:    conditions,
		Reasons:       reasons,
		Memo:          BuildMemo(app, metrics, decision, score, reasons, conditions, issuedAt),
		RawInput:      raw,
		GeneratedAt:   issuedAt,
		EngineVersion: EngineVersion,
	}
}
