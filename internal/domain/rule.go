package domain

// OverlayRule is an operator-defined policy rule layered on top of the
// fixed underwriting table. The expression is CEL over the normalized
// application and derived metrics; when it evaluates true the message is
// appended to the reason or condition list after the fixed table's
// output. Overlays can only add entries, never suppress them.
type OverlayRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`

	// CEL expression; must evaluate to bool.
	Expression string `json:"expression"`

	// Outcome is "reason" or "condition".
	Outcome string `json:"outcome"`

	// Message appended when the expression fires.
	Message string `json:"message"`

	// Whether the overlay is active.
	Enabled bool `json:"enabled"`
}

// Overlay outcome kinds.
const (
	OverlayOutcomeReason    = "reason"
	OverlayOutcomeCondition = "condition"
)
