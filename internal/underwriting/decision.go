package underwriting

import "github.com/opensource-finance/kestrel/internal/domain"

// Resolve maps the reason and condition lists to the final verdict.
// It is a strict two-level priority, independent of the risk score:
// any reason denies, otherwise any condition yields conditional
// approval, otherwise the case is approved.
func Resolve(reasons, conditions []string) string {
	switch {
	case len(reasons) > 0:
		return domain.DecisionDenied
	case len(conditions) > 0:
		return domain.DecisionConditional
	default:
		return domain.DecisionApproved
	}
}
