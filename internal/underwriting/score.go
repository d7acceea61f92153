package underwriting

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// creditContribution maps the credit score to its risk weight tier.
func creditContribution(score int) float64 {
	switch {
	case score >= 740:
		return 5
	case score >= 700:
		return 15
	case score >= 660:
		return 30
	case score >= 620:
		return 45
	default:
		return 70
	}
}

// ratioContribution scales a ratio's distance above a baseline into a
// bounded risk weight. An undefined ratio contributes the full cap.
func ratioContribution(r domain.Ratio, baseline, cap float64) float64 {
	if !r.Defined() {
		return cap
	}
	return clamp(0, (r.Value()-baseline)*100, cap)
}

// reservesContribution rewards deeper reserves. Undefined reserves are
// treated the same as thin reserves.
func reservesContribution(r domain.Ratio) float64 {
	if !r.Defined() {
		return 15
	}
	switch {
	case r.Value() >= 6:
		return 0
	case r.Value() >= 2:
		return 5
	default:
		return 15
	}
}

func clamp(lo, v, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

// RiskScore computes the composite risk score, a bounded [0,100]
// integer where higher means worse. The score is deliberately
// decoupled from the reason and condition lists; both are reported
// side by side without reconciliation.
func RiskScore(app domain.Application, m domain.Metrics) int {
	sum := creditContribution(app.CreditScore) +
		ratioContribution(m.DTI, 0.28, 30) +
		ratioContribution(m.LTV, 0.80, 25) +
		reservesContribution(m.ReservesMonths)
	return int(clamp(0, math.Round(sum), 100))
}
