package underwriting

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// suppliedDTIMax bounds a caller-supplied DTI ratio. Values outside
// [0, suppliedDTIMax] are treated as garbage and recomputed.
const suppliedDTIMax = 1.5

// largeDepositCap caps the large-deposit threshold regardless of income.
const largeDepositCap = 1000

// ratio divides numerator by denominator, yielding an undefined ratio
// when the denominator is zero or negative. Undefined is a signal the
// policy table consumes, not an error.
func ratio(numerator, denominator float64) domain.Ratio {
	if denominator <= 0 {
		return domain.UndefinedRatio()
	}
	return domain.DefinedRatio(numerator / denominator)
}

// ComputeMetrics derives every financial ratio from the normalized
// application. All quantities are computed unconditionally so that
// each one can be asserted in isolation.
func ComputeMetrics(app domain.Application) domain.Metrics {
	existingDebt := app.ExistingDebt
	totalObligations := existingDebt + app.ProposedPayment

	dti := ratio(totalObligations, app.MonthlyIncome)
	if app.SuppliedDTI != nil {
		if supplied := *app.SuppliedDTI; supplied >= 0 && supplied <= suppliedDTIMax {
			// A pre-validated ratio from the caller wins over recomputation.
			dti = domain.DefinedRatio(supplied)
		}
	}

	return domain.Metrics{
		DTI:                   dti,
		LTV:                   ratio(app.LoanAmount, app.AppraisedValue),
		ReservesMonths:        ratio(app.LiquidAssets, app.ProposedPayment),
		LargeDepositThreshold: math.Min(largeDepositCap, 0.25*app.MonthlyIncome),
		TotalObligations:      totalObligations,
		ExistingDebt:          existingDebt,
	}
}
