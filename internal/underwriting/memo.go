package underwriting

import (
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// percent renders a ratio as a percentage, or "N/A" when undefined.
func percent(r domain.Ratio) string {
	if !r.Defined() {
		return "N/A"
	}
	return fmt.Sprintf("%.1f%%", r.Value()*100)
}

// months renders a reserves figure, or "N/A" when undefined.
func months(r domain.Ratio) string {
	if !r.Defined() {
		return "N/A"
	}
	return fmt.Sprintf("%.1f months", r.Value())
}

// numbered renders a list as numbered lines, or "None" on its own line
// when the list is empty.
func numbered(b *strings.Builder, items []string) {
	if len(items) == 0 {
		b.WriteString("  None\n")
		return
	}
	for i, item := range items {
		fmt.Fprintf(b, "  %d. %s\n", i+1, item)
	}
}

// BuildMemo renders the narrative decision memo from already-computed
// fields. It performs no policy logic of its own; the template is
// fixed so memos are reproducible for a given input.
func BuildMemo(app domain.Application, m domain.Metrics, decision string, score int, reasons, conditions []string, issuedAt time.Time) string {
	var b strings.Builder

	b.WriteString("UNDERWRITING DECISION MEMO\n")
	b.WriteString("==========================\n")
	fmt.Fprintf(&b, "Case ID: %s\n", app.CaseID)
	fmt.Fprintf(&b, "Date: %s\n", issuedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "Decision: %s\n", decision)
	fmt.Fprintf(&b, "Risk Score: %d/100\n", score)
	b.WriteString("\nKey Metrics:\n")
	fmt.Fprintf(&b, "  Credit Score: %d\n", app.CreditScore)
	fmt.Fprintf(&b, "  DTI: %s\n", percent(m.DTI))
	fmt.Fprintf(&b, "  LTV: %s\n", percent(m.LTV))
	fmt.Fprintf(&b, "  Reserves: %s\n", months(m.ReservesMonths))
	b.WriteString("\nReasons for Denial:\n")
	numbered(&b, reasons)
	b.WriteString("\nConditions:\n")
	numbered(&b, conditions)

	return b.String()
}
