// Case runner for checking Kestrel against labeled test cases.
//
// Usage:
//   go run cmd/caserunner/main.go -testcases /path/to/mortgage_test_cases.json
//
// This tool:
//  1. Reads a JSON file of loan cases (optionally labeled with expected_decision)
//  2. Runs each case through the underwriting engine locally
//  3. Prints a per-case summary and flags mismatches against expectations
//  4. Exits non-zero when any labeled case disagrees
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/underwriting"
)

// caseFile accepts either a bare JSON array of cases or an object with
// a test_cases array.
type caseFile struct {
	TestCases []domain.Case `json:"test_cases"`
}

func main() {
	testcasesPath := flag.String("testcases", "", "Path to a JSON file of loan cases")
	showMemos := flag.Bool("memos", false, "Print the full decision memo for each case")
	flag.Parse()

	if *testcasesPath == "" {
		fmt.Println("Usage: caserunner -testcases /path/to/cases.json [-memos]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cases, err := readCases(*testcasesPath)
	if err != nil {
		fmt.Printf("ERROR: failed to read cases: %v\n", err)
		os.Exit(1)
	}

	engine := underwriting.NewEngine(nil)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CASE ID\tEXPECTED\tACTUAL\tRISK\tMATCH")

	allOK := true
	var results []*domain.Result

	for _, c := range cases {
		expected := ""
		if raw, ok := c["expected_decision"].(string); ok {
			expected = normalizeExpected(raw)
		}

		result := engine.Evaluate(c)
		results = append(results, result)

		match := "-"
		if expected != "" {
			if result.Decision == expected {
				match = "ok"
			} else {
				match = "MISMATCH"
				allOK = false
			}
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			result.CaseID, orDash(expected), result.Decision, result.RiskScore, match)
	}
	w.Flush()

	if *showMemos {
		for _, r := range results {
			fmt.Printf("\n--- Decision memo: %s ---\n", r.CaseID)
			fmt.Println(r.Memo)
		}
	}

	if !allOK {
		os.Exit(2)
	}
}

func readCases(path string) ([]domain.Case, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Bare array first, wrapped object second
	var cases []domain.Case
	if err := json.Unmarshal(raw, &cases); err == nil {
		return cases, nil
	}

	var file caseFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("cases JSON must be an array or { \"test_cases\": [...] }: %w", err)
	}
	if file.TestCases == nil {
		return nil, fmt.Errorf("cases JSON must be an array or { \"test_cases\": [...] }")
	}
	return file.TestCases, nil
}

// normalizeExpected maps label aliases onto the engine's decision
// vocabulary. Unknown labels default to APPROVED.
func normalizeExpected(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CONDITIONAL", "CONDITIONAL_APPROVAL":
		return domain.DecisionConditional
	case "REJECTED", "DENIED":
		return domain.DecisionDenied
	default:
		return domain.DecisionApproved
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
