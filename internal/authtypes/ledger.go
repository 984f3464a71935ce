package authtypes

import (
	"fmt"
	"strings"
)

// RunLedger is the per-run record of which accounts succeeded or failed.
// It is append-only; one Record call per processed account.
type RunLedger struct {
	Succeeded []string       `json:"succeeded"`
	Failed    []string       `json:"failed"`
	Outcomes  []LoginOutcome `json:"outcomes"`
}

// NewRunLedger returns an empty ledger with non-nil slices so that it
// serializes as empty arrays.
func NewRunLedger() RunLedger {
	return RunLedger{
		Succeeded: []string{},
		Failed:    []string{},
		Outcomes:  []LoginOutcome{},
	}
}

// Record appends the outcome under the given policy.
func (l *RunLedger) Record(o LoginOutcome, p SuccessPolicy) {
	l.Outcomes = append(l.Outcomes, o)
	if o.Succeeded(p) {
		l.Succeeded = append(l.Succeeded, o.AccountID)
	} else {
		l.Failed = append(l.Failed, o.AccountID)
	}
}

// Processed is the number of recorded accounts.
func (l RunLedger) Processed() int {
	return len(l.Outcomes)
}

// Summary renders the human-readable text handed to the notifier.
func (l RunLedger) Summary(title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Completed. Success: %d, Fail: %d\n", title, len(l.Succeeded), len(l.Failed))
	fmt.Fprintf(&b, "Succeeded: [%s]\n", strings.Join(l.Succeeded, ", "))
	fmt.Fprintf(&b, "Failed: [%s]", strings.Join(l.Failed, ", "))
	return b.String()
}
