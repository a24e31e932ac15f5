package branches

import (
	"fmt"
	"time"
)

// Indian fiscal year runs April through March.
const fiscalYearStartMonth = time.April

// FiscalYearLabel formats the fiscal year containing t, e.g. "2025-26".
func FiscalYearLabel(t time.Time) string {
	startYear := t.Year()
	if t.Month() < fiscalYearStartMonth {
		startYear--
	}
	return fmt.Sprintf("%d-%02d", startYear, (startYear+1)%100)
}

// FormatDocNumber renders a branch-scoped document number:
// PREFIX/2025-26/MUM/00042. Sequences are zero-padded to 5 digits and
// never reused; a rolled-back allocation leaves a gap.
func FormatDocNumber(prefix, branchCode string, seq int64, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s/%05d", prefix, FiscalYearLabel(at), branchCode, seq)
}
