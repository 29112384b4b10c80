package collector

import (
	"fmt"
	"strings"
)

// YearError wraps any error that stopped the collection of a year with the
// position the collector had reached.
type YearError struct {
	Year      int
	Region    string
	SubRegion string
	Err       error
}

func (e *YearError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "year %d", e.Year)
	if e.Region != "" {
		fmt.Fprintf(&sb, " region %s", e.Region)
	}
	if e.SubRegion != "" {
		fmt.Fprintf(&sb, " sub-region %s", e.SubRegion)
	}
	fmt.Fprintf(&sb, ": %v", e.Err)
	return sb.String()
}

func (e *YearError) Unwrap() error {
	return e.Err
}

// YearResult is the outcome of one year of a backfill. Err is nil when the
// year was committed.
type YearResult struct {
	Year int
	Rows int
	Err  error
}

func (r YearResult) Ok() bool {
	return r.Err == nil
}
