package registry

import "fmt"

// YearRange returns the first and last day of year in the registry's
// dd.mm.yyyy form.
func YearRange(year int) (start, end string) {
	return fmt.Sprintf("01.01.%d", year), fmt.Sprintf("31.12.%d", year)
}
