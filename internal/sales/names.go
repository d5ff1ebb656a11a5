package sales

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// nameKey folds a vendor name so that "Sylvie", " sylvie " and a decomposed
// "Sylvie" typed on another keyboard resolve to the same vendor.
func nameKey(name string) string {
	n := norm.NFC.String(strings.Join(strings.Fields(name), " "))
	return cases.Fold().String(n)
}
