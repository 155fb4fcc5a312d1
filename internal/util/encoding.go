package util

import (
	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKD normalization so visually identical inputs
// compare equal regardless of the producing keyboard or platform.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}
