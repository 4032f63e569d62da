package domain

import "github.com/rivo/uniseg"

// Truncate returns the first n user-perceived characters of s, appending
// "..." when anything was cut.
func Truncate(s string, n int) string {
	if uniseg.GraphemeClusterCount(s) <= n {
		return s
	}
	g := uniseg.NewGraphemes(s)
	var end int
	for i := 0; i < n && g.Next(); i++ {
		_, end = g.Positions()
	}
	return s[:end] + "..."
}
