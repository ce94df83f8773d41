package sanitizer

import "strings"

// TrimAndNormalize collapses every run of Unicode whitespace into one space.
func TrimAndNormalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
