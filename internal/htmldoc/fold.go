package htmldoc

import (
	"strings"
	"unicode/utf8"
)

// IndexFold returns the byte index of the first case-insensitive occurrence
// of substr in s at or after from, or -1.
func IndexFold(s, substr string, from int) int {
	if substr == "" || from < 0 {
		return -1
	}
	n := len(substr)
	for i := from; i+n <= len(s); {
		if strings.EqualFold(s[i:i+n], substr) {
			return i
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return -1
}

// ContainsFold reports whether substr occurs in s ignoring case and collapsing whitespace.
func ContainsFold(s, substr string) bool {
	needle := strings.Join(strings.Fields(substr), " ")
	if needle == "" {
		return false
	}
	return IndexFold(strings.Join(strings.Fields(s), " "), needle, 0) >= 0
}
