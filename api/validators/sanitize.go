package validators

import (
	"strings"
	"unicode/utf8"
)

// SanitizeString trims input, drops invalid UTF-8 and caps it at maxLen
// characters. A maxLen of zero or less means no cap.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.TrimSpace(strings.ToValidUTF8(input, ""))
	if maxLen <= 0 || utf8.RuneCountInString(cleaned) <= maxLen {
		return cleaned
	}

	end := 0
	for count := 0; count < maxLen; count++ {
		_, size := utf8.DecodeRuneInString(cleaned[end:])
		end += size
	}
	return strings.TrimSpace(cleaned[:end])
}
