package entity

import (
	"strings"
	"unicode"
)

// toSnakeCase converts a Go identifier (PlayerHome, ServerName, XMLId) to
// snake_case (player_home, server_name, xml_id), per spec.md §3's table-name
// and column-name derivation rule.
//
// No case-conversion library appears anywhere in the retrieval pack;
// this is a small, self-contained helper rather than an
// ambient concern worth a dependency.
func toSnakeCase(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextIsLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
