package claim

import "strings"

// SplitCodes parses free-text diagnosis or procedure code lists. Codes may be
// separated by commas, whitespace or both; entries are trimmed and empties
// dropped, so " M17.11, S83.241A " and "M17.11 S83.241A" parse identically.
func SplitCodes(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	codes := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			codes = append(codes, f)
		}
	}
	return codes
}

// JoinCodes renders a code list back to its canonical comma-separated form.
func JoinCodes(codes []string) string {
	return strings.Join(codes, ", ")
}
