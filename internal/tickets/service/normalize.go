package tickets

import "strings"

// NormalizeTicketID extracts the canonical identifier from raw scanner input.
// Scanners may deliver the bare id or a full URL with the id as the last path
// segment, possibly followed by a query string. The function is pure and
// total: any input maps to a string, and normalizing twice equals normalizing
// once.
func NormalizeTicketID(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		s = strings.TrimSuffix(s, "/")
		if i := strings.LastIndex(s, "/"); i >= 0 {
			s = s[i+1:]
		}
		if i := strings.Index(s, "?"); i >= 0 {
			s = s[:i]
		}
	}

	return s
}
