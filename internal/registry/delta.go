package registry

import (
	"fmt"
	"strconv"
	"strings"
)

// deltaSegment is one record of an ASP.NET partial page update, the body is
// a sequence of length|type|id|content| records.
type deltaSegment struct {
	Type    string
	ID      string
	Content string
}

// parseDelta splits a partial page update into its records. The length
// prefix counts UTF-16 code units.
func parseDelta(body string) ([]deltaSegment, error) {
	var out []deltaSegment
	rest := body
	for rest != "" {
		fields := strings.SplitN(rest, "|", 4)
		if len(fields) < 4 {
			return nil, fmt.Errorf("truncated delta record at offset %d", len(body)-len(rest))
		}
		length, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("bad delta record length %q", fields[0])
		}

		content, tail, ok := takeUtf16(fields[3], length)
		if !ok || !strings.HasPrefix(tail, "|") {
			return nil, fmt.Errorf("delta record %s|%s is shorter than %d", fields[1], fields[2], length)
		}
		out = append(out, deltaSegment{Type: fields[1], ID: fields[2], Content: content})
		rest = tail[1:]
	}
	return out, nil
}

// takeUtf16 splits s after n UTF-16 code units.
func takeUtf16(s string, n int) (head, tail string, ok bool) {
	units := 0
	for i, r := range s {
		if units == n {
			return s[:i], s[i:], true
		}
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
		if units > n {
			return "", "", false
		}
	}
	if units == n {
		return s, "", true
	}
	return "", "", false
}

// deltaError returns the failure a partial page update reports instead of
// content, if any.
func deltaError(segments []deltaSegment) error {
	for _, s := range segments {
		switch s.Type {
		case "error":
			return fmt.Errorf("server error %s: %s", s.ID, s.Content)
		case "pageRedirect":
			return fmt.Errorf("redirected to %s, the session has likely expired", s.Content)
		}
	}
	return nil
}
