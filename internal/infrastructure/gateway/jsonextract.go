package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSONObject pulls the first balanced {...} block out of s and
// unmarshals it into v. Chat-completion judge responses are requested in
// JSON mode, but providers occasionally wrap the object in prose or a
// markdown fence, so this scans for the object rather than trusting the
// whole response body to be valid JSON on its own.
func extractJSONObject(s string, v any) error {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return fmt.Errorf("no JSON object found in response")
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return json.Unmarshal([]byte(s[start:i+1]), v)
			}
		}
	}
	return fmt.Errorf("unbalanced JSON object in response")
}
