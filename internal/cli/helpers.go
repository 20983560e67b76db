package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// parseKeyValues turns ["a=1", "b=2"] into a map.
func parseKeyValues(pairs []string, flag string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --%s %q: expected key=value", flag, pair)
		}
		out[key] = value
	}
	return out, nil
}

// prettyJSON indents body when it is JSON and returns it unchanged otherwise.
func prettyJSON(body []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		return string(body)
	}
	return buf.String()
}
