package script

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"focusbridge-mcp-server/internal/bridge"
)

// encodeJS marshals v for embedding as a JavaScript literal. encoding/json
// escapes the U+2028 and U+2029 line separators along with <, >, and &, so
// the output is a valid JavaScript expression no matter what the caller
// put in v. Map keys marshal in sorted order, which keeps builds
// deterministic.
func encodeJS(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("value is not serializable: %w", err)
	}
	return string(data), nil
}

// fragmentTable renders the escalation fragments as a JavaScript object so
// full-tier scripts can pass them to the secondary context by name. Each
// fragment source becomes a JSON string literal, which handles quoting and
// newlines for free.
func fragmentTable() string {
	frags := bridge.Fragments()
	names := make([]string, 0, len(frags))
	for name := range frags {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]string, 0, len(names))
	for _, name := range names {
		// json.Marshal cannot fail for a plain string.
		lit, _ := json.Marshal(frags[name])
		entries = append(entries, fmt.Sprintf("%s: %s", name, lit))
	}
	return "const __frag = {\n" + strings.Join(entries, ",\n") + "\n};"
}
