package aggregator

import "strings"

// Decode parses loose "key: value" lines into a map. It is deliberately
// forgiving: lines without a colon are collected under "body", keys are
// lowercased and trimmed, duplicate keys keep the last value, and the defaults
// map fills any key the text never mentions. Malformed input never aborts.
func Decode(text string, defaults map[string]string) map[string]string {
	out := make(map[string]string, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}

	var body []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx <= 0 {
			body = append(body, line)
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		if key == "" {
			body = append(body, line)
			continue
		}
		out[key] = value
	}
	if len(body) > 0 {
		if existing, ok := out["body"]; ok && existing != "" {
			out["body"] = existing + "\n" + strings.Join(body, "\n")
		} else {
			out["body"] = strings.Join(body, "\n")
		}
	}
	return out
}
