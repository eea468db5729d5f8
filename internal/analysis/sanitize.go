package analysis

import (
	"encoding/json"
	"maps"
	"slices"
	"strconv"
	"strings"
)

var knownKeys = map[string]struct{}{
	"hand": {}, "life_line": {}, "heart_line": {}, "head_line": {}, "fate_line": {},
	"mounts": {}, "personality": {}, "summary": {}, "confidence": {},
}

// SanitizeOptionalFields removes or normalizes fields that don't meet the
// schema so the document can still validate. Required text is only trimmed.
func SanitizeOptionalFields(doc []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, nil, err
	}

	var dropped []string

	for k := range maps.Clone(m) {
		if _, ok := knownKeys[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	for _, k := range []string{"life_line", "heart_line", "head_line", "personality", "summary"} {
		if v, ok := m[k].(string); ok {
			m[k] = strings.TrimSpace(v)
		}
	}

	if v, ok := m["hand"].(string); ok {
		m["hand"] = strings.ToLower(strings.TrimSpace(v))
	}

	switch v := m["fate_line"].(type) {
	case nil:
		if _, present := m["fate_line"]; present {
			delete(m, "fate_line")
			dropped = append(dropped, "fate_line(null)")
		}
	case string:
		s := strings.TrimSpace(v)
		if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
			delete(m, "fate_line")
			dropped = append(dropped, "fate_line(empty)")
		} else {
			m["fate_line"] = s
		}
	default:
		delete(m, "fate_line")
		dropped = append(dropped, "fate_line(type)")
	}

	if raw, present := m["mounts"]; present {
		mounts, ok := raw.(map[string]any)
		if !ok {
			delete(m, "mounts")
			dropped = append(dropped, "mounts(type)")
		} else {
			clean := map[string]any{}
			for name, v := range mounts {
				key := strings.ToLower(strings.TrimSpace(name))
				s, isStr := v.(string)
				s = strings.TrimSpace(s)
				if !isStr || s == "" || !slices.Contains(MountNames, key) {
					dropped = append(dropped, "mounts."+name)
					continue
				}
				clean[key] = s
			}
			if len(clean) == 0 {
				delete(m, "mounts")
			} else {
				m["mounts"] = clean
			}
		}
	}

	switch v := m["confidence"].(type) {
	case float64:
		if v > 1 {
			v /= 100
		}
		m["confidence"] = clampUnit(v)
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(v), "%")
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			if strings.HasSuffix(strings.TrimSpace(v), "%") || f > 1 {
				f /= 100
			}
			m["confidence"] = clampUnit(f)
		} else {
			m["confidence"] = 0.5
			dropped = append(dropped, "confidence(unparsable)")
		}
	case nil:
		m["confidence"] = 0.5
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return b, dropped, nil
}

func clampUnit(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
