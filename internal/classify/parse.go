package classify

import (
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/asp2131/storia/internal/descriptor"
)

// descriptorSchema is the canonical JSON schema for the classification
// response. Validation runs before a descriptor.Set is constructed so a
// partial response can never leak into the pipeline.
const descriptorSchema = `{
	"type": "object",
	"required": [
		"mood",
		"setting",
		"time_of_day",
		"weather",
		"activity_level",
		"atmosphere",
		"scene_type",
		"dominant_elements"
	],
	"properties": {
		"mood": {"type": "string", "minLength": 1},
		"setting": {"type": "string", "minLength": 1},
		"time_of_day": {"type": "string", "minLength": 1},
		"weather": {"type": "string", "minLength": 1},
		"activity_level": {"type": "string", "minLength": 1},
		"atmosphere": {"type": "string", "minLength": 1},
		"scene_type": {"type": "string", "minLength": 1},
		"dominant_elements": {"type": "string", "minLength": 1}
	}
}`

var compiledSchema = jsonschema.MustCompileString("descriptor.json", descriptorSchema)

// ParseDescriptors extracts the first balanced JSON object from raw model
// output and validates it against the descriptor schema. The service may wrap
// the object in prose or markdown code fences; both are tolerated. Returns
// *Error with KindUnparseable when no JSON object can be recovered and
// KindMissingKeys when schema keys are absent or empty.
func ParseDescriptors(content string) (descriptor.Set, error) {
	raw, err := extractObject(content)
	if err != nil {
		return descriptor.Set{}, err
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return descriptor.Set{}, &Error{Kind: KindUnparseable, Message: "response JSON is not an object"}
	}

	if missing := missingKeys(doc); len(missing) > 0 {
		return descriptor.Set{}, &Error{Kind: KindMissingKeys, MissingKeys: missing}
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return descriptor.Set{}, &Error{Kind: KindUnparseable, Message: err.Error()}
	}
	if err := compiledSchema.Validate(parsed); err != nil {
		return descriptor.Set{}, &Error{Kind: KindUnparseable, Message: "schema validation failed: " + err.Error()}
	}

	var set descriptor.Set
	if err := json.Unmarshal(raw, &set); err != nil {
		return descriptor.Set{}, &Error{Kind: KindUnparseable, Message: err.Error()}
	}
	return trimSet(set), nil
}

// extractObject locates the first balanced JSON object in content. Candidate
// order: the raw text, the text with code fences stripped, then a balanced
// brace scan from the first "{".
func extractObject(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &Error{Kind: KindUnparseable, Message: "empty response"}
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}

	seen := make(map[string]struct{}, len(candidates)+1)
	for _, candidate := range candidates {
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}

		if balanced := balancedObject(candidate); balanced != "" {
			var probe map[string]any
			if err := json.Unmarshal([]byte(balanced), &probe); err == nil {
				return json.RawMessage(balanced), nil
			}
		}
	}

	return nil, &Error{Kind: KindUnparseable, Message: "no JSON object found in response"}
}

// stripCodeFences removes a surrounding markdown code fence, if present.
func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	// Drop the opening fence line, then the closing fence if present.
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// balancedObject returns the first balanced {...} region of content,
// respecting string literals and escapes, or "" when none closes.
func balancedObject(content string) string {
	start := strings.Index(content, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}

// missingKeys returns schema keys that are absent, non-string, or empty after
// trimming, in canonical order.
func missingKeys(doc map[string]any) []string {
	var missing []string
	for _, key := range descriptor.Keys() {
		v, ok := doc[key]
		if !ok {
			missing = append(missing, key)
			continue
		}
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

func trimSet(s descriptor.Set) descriptor.Set {
	return descriptor.Set{
		Mood:             strings.TrimSpace(s.Mood),
		Setting:          strings.TrimSpace(s.Setting),
		TimeOfDay:        strings.TrimSpace(s.TimeOfDay),
		Weather:          strings.TrimSpace(s.Weather),
		ActivityLevel:    strings.TrimSpace(s.ActivityLevel),
		Atmosphere:       strings.TrimSpace(s.Atmosphere),
		SceneType:        strings.TrimSpace(s.SceneType),
		DominantElements: strings.TrimSpace(s.DominantElements),
	}
}
