package classify

import "strings"

// DefaultMaxTextChars caps the text window embedded in the classification
// prompt. Large pages are truncated before sending, which bounds both service
// cost and latency.
const DefaultMaxTextChars = 6000

// systemPrompt pins the model to the fixed output contract. The parsing layer
// still tolerates prose and code fences around the JSON object.
const systemPrompt = `You classify passages of narrative fiction for ambient audio production. Respond with a single JSON object and nothing else.`

const promptTemplate = `Classify the following passage. Return a JSON object with exactly these keys, each a short lowercase phrase:

- "mood": emotional tone (e.g. calm, tense, joyful, somber)
- "setting": physical location (e.g. forest, city street, parlor, ship deck)
- "time_of_day": morning, afternoon, evening, night, or unknown
- "weather": weather if evident (e.g. clear, rain, storm, snow, none)
- "activity_level": low, medium, or high
- "atmosphere": overall ambience (e.g. cozy, ominous, festive, neutral)
- "scene_type": action, dialogue, description, or transition
- "dominant_elements": comma-separated ambient sound sources (e.g. "wind,birdsong")

Passage:
---
{{TEXT}}
---`

// BuildPrompt renders the classification prompt for one page, truncating the
// text window to maxChars runes. maxChars <= 0 falls back to
// DefaultMaxTextChars.
func BuildPrompt(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxTextChars
	}
	return strings.Replace(promptTemplate, "{{TEXT}}", truncate(text, maxChars), 1)
}

// truncate cuts text to at most maxChars runes, preferring the last word
// boundary in the kept window so the model never sees a split word.
func truncate(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}

	cut := string(runes[:maxChars])
	if idx := strings.LastIndexAny(cut, " \n\t"); idx > maxChars/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}
