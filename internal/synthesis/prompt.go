package synthesis

import (
	"strings"

	"github.com/asp2131/storia/internal/descriptor"
)

// BuildPrompt renders a descriptor set as a generation prompt for the
// ambient audio provider. Values the classifier marked "none" or "unknown"
// are left out rather than sent verbatim.
func BuildPrompt(set descriptor.Set) string {
	var b strings.Builder
	b.WriteString("Seamless ambient background audio for a ")
	b.WriteString(set.Setting)
	b.WriteString(" scene")
	if usable(set.TimeOfDay) {
		b.WriteString(" at ")
		b.WriteString(set.TimeOfDay)
	}
	b.WriteString(". Mood: ")
	b.WriteString(set.Mood)
	b.WriteString(". Atmosphere: ")
	b.WriteString(set.Atmosphere)
	b.WriteString(".")
	if usable(set.Weather) {
		b.WriteString(" Weather: ")
		b.WriteString(set.Weather)
		b.WriteString(".")
	}
	if usable(set.ActivityLevel) {
		b.WriteString(" Activity level: ")
		b.WriteString(set.ActivityLevel)
		b.WriteString(".")
	}
	if usable(set.DominantElements) {
		b.WriteString(" Featured sounds: ")
		b.WriteString(set.DominantElements)
		b.WriteString(".")
	}
	b.WriteString(" No music, no speech, loopable.")
	return b.String()
}

func usable(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "none", "unknown", "n/a":
		return false
	}
	return true
}
