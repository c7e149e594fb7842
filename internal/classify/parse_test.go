package classify

import (
	"errors"
	"testing"
)

const validJSON = `{
	"mood": "tense",
	"setting": "forest",
	"time_of_day": "night",
	"weather": "storm",
	"activity_level": "high",
	"atmosphere": "ominous",
	"scene_type": "action",
	"dominant_elements": "wind,rain"
}`

func TestParseDescriptorsPureJSON(t *testing.T) {
	set, err := ParseDescriptors(validJSON)
	if err != nil {
		t.Fatalf("ParseDescriptors() error = %v", err)
	}
	if set.Mood != "tense" || set.Setting != "forest" || set.DominantElements != "wind,rain" {
		t.Errorf("unexpected descriptors: %+v", set)
	}
}

func TestParseDescriptorsCodeFence(t *testing.T) {
	content := "```json\n" + validJSON + "\n```"
	set, err := ParseDescriptors(content)
	if err != nil {
		t.Fatalf("ParseDescriptors(fenced) error = %v", err)
	}
	if set.Setting != "forest" {
		t.Errorf("setting = %q, want %q", set.Setting, "forest")
	}
}

func TestParseDescriptorsProseWrapped(t *testing.T) {
	content := "Here is the classification you asked for:\n\n" + validJSON + "\n\nLet me know if you need anything else."
	set, err := ParseDescriptors(content)
	if err != nil {
		t.Fatalf("ParseDescriptors(prose) error = %v", err)
	}
	if set.Weather != "storm" {
		t.Errorf("weather = %q, want %q", set.Weather, "storm")
	}
}

func TestParseDescriptorsFirstBalancedObject(t *testing.T) {
	// Two objects in the output: the first balanced one wins.
	content := validJSON + "\n{\"mood\": \"other\"}"
	set, err := ParseDescriptors(content)
	if err != nil {
		t.Fatalf("ParseDescriptors(two objects) error = %v", err)
	}
	if set.Mood != "tense" {
		t.Errorf("mood = %q, want first object's %q", set.Mood, "tense")
	}
}

func TestParseDescriptorsBracesInsideStrings(t *testing.T) {
	content := `{"mood": "calm", "setting": "a {strange} place", "time_of_day": "day",
		"weather": "none", "activity_level": "low", "atmosphere": "odd",
		"scene_type": "description", "dominant_elements": "none"}`
	set, err := ParseDescriptors(content)
	if err != nil {
		t.Fatalf("ParseDescriptors(braces in string) error = %v", err)
	}
	if set.Setting != "a {strange} place" {
		t.Errorf("setting = %q", set.Setting)
	}
}

func TestParseDescriptorsMissingKeys(t *testing.T) {
	content := `{"mood": "tense", "setting": "forest"}`
	_, err := ParseDescriptors(content)
	if err == nil {
		t.Fatal("ParseDescriptors() expected error for missing keys")
	}
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if ce.Kind != KindMissingKeys {
		t.Errorf("kind = %q, want %q", ce.Kind, KindMissingKeys)
	}
	if len(ce.MissingKeys) != 6 {
		t.Errorf("missing keys = %v, want 6 entries", ce.MissingKeys)
	}
}

func TestParseDescriptorsEmptyValueCountsAsMissing(t *testing.T) {
	content := `{"mood": " ", "setting": "forest", "time_of_day": "night",
		"weather": "storm", "activity_level": "high", "atmosphere": "ominous",
		"scene_type": "action", "dominant_elements": "wind"}`
	_, err := ParseDescriptors(content)
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindMissingKeys {
		t.Fatalf("error = %v, want missing_keys", err)
	}
	if len(ce.MissingKeys) != 1 || ce.MissingKeys[0] != "mood" {
		t.Errorf("missing keys = %v, want [mood]", ce.MissingKeys)
	}
}

func TestParseDescriptorsNoJSON(t *testing.T) {
	_, err := ParseDescriptors("I could not classify this passage, sorry.")
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindUnparseable {
		t.Fatalf("error = %v, want unparseable", err)
	}
}

func TestParseDescriptorsEmptyResponse(t *testing.T) {
	_, err := ParseDescriptors("   ")
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != KindUnparseable {
		t.Fatalf("error = %v, want unparseable", err)
	}
}

func TestParseDescriptorsTrimsValues(t *testing.T) {
	content := `{"mood": " tense ", "setting": "forest", "time_of_day": "night",
		"weather": "storm", "activity_level": "high", "atmosphere": "ominous",
		"scene_type": "action", "dominant_elements": "wind"}`
	set, err := ParseDescriptors(content)
	if err != nil {
		t.Fatalf("ParseDescriptors() error = %v", err)
	}
	if set.Mood != "tense" {
		t.Errorf("mood = %q, want trimmed %q", set.Mood, "tense")
	}
}
