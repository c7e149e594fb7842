package descriptor

import "strings"

// Fingerprint is the normalized (setting, mood, intensity) triple used as the
// soundscape cache key. It is derived from a Set and never stored as its own
// entity. Intensity is the set's activity level; two sets that differ only in
// case or whitespace produce equal fingerprints.
type Fingerprint struct {
	Setting   string
	Mood      string
	Intensity string
}

// NewFingerprint derives the normalized fingerprint for a descriptor set.
func NewFingerprint(s Set) Fingerprint {
	return Fingerprint{
		Setting:   normalize(s.Setting),
		Mood:      normalize(s.Mood),
		Intensity: normalize(s.ActivityLevel),
	}
}

// Key returns the canonical string form used for index lookups,
// e.g. "forest|tense|high".
func (f Fingerprint) Key() string {
	return f.Setting + "|" + f.Mood + "|" + f.Intensity
}

// String implements fmt.Stringer.
func (f Fingerprint) String() string {
	return f.Key()
}

// normalize lower-cases, trims, and collapses internal whitespace so that
// "Forest " and "forest" compare equal.
func normalize(v string) string {
	return strings.ToLower(strings.Join(strings.Fields(v), " "))
}
