// Package descriptor defines the fixed classification schema for a page of
// narrative text and the pure functions that operate on it: pairwise
// similarity, majority-vote aggregation, scene boundary detection, and
// fingerprint derivation.
package descriptor

// NumKeys is the number of attributes in the descriptor schema.
const NumKeys = 8

// Set is the closed descriptor schema produced by classifying one page (or
// aggregated over a scene). Every field must be populated; the classification
// layer validates external output before constructing a Set, so a zero value
// here always means "not classified yet", never a partial result.
type Set struct {
	Mood             string `json:"mood"`
	Setting          string `json:"setting"`
	TimeOfDay        string `json:"time_of_day"`
	Weather          string `json:"weather"`
	ActivityLevel    string `json:"activity_level"`
	Atmosphere       string `json:"atmosphere"`
	SceneType        string `json:"scene_type"`
	DominantElements string `json:"dominant_elements"`
}

// Keys returns the schema attribute names in canonical order. The order is
// stable and matches the JSON field names.
func Keys() [NumKeys]string {
	return [NumKeys]string{
		"mood",
		"setting",
		"time_of_day",
		"weather",
		"activity_level",
		"atmosphere",
		"scene_type",
		"dominant_elements",
	}
}

// Values returns the set's attribute values in canonical key order.
func (s Set) Values() [NumKeys]string {
	return [NumKeys]string{
		s.Mood,
		s.Setting,
		s.TimeOfDay,
		s.Weather,
		s.ActivityLevel,
		s.Atmosphere,
		s.SceneType,
		s.DominantElements,
	}
}

// IsZero reports whether the set has no populated attributes.
func (s Set) IsZero() bool {
	return s == Set{}
}

// Similarity returns the fraction of schema keys on which a and b hold
// identical values: 1.0 for identical sets, 0.0 for fully disjoint ones.
// Comparison is exact; classification output is already canonicalized by the
// prompt contract.
func Similarity(a, b Set) float64 {
	av, bv := a.Values(), b.Values()
	matches := 0
	for i := range av {
		if av[i] == bv[i] {
			matches++
		}
	}
	return float64(matches) / float64(NumKeys)
}

// Neutral returns the fixed fallback Set used when a page could not be
// classified or a scene has no classified member pages. The values are
// deliberately bland so the resulting ambient audio stays unobtrusive.
func Neutral() Set {
	return Set{
		Mood:             "calm",
		Setting:          "indoor",
		TimeOfDay:        "unknown",
		Weather:          "none",
		ActivityLevel:    "low",
		Atmosphere:       "neutral",
		SceneType:        "transition",
		DominantElements: "none",
	}
}
