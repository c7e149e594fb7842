package descriptor

// Aggregate merges the descriptor sets of a scene's classified member pages
// into one scene-level Set by per-key majority vote. Ties break toward the
// value seen first in page order, which keeps aggregation deterministic for a
// given input sequence. An empty input falls back to Neutral().
func Aggregate(sets []Set) Set {
	if len(sets) == 0 {
		return Neutral()
	}

	var values [NumKeys][]string
	for _, s := range sets {
		v := s.Values()
		for k := range v {
			values[k] = append(values[k], v[k])
		}
	}

	var out [NumKeys]string
	for k := range values {
		out[k] = majority(values[k])
	}

	return Set{
		Mood:             out[0],
		Setting:          out[1],
		TimeOfDay:        out[2],
		Weather:          out[3],
		ActivityLevel:    out[4],
		Atmosphere:       out[5],
		SceneType:        out[6],
		DominantElements: out[7],
	}
}

// majority returns the most frequent value, breaking ties toward the value
// whose first occurrence comes earliest.
func majority(vals []string) string {
	counts := make(map[string]int, len(vals))
	firstSeen := make(map[string]int, len(vals))
	for i, v := range vals {
		counts[v]++
		if _, ok := firstSeen[v]; !ok {
			firstSeen[v] = i
		}
	}

	best := vals[0]
	for _, v := range vals[1:] {
		if counts[v] > counts[best] {
			best = v
			continue
		}
		if counts[v] == counts[best] && firstSeen[v] < firstSeen[best] {
			best = v
		}
	}
	return best
}
