package descriptor

// DefaultBoundaryThreshold is the similarity below which two adjacent pages
// are split into separate scenes.
const DefaultBoundaryThreshold = 0.6

// Span is a contiguous, inclusive index range [Start, End] into the ordered
// page sequence handed to Detect. Callers translate indices to page numbers.
type Span struct {
	Start int
	End   int
}

// Len returns the number of pages covered by the span.
func (s Span) Len() int {
	return s.End - s.Start + 1
}

// Detect computes scene boundaries over an ordered sequence of per-page
// descriptor sets. A new scene starts at page i when the similarity between
// page i-1 and page i falls strictly below threshold; otherwise page i joins
// the current scene. The first page always starts a scene, so the returned
// spans partition [0, len(sets)-1] with no gaps and no overlaps. Detection is
// deterministic: the same sequence and threshold always produce the same
// spans.
func Detect(sets []Set, threshold float64) []Span {
	if len(sets) == 0 {
		return nil
	}

	spans := []Span{{Start: 0, End: 0}}
	for i := 1; i < len(sets); i++ {
		if Similarity(sets[i-1], sets[i]) < threshold {
			spans = append(spans, Span{Start: i, End: i})
			continue
		}
		spans[len(spans)-1].End = i
	}
	return spans
}
