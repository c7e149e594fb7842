package ingest

import (
	"strings"
	"unicode/utf8"
)

const (
	// maxPageChars caps the length of one page. Classification prompts
	// carry one page of text, so this also bounds prompt size.
	maxPageChars = 1500

	// minPageChars drops fragments too short to classify, like a lone
	// chapter heading or trailing whitespace noise.
	minPageChars = 50
)

// splitPages cuts document text into page-sized chunks, preferring to break
// at paragraph boundaries, then sentence ends, then any whitespace. Chunks
// shorter than minPageChars are dropped; page numbers stay contiguous.
func splitPages(text string) []string {
	rest := normalize(text)

	var pages []string
	for {
		rest = strings.TrimLeft(rest, " \t\n")
		if rest == "" {
			break
		}
		if len(rest) <= maxPageChars {
			appendPage(&pages, rest)
			break
		}
		cut := cutAt(rest)
		appendPage(&pages, rest[:cut])
		rest = rest[cut:]
	}
	return pages
}

func appendPage(pages *[]string, chunk string) {
	chunk = strings.TrimRight(chunk, " \t\n")
	if utf8.RuneCountInString(chunk) >= minPageChars {
		*pages = append(*pages, chunk)
	}
}

// cutAt returns the byte offset to split text at. Boundary candidates below
// minPageChars are ignored so a break near the start cannot shave off a
// fragment that would then be dropped.
func cutAt(text string) int {
	window := text[:maxPageChars]

	if i := strings.LastIndex(window, "\n\n"); i >= minPageChars {
		return i
	}
	if i := lastSentenceEnd(window); i >= minPageChars {
		return i
	}
	if i := strings.LastIndexAny(window, " \t\n"); i >= minPageChars {
		return i
	}

	// No usable boundary; hard cut on a rune border.
	cut := maxPageChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return cut
}

// lastSentenceEnd finds the offset just past the last terminal punctuation
// that is followed by whitespace, or -1 when the window has none.
func lastSentenceEnd(window string) int {
	for i := len(window) - 2; i >= 0; i-- {
		switch window[i] {
		case '.', '!', '?':
			switch window[i+1] {
			case ' ', '\t', '\n':
				return i + 1
			}
		}
	}
	return -1
}

// normalize converts Windows and legacy Mac line endings to plain newlines.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
