// Package match locates quotes in source content. It provides the
// lexical half of citation verification: an exact whitespace-normalized
// substring pass and a fuzzy token-overlap pass over sliding windows.
// Semantic relevance is judged elsewhere; these passes never call out.
package match

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Match describes where a quote (or its best approximation) was found
type Match struct {
	Score  float64 // 1.0 for exact hits, token-overlap ratio otherwise
	Offset int     // Rune offset of the match in the original content
	Page   int     // 1-based page number, 0 when the source has no page markers
	Window string  // The matched text window (normalized)
}

// pageMarkerRe matches the page-break markers produced by PDF
// extraction, e.g. "--- Page 11 ---".
var pageMarkerRe = regexp.MustCompile(`--- Page (\d+) ---`)

// Doc is a source document preprocessed for repeated quote lookups.
// Building one is O(len(content)); lookups reuse the normalized text,
// the offset map back into the original content, and the page index.
type Doc struct {
	content string // Original content, untouched
	norm    string // Whitespace runs collapsed to single spaces
	offsets []int  // Rune index in norm -> rune offset in content

	tokens    []token // Case-folded tokens of norm, for the fuzzy pass
	pageStart []int   // Rune offset in content where each page begins
	pageNum   []int   // Page number parsed from the corresponding marker
}

type token struct {
	text string
	pos  int // Rune index of the token start in norm
}

// NewDoc preprocesses source content for matching.
func NewDoc(content string) *Doc {
	d := &Doc{content: content}
	d.normalize()
	d.tokenize()
	d.indexPages()
	return d
}

// normalize collapses whitespace runs to single spaces while recording,
// for every rune kept, its rune offset in the original content. Exact
// matches against norm can therefore be mapped back to real positions.
func (d *Doc) normalize() {
	var b strings.Builder
	offsets := make([]int, 0, len(d.content))
	inSpace := true // Leading whitespace is dropped entirely

	pos := 0
	for _, r := range d.content {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteRune(' ')
				offsets = append(offsets, pos)
				inSpace = true
			}
		} else {
			b.WriteRune(r)
			offsets = append(offsets, pos)
			inSpace = false
		}
		pos++
	}

	d.norm = strings.TrimRight(b.String(), " ")
	d.offsets = offsets
}

func (d *Doc) tokenize() {
	d.tokens = tokenize(d.norm)
}

// indexPages records the original rune offset and number of every
// page-break marker.
func (d *Doc) indexPages() {
	matches := pageMarkerRe.FindAllStringSubmatchIndex(d.content, -1)
	for _, m := range matches {
		num := 0
		for _, r := range d.content[m[2]:m[3]] {
			num = num*10 + int(r-'0')
		}
		d.pageStart = append(d.pageStart, utf8.RuneCountInString(d.content[:m[0]]))
		d.pageNum = append(d.pageNum, num)
	}
}

// PageAt returns the page number containing the given original rune
// offset, or 0 if the document has no page markers.
func (d *Doc) PageAt(offset int) int {
	page := 0
	for i, start := range d.pageStart {
		if start > offset {
			break
		}
		page = d.pageNum[i]
	}
	if page == 0 && len(d.pageNum) > 0 {
		// Content before the first marker belongs to the first page.
		page = d.pageNum[0]
	}
	return page
}

// Exact searches for the quote as a verbatim, case-sensitive substring
// after whitespace normalization on both sides. Returns the match and
// true on a hit.
func (d *Doc) Exact(quote string) (*Match, bool) {
	nq := NormalizeSpace(quote)
	if nq == "" {
		return nil, false
	}

	byteIdx := strings.Index(d.norm, nq)
	if byteIdx < 0 {
		return nil, false
	}

	runeIdx := utf8.RuneCountInString(d.norm[:byteIdx])
	offset := d.offsets[runeIdx]
	return &Match{
		Score:  1.0,
		Offset: offset,
		Page:   d.PageAt(offset),
		Window: nq,
	}, true
}

// Fuzzy scores the quote against sliding token windows of the document
// and returns the best-scoring window. When hintPage is non-zero the
// claimed page is scanned first and accepted immediately if it clears
// the threshold, so a correct locator avoids a full-document scan.
// Returns nil when the document or quote has no tokens.
func (d *Doc) Fuzzy(quote string, slack int, hintPage int, threshold float64) *Match {
	quoteTokens := tokenize(quote)
	if len(quoteTokens) == 0 || len(d.tokens) == 0 {
		return nil
	}
	if slack < 0 {
		slack = 0
	}

	window := len(quoteTokens) + slack
	if window > len(d.tokens) {
		window = len(d.tokens)
	}

	counts := make(map[string]int, len(quoteTokens))
	for _, t := range quoteTokens {
		counts[t.text]++
	}

	if hintPage > 0 {
		lo, hi := d.pageTokenRange(hintPage)
		if best := d.bestWindow(counts, len(quoteTokens), window, lo, hi); best != nil && best.Score >= threshold {
			return best
		}
	}

	return d.bestWindow(counts, len(quoteTokens), window, 0, len(d.tokens))
}

// bestWindow slides a fixed-size token window across [lo, hi) and
// returns the window with the highest overlap score.
func (d *Doc) bestWindow(quoteCounts map[string]int, quoteLen, window, lo, hi int) *Match {
	if hi > len(d.tokens) {
		hi = len(d.tokens)
	}
	if lo < 0 {
		lo = 0
	}
	if hi-lo < 1 {
		return nil
	}
	if window > hi-lo {
		window = hi - lo
	}

	var best *Match
	for start := lo; start+window <= hi; start++ {
		score := overlapScore(quoteCounts, quoteLen, d.tokens[start:start+window])
		if best == nil || score > best.Score {
			offset := d.offsets[d.tokens[start].pos]
			end := d.tokens[start+window-1]
			best = &Match{
				Score:  score,
				Offset: offset,
				Page:   d.PageAt(offset),
				Window: substring(d.norm, d.tokens[start].pos, end.pos+utf8.RuneCountInString(end.text)),
			}
			if score >= 1.0 {
				break
			}
		}
	}
	return best
}

// pageTokenRange returns the token index range [lo, hi) covering the
// given page. The whole document is returned when the page is unknown.
func (d *Doc) pageTokenRange(page int) (int, int) {
	startOff, endOff := -1, -1
	for i, num := range d.pageNum {
		if num == page {
			startOff = d.pageStart[i]
			if i+1 < len(d.pageStart) {
				endOff = d.pageStart[i+1]
			}
			break
		}
	}
	if startOff < 0 {
		return 0, len(d.tokens)
	}

	lo, hi := 0, len(d.tokens)
	for i, t := range d.tokens {
		orig := d.offsets[t.pos]
		if orig < startOff {
			lo = i + 1
			continue
		}
		if endOff >= 0 && orig >= endOff {
			hi = i
			break
		}
	}
	return lo, hi
}

// overlapScore computes the Dice coefficient between the quote's token
// multiset and a window of document tokens.
func overlapScore(quoteCounts map[string]int, quoteLen int, window []token) float64 {
	if quoteLen == 0 || len(window) == 0 {
		return 0
	}
	remaining := make(map[string]int, len(quoteCounts))
	for k, v := range quoteCounts {
		remaining[k] = v
	}
	common := 0
	for _, t := range window {
		if remaining[t.text] > 0 {
			remaining[t.text]--
			common++
		}
	}
	return 2 * float64(common) / float64(quoteLen+len(window))
}

// Similarity is a standalone token-overlap score between two strings,
// used when comparing a quote against already-extracted context.
func Similarity(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	counts := make(map[string]int, len(ta))
	for _, t := range ta {
		counts[t.text]++
	}
	return overlapScore(counts, len(ta), tb)
}

// NormalizeSpace collapses whitespace runs to single spaces and trims
// the ends. Case is preserved.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// tokenize splits normalized text into case-folded word tokens,
// stripping surrounding punctuation so "werden." matches "werden".
func tokenize(s string) []token {
	var out []token
	start := -1
	pos := 0
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, token{text: strings.ToLower(string(cur)), pos: start})
			cur = nil
		}
		start = -1
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			if start < 0 {
				start = pos
			}
			cur = append(cur, r)
		} else {
			flush()
		}
		pos++
	}
	flush()
	return out
}

func substring(s string, fromRune, toRune int) string {
	runes := []rune(s)
	if fromRune < 0 {
		fromRune = 0
	}
	if toRune > len(runes) {
		toRune = len(runes)
	}
	if fromRune >= toRune {
		return ""
	}
	return string(runes[fromRune:toRune])
}
