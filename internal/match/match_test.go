package match

import (
	"strings"
	"testing"
)

// gobdSample mimics PDF-extracted regulatory text with page markers.
const gobdSample = `--- Page 10 ---
Die Erfassung von Geschäftsvorfällen hat vollständig und lückenlos zu
erfolgen. Jeder Geschäftsvorfall ist einzeln aufzuzeichnen.

--- Page 11 ---
Ein und derselbe Geschäftsvorfall darf nicht mehrfach aufgezeichnet
werden. Die Belege sind geordnet und zeitgerecht abzulegen.

--- Page 12 ---
Veränderungen an aufzeichnungspflichtigen Daten müssen nachvollziehbar
protokolliert werden.`

func TestNormalizeSpace(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "a b c", "a b c"},
		{"newlines", "a\nb\n\nc", "a b c"},
		{"tabs and runs", "a\t \tb   c", "a b c"},
		{"trimmed", "  a b  ", "a b"},
		{"empty", "   \n\t ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeSpace(tt.in); got != tt.want {
				t.Errorf("NormalizeSpace(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExactMatch(t *testing.T) {
	doc := NewDoc(gobdSample)

	// The quote wraps across a line break in the source; normalization
	// must bridge it.
	quote := "Ein und derselbe Geschäftsvorfall darf nicht mehrfach aufgezeichnet werden."
	m, ok := doc.Exact(quote)
	if !ok {
		t.Fatal("expected exact match")
	}
	if m.Score != 1.0 {
		t.Errorf("expected score 1.0, got %f", m.Score)
	}
	if m.Page != 11 {
		t.Errorf("expected page 11, got %d", m.Page)
	}
}

func TestExactMatchIsCaseSensitive(t *testing.T) {
	doc := NewDoc(gobdSample)

	if _, ok := doc.Exact("ein und derselbe geschäftsvorfall darf nicht mehrfach aufgezeichnet werden."); ok {
		t.Error("lowercased quote should not match exactly")
	}
}

func TestExactMatchAbsent(t *testing.T) {
	doc := NewDoc(gobdSample)

	if _, ok := doc.Exact("Der Unternehmer muss die Aufbewahrung für 10 Jahre sicherstellen."); ok {
		t.Error("absent quote should not match")
	}
}

func TestExactMatchEmptyQuote(t *testing.T) {
	doc := NewDoc(gobdSample)
	if _, ok := doc.Exact("   "); ok {
		t.Error("whitespace-only quote should not match")
	}
}

func TestPageAt(t *testing.T) {
	doc := NewDoc(gobdSample)

	m, ok := doc.Exact("Jeder Geschäftsvorfall ist einzeln aufzuzeichnen.")
	if !ok {
		t.Fatal("expected exact match")
	}
	if m.Page != 10 {
		t.Errorf("expected page 10, got %d", m.Page)
	}

	m, ok = doc.Exact("protokolliert werden.")
	if !ok {
		t.Fatal("expected exact match")
	}
	if m.Page != 12 {
		t.Errorf("expected page 12, got %d", m.Page)
	}
}

func TestPageAtNoMarkers(t *testing.T) {
	doc := NewDoc("plain content without any page markers at all")
	m, ok := doc.Exact("without any page markers")
	if !ok {
		t.Fatal("expected exact match")
	}
	if m.Page != 0 {
		t.Errorf("expected page 0 for unpaged content, got %d", m.Page)
	}
}

func TestFuzzyParaphrase(t *testing.T) {
	doc := NewDoc(gobdSample)

	// Word order and punctuation differ; most tokens survive.
	quote := "derselbe Geschäftsvorfall darf nicht mehrfach aufgezeichnet werden"
	best := doc.Fuzzy(quote, 2, 0, 0.65)
	if best == nil {
		t.Fatal("expected a best window")
	}
	if best.Score < 0.65 {
		t.Errorf("expected similarity >= 0.65, got %f", best.Score)
	}
	if best.Page != 11 {
		t.Errorf("expected page 11, got %d", best.Page)
	}
}

func TestFuzzyUnrelatedQuoteScoresLow(t *testing.T) {
	doc := NewDoc(gobdSample)

	quote := "Der Unternehmer muss die Aufbewahrung von steuerlich relevanten Unterlagen für 10 Jahre sicherstellen."
	best := doc.Fuzzy(quote, 2, 0, 0.65)
	if best == nil {
		t.Fatal("expected a best window even for a poor match")
	}
	if best.Score >= 0.5 {
		t.Errorf("expected low similarity for unrelated quote, got %f", best.Score)
	}
}

func TestFuzzyHintPageShortCircuits(t *testing.T) {
	doc := NewDoc(gobdSample)

	quote := "Die Belege sind geordnet und zeitgerecht abzulegen"
	best := doc.Fuzzy(quote, 2, 11, 0.65)
	if best == nil {
		t.Fatal("expected a best window")
	}
	if best.Page != 11 {
		t.Errorf("expected page 11, got %d", best.Page)
	}
	if best.Score < 0.8 {
		t.Errorf("expected high similarity, got %f", best.Score)
	}
}

func TestFuzzyWrongHintStillFindsMatch(t *testing.T) {
	doc := NewDoc(gobdSample)

	// Locator points at the wrong page; the document-wide scan must
	// still find the real location.
	quote := "Veränderungen an aufzeichnungspflichtigen Daten müssen nachvollziehbar protokolliert werden"
	best := doc.Fuzzy(quote, 2, 10, 0.65)
	if best == nil {
		t.Fatal("expected a best window")
	}
	if best.Page != 12 {
		t.Errorf("expected page 12, got %d", best.Page)
	}
	if best.Score < 0.8 {
		t.Errorf("expected high similarity, got %f", best.Score)
	}
}

func TestFuzzyEmptyInputs(t *testing.T) {
	doc := NewDoc(gobdSample)
	if best := doc.Fuzzy("", 2, 0, 0.65); best != nil {
		t.Error("expected nil for empty quote")
	}

	empty := NewDoc("")
	if best := empty.Fuzzy("some quote", 2, 0, 0.65); best != nil {
		t.Error("expected nil for empty document")
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "a b c", "a b c", 1.0, 1.0},
		{"case folded", "Alpha Beta", "alpha beta", 1.0, 1.0},
		{"punctuation stripped", "werden.", "werden", 1.0, 1.0},
		{"disjoint", "a b c", "x y z", 0.0, 0.0},
		{"partial", "a b c d", "a b x y", 0.4, 0.6},
		{"empty", "", "a b", 0.0, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if got < tt.min || got > tt.max {
				t.Errorf("Similarity(%q, %q) = %f, want within [%f, %f]", tt.a, tt.b, got, tt.min, tt.max)
			}
		})
	}
}

func TestMatchOffsetPointsIntoOriginal(t *testing.T) {
	doc := NewDoc(gobdSample)

	m, ok := doc.Exact("Die Belege sind geordnet")
	if !ok {
		t.Fatal("expected exact match")
	}
	runes := []rune(gobdSample)
	if m.Offset < 0 || m.Offset >= len(runes) {
		t.Fatalf("offset %d out of range", m.Offset)
	}
	if got := string(runes[m.Offset : m.Offset+9]); got != "Die Beleg" {
		t.Errorf("offset points at %q, want %q", got, "Die Beleg")
	}
}

func TestDocHandlesLargeContent(t *testing.T) {
	// A repetitive large document should still resolve the single
	// distinctive passage.
	var b strings.Builder
	for i := 0; i < 500; i++ {
		b.WriteString("Filler sentence about nothing in particular. ")
	}
	b.WriteString("The single distinctive passage hides here. ")
	for i := 0; i < 500; i++ {
		b.WriteString("More filler sentences about nothing. ")
	}

	doc := NewDoc(b.String())
	m, ok := doc.Exact("The single distinctive passage hides here.")
	if !ok {
		t.Fatal("expected exact match")
	}
	if m.Score != 1.0 {
		t.Errorf("expected score 1.0, got %f", m.Score)
	}
}
