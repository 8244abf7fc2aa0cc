package ranking

import (
	"reflect"
	"testing"
)

func TestTrigrams(t *testing.T) {
	got := Trigrams("cat")
	want := map[string]struct{}{
		"  c": {}, " ca": {}, "cat": {}, "at ": {},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Trigrams(cat) = %v, want %v", got, want)
	}
}

func TestTrigramsMultiWord(t *testing.T) {
	// Words are extracted and padded independently, punctuation ignored.
	a := Trigrams("list directory")
	b := Trigrams("directory, list!")
	if !reflect.DeepEqual(a, b) {
		t.Errorf("trigram sets differ: %v vs %v", a, b)
	}
}

func TestSimilarity(t *testing.T) {
	if sim := Similarity("grep", "grep"); sim != 1.0 {
		t.Errorf("identical strings: similarity = %v, want 1.0", sim)
	}
	if sim := Similarity("grep", "xyzzy"); sim != 0.0 {
		t.Errorf("disjoint strings: similarity = %v, want 0.0", sim)
	}
	if sim := Similarity("", "grep"); sim != 0.0 {
		t.Errorf("empty string: similarity = %v, want 0.0", sim)
	}
	// A one-letter typo keeps most trigrams shared.
	if sim := Similarity("grep", "gerp"); sim <= 0 || sim >= 1 {
		t.Errorf("typo similarity = %v, want in (0, 1)", sim)
	}
	if Similarity("chmod", "chmox") < Similarity("chmod", "cat") {
		t.Error("near-identical name should outscore an unrelated one")
	}
}

func TestScoreExactNameFirst(t *testing.T) {
	candidates := []Candidate{
		{PageID: "b", Name: "grepdiff", Section: "1", LexRank: 1.0},
		{PageID: "a", Name: "grep", Section: "1", Description: "print lines matching a pattern"},
		{PageID: "c", Name: "egrep", Section: "1", LexRank: 1.0, Description: "grep grep grep"},
	}
	results := Score("grep", candidates)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Name != "grep" {
		t.Errorf("top result = %q, want exact match grep", results[0].Name)
	}
	if results[1].Name != "grepdiff" {
		t.Errorf("second result = %q, want prefix match grepdiff", results[1].Name)
	}
}

func TestScoreDeterministicOrder(t *testing.T) {
	candidates := []Candidate{
		{PageID: "p2", Name: "intro", Section: "3"},
		{PageID: "p1", Name: "intro", Section: "1"},
		{PageID: "p3", Name: "intro", Section: "1p"},
	}
	first := Score("intro", candidates)
	for range 10 {
		again := Score("intro", candidates)
		if !reflect.DeepEqual(first, again) {
			t.Fatal("ranking is not deterministic")
		}
	}
	if first[0].Section != "1" || first[1].Section != "1p" || first[2].Section != "3" {
		t.Errorf("tied scores should order by section: got %q, %q, %q",
			first[0].Section, first[1].Section, first[2].Section)
	}
}

func TestScoreShorterNameWinsTies(t *testing.T) {
	candidates := []Candidate{
		{PageID: "b", Name: "zshall", Section: "1"},
		{PageID: "a", Name: "zsh", Section: "1"},
	}
	results := Score("zs", candidates)
	if results[0].Name != "zsh" {
		t.Errorf("top result = %q, want shorter name zsh", results[0].Name)
	}
}

func TestSuggest(t *testing.T) {
	candidates := []Candidate{
		{PageID: "a", Name: "chmod", Section: "1", Description: "change file mode bits"},
		{PageID: "b", Name: "chmod", Section: "2", Description: "change permissions of a file"},
		{PageID: "c", Name: "chown", Section: "1"},
		{PageID: "d", Name: "tar", Section: "1"},
	}
	suggestions := Suggest("chmo", candidates, 10)
	if len(suggestions) == 0 {
		t.Fatal("expected suggestions for chmo")
	}
	if suggestions[0].Name != "chmod" {
		t.Errorf("top suggestion = %q, want chmod", suggestions[0].Name)
	}
	// Deduped by name: the section 2 page must not appear separately.
	seen := map[string]int{}
	for _, s := range suggestions {
		seen[s.Name]++
		if s.Name == "tar" {
			t.Error("tar should not be suggested for chmo")
		}
	}
	if seen["chmod"] != 1 {
		t.Errorf("chmod suggested %d times, want 1", seen["chmod"])
	}
}

func TestSuggestLimit(t *testing.T) {
	var candidates []Candidate
	for _, n := range []string{"ga", "gb", "gc", "gd"} {
		candidates = append(candidates, Candidate{PageID: n, Name: "grep" + n, Section: "1"})
	}
	suggestions := Suggest("grep", candidates, 2)
	if len(suggestions) != 2 {
		t.Fatalf("got %d suggestions, want 2", len(suggestions))
	}
}

func TestNormalizeQuery(t *testing.T) {
	if got := NormalizeQuery("  GREP  "); got != "grep" {
		t.Errorf("NormalizeQuery = %q, want grep", got)
	}
}
