package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// slugger derives page-unique anchor ids. Heading and option anchors share
// one registry so no two blocks in a page carry the same id; the second
// occurrence of a slug gets "-2", the third "-3", and so on.
type slugger struct {
	seen map[string]int
}

func newSlugger() *slugger {
	return &slugger{seen: map[string]int{}}
}

func (s *slugger) slug(text string) string {
	base := strings.ToLower(text)
	base = nonAlphanumeric.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")
	if base == "" {
		base = "section"
	}
	s.seen[base]++
	if n := s.seen[base]; n > 1 {
		return base + "-" + strconv.Itoa(n)
	}
	return base
}
