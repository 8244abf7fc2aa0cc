package parser

import (
	"strings"
	"testing"

	"github.com/mancorpus/mancorpus/internal/document"
)

const lsFragment = `<section class="Sh">
<h1 class="Sh" id="NAME">NAME</h1>
<p class="Pp">ls - list directory contents</p>
</section>
<section class="Sh">
<h1 class="Sh" id="SYNOPSIS">SYNOPSIS</h1>
<p class="Pp"><code class="Nm">ls</code> [<var>OPTION</var>]... [<var>FILE</var>]...</p>
</section>
<section class="Sh">
<h1 class="Sh" id="OPTIONS">OPTIONS</h1>
<dl class="Bl-tag">
<dt id="l"><code class="Fl">-l</code></dt>
<dd>use a long listing format</dd>
<dt id="width"><code class="Fl">--width</code> <var>COLS</var></dt>
<dd>set output width to COLS</dd>
</dl>
</section>
<section class="Sh">
<h1 class="Sh" id="SEE_ALSO">SEE ALSO</h1>
<p class="Pp"><a class="Xr" href="dircolors.1.html">dircolors(1)</a>, and the
full documentation of cp(1), dircolors(1)</p>
</section>`

func TestParseNameSection(t *testing.T) {
	frag, err := Parse(lsFragment)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if frag.Title != "ls" {
		t.Errorf("title = %q, want ls", frag.Title)
	}
	if frag.Description != "list directory contents" {
		t.Errorf("description = %q, want list directory contents", frag.Description)
	}
}

func TestParseTOC(t *testing.T) {
	frag, err := Parse(lsFragment)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var titles []string
	for _, entry := range frag.Doc.TOC {
		if entry.Level == 1 {
			titles = append(titles, entry.Title)
		}
		if entry.ID == "" {
			t.Errorf("TOC entry %q has empty id", entry.Title)
		}
	}
	want := []string{"NAME", "SYNOPSIS", "OPTIONS", "SEE ALSO"}
	if len(titles) != len(want) {
		t.Fatalf("TOC titles = %v, want %v", titles, want)
	}
	for i := range want {
		if titles[i] != want[i] {
			t.Errorf("TOC[%d] = %q, want %q", i, titles[i], want[i])
		}
	}
}

func TestParseSynopsis(t *testing.T) {
	frag, err := Parse(lsFragment)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(frag.Synopsis) == 0 {
		t.Fatal("no synopsis blocks")
	}
	text := document.PlainText(frag.Synopsis)
	if !strings.Contains(text, "ls") || !strings.Contains(text, "OPTION") {
		t.Errorf("synopsis text = %q", text)
	}
	if strings.Contains(text, "SYNOPSIS") {
		t.Errorf("synopsis should not include its own heading: %q", text)
	}
}

func TestParseOptions(t *testing.T) {
	frag, err := Parse(lsFragment)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(frag.Options) != 2 {
		t.Fatalf("got %d options, want 2: %+v", len(frag.Options), frag.Options)
	}

	first := frag.Options[0]
	if first.Flags != "-l" {
		t.Errorf("flags = %q, want -l", first.Flags)
	}
	if first.Description != "use a long listing format" {
		t.Errorf("description = %q", first.Description)
	}
	if first.AnchorID == "" {
		t.Error("option anchor id is empty")
	}

	second := frag.Options[1]
	if second.Flags != "--width" {
		t.Errorf("flags = %q, want --width", second.Flags)
	}
	if second.Argument != "COLS" {
		t.Errorf("argument = %q, want COLS", second.Argument)
	}
}

func TestParseOptionsOutsideOptionsSection(t *testing.T) {
	src := `<section class="Sh">
<h1 class="Sh" id="COMMANDS">COMMANDS</h1>
<dl class="Bl-tag">
<dt>checkout</dt>
<dd>switch branches</dd>
</dl>
<dl class="Bl-tag">
<dt id="v"><code class="Fl">-v</code></dt>
<dd>be verbose</dd>
</dl>
</section>`
	frag, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// Only the flag-shaped list counts outside an OPTIONS section.
	if len(frag.Options) != 1 {
		t.Fatalf("got %d options, want 1: %+v", len(frag.Options), frag.Options)
	}
	if frag.Options[0].Flags != "-v" {
		t.Errorf("flags = %q, want -v", frag.Options[0].Flags)
	}
}

func TestParseSeeAlso(t *testing.T) {
	frag, err := Parse(lsFragment)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []struct{ name, section string }{
		{"dircolors", "1"},
		{"cp", "1"},
	}
	if len(frag.SeeAlso) != len(want) {
		t.Fatalf("see also = %+v, want %d entries", frag.SeeAlso, len(want))
	}
	for i, w := range want {
		if frag.SeeAlso[i].Name != w.name || frag.SeeAlso[i].Section != w.section {
			t.Errorf("see also[%d] = %+v, want %s(%s)", i, frag.SeeAlso[i], w.name, w.section)
		}
		if frag.SeeAlso[i].ResolvedPageID != "" {
			t.Errorf("see also[%d] resolved before resolution", i)
		}
	}
}

func TestParseCrossReferenceLinks(t *testing.T) {
	frag, err := Parse(lsFragment)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var found bool
	for _, b := range frag.Doc.Blocks {
		para, ok := b.(document.Paragraph)
		if !ok {
			continue
		}
		for _, in := range para.Inlines {
			link, ok := in.(document.Link)
			if !ok {
				continue
			}
			if link.Href == "/man/dircolors/1" {
				found = true
				if link.LinkType != "" {
					t.Errorf("xref classified before resolution: %q", link.LinkType)
				}
			}
		}
	}
	if !found {
		t.Error("mandoc Xr anchor was not normalized to /man/dircolors/1")
	}
}

func TestParseSlugDedup(t *testing.T) {
	src := `<section class="Sh"><h1 class="Sh">NOTES</h1><p>a</p></section>
<section class="Sh"><h1 class="Sh">NOTES</h1><p>b</p></section>`
	frag, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(frag.Doc.TOC) != 2 {
		t.Fatalf("TOC = %+v, want 2 entries", frag.Doc.TOC)
	}
	if frag.Doc.TOC[0].ID == frag.Doc.TOC[1].ID {
		t.Errorf("duplicate section ids: %q", frag.Doc.TOC[0].ID)
	}
}

func TestParseEmptyInput(t *testing.T) {
	frag, err := Parse("")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(frag.Doc.Blocks) != 0 {
		t.Errorf("empty input produced blocks: %+v", frag.Doc.Blocks)
	}
	if frag.Title != "" || frag.Description != "" {
		t.Errorf("empty input produced metadata: %q / %q", frag.Title, frag.Description)
	}
}

func TestParseMalformedDefinitionList(t *testing.T) {
	src := `<section class="Sh"><h1 class="Sh">DESCRIPTION</h1>
<dl>just loose text, no terms</dl></section>`
	frag, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	text := document.PlainText(frag.Doc.Blocks)
	if !strings.Contains(text, "just loose text") {
		t.Errorf("malformed dl content lost: %q", text)
	}
	for _, b := range frag.Doc.Blocks {
		if _, ok := b.(document.DefinitionList); ok {
			t.Error("termless dl should degrade to a paragraph")
		}
	}
}

func TestParseCodeBlock(t *testing.T) {
	src := `<section class="Sh"><h1 class="Sh">EXAMPLES</h1>
<pre>tar -czf archive.tar.gz dir/
tar -xzf archive.tar.gz</pre></section>`
	frag, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var code *document.CodeBlock
	for _, b := range frag.Doc.Blocks {
		if cb, ok := b.(document.CodeBlock); ok {
			code = &cb
			break
		}
	}
	if code == nil {
		t.Fatal("no code block parsed")
	}
	if !strings.Contains(code.Text, "tar -czf archive.tar.gz dir/\ntar -xzf") {
		t.Errorf("code block lost newlines: %q", code.Text)
	}
}

func TestSplitNameLine(t *testing.T) {
	cases := []struct {
		line        string
		title, desc string
	}{
		{"ls - list directory contents", "ls", "list directory contents"},
		{"tar -- an archiving utility", "tar", "an archiving utility"},
		{"plainname", "plainname", ""},
		{"grep, egrep - print lines", "grep, egrep", "print lines"},
	}
	for _, tc := range cases {
		title, desc := splitNameLine(tc.line)
		if title != tc.title || desc != tc.desc {
			t.Errorf("splitNameLine(%q) = (%q, %q), want (%q, %q)",
				tc.line, title, desc, tc.title, tc.desc)
		}
	}
}

func TestSlugger(t *testing.T) {
	s := newSlugger()
	if got := s.slug("SEE ALSO"); got != "see-also" {
		t.Errorf("slug = %q, want see-also", got)
	}
	if got := s.slug("SEE ALSO"); got != "see-also-2" {
		t.Errorf("duplicate slug = %q, want see-also-2", got)
	}
	if got := s.slug("!!!"); got != "section" {
		t.Errorf("empty slug = %q, want section", got)
	}
}
