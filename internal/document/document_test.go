package document

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func sampleDocument() Document {
	return Document{
		TOC: []TOCEntry{
			{ID: "name", Title: "NAME", Level: 1},
			{ID: "options", Title: "OPTIONS", Level: 1},
		},
		Blocks: []Block{
			Heading{ID: "name", Text: "NAME", Level: 1},
			Paragraph{Inlines: []Inline{
				Text{Text: "ls - list directory contents"},
			}},
			Heading{ID: "options", Text: "OPTIONS", Level: 1},
			DefinitionList{Items: []Definition{
				{
					Term:     []Inline{Strong{Inlines: []Inline{Text{Text: "-l"}}}},
					AnchorID: "l",
					Body: []Block{Paragraph{Inlines: []Inline{
						Text{Text: "use a long listing format"},
					}}},
				},
			}},
			List{Ordered: false, Items: [][]Block{
				{Paragraph{Inlines: []Inline{Text{Text: "first"}}}},
				{Paragraph{Inlines: []Inline{
					Emphasis{Inlines: []Inline{Text{Text: "second"}}},
				}}},
			}},
			CodeBlock{Text: "ls -la /tmp"},
			Table{Rows: [][]string{{"a", "b"}, {"c", "d"}}},
			HorizontalRule{},
			Paragraph{Inlines: []Inline{
				Text{Text: "See "},
				Link{
					Href:     "/man/grep/1",
					LinkType: LinkInternal,
					Inlines:  []Inline{Code{Text: "grep(1)"}},
				},
			}},
		},
	}
}

func TestJSONRoundTrip(t *testing.T) {
	doc := sampleDocument()

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Document
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(doc, decoded) {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", decoded, doc)
	}
}

func TestJSONTypeTags(t *testing.T) {
	data, err := json.Marshal(sampleDocument())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, tag := range []string{
		`"type":"heading"`, `"type":"paragraph"`, `"type":"definition_list"`,
		`"type":"list"`, `"type":"code_block"`, `"type":"table"`,
		`"type":"horizontal_rule"`, `"type":"link"`, `"type":"strong"`,
	} {
		if !strings.Contains(string(data), tag) {
			t.Errorf("encoded document missing %s", tag)
		}
	}
}

func TestUnmarshalUnknownType(t *testing.T) {
	raw := []byte(`{"toc":[],"blocks":[{"type":"marquee"}]}`)
	var doc Document
	if err := json.Unmarshal(raw, &doc); err == nil {
		t.Fatal("expected error for unknown block type")
	}
}

func TestPlainText(t *testing.T) {
	doc := sampleDocument()
	text := PlainText(doc.Blocks)

	for _, want := range []string{
		"NAME", "ls - list directory contents", "-l",
		"use a long listing format", "ls -la /tmp", "grep(1)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("plain text missing %q in %q", want, text)
		}
	}
	if strings.Contains(text, "  ") {
		t.Errorf("plain text has unnormalized whitespace: %q", text)
	}
}

func TestInlineText(t *testing.T) {
	inlines := []Inline{
		Text{Text: "see  "},
		Strong{Inlines: []Inline{Text{Text: "also"}}},
		Text{Text: " grep"},
	}
	if got, want := InlineText(inlines), "see also grep"; got != want {
		t.Errorf("InlineText = %q, want %q", got, want)
	}
}
