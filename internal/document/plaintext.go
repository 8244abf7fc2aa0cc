package document

import "strings"

// PlainText flattens a block sequence into whitespace-normalized text.
// The result feeds the full-text index and is never rendered.
func PlainText(blocks []Block) string {
	var b strings.Builder
	writeBlocksText(&b, blocks)
	return strings.Join(strings.Fields(b.String()), " ")
}

// InlineText flattens an inline sequence into its raw text.
func InlineText(inlines []Inline) string {
	var b strings.Builder
	writeInlinesText(&b, inlines)
	return strings.Join(strings.Fields(b.String()), " ")
}

func writeBlocksText(b *strings.Builder, blocks []Block) {
	for _, block := range blocks {
		switch v := block.(type) {
		case Heading:
			b.WriteString(v.Text)
			b.WriteByte('\n')
		case Paragraph:
			writeInlinesText(b, v.Inlines)
			b.WriteByte('\n')
		case List:
			for _, item := range v.Items {
				writeBlocksText(b, item)
			}
		case DefinitionList:
			for _, item := range v.Items {
				writeInlinesText(b, item.Term)
				b.WriteByte('\n')
				writeBlocksText(b, item.Body)
			}
		case CodeBlock:
			b.WriteString(v.Text)
			b.WriteByte('\n')
		case Table:
			for _, row := range v.Rows {
				b.WriteString(strings.Join(row, " "))
				b.WriteByte('\n')
			}
		case HorizontalRule:
			// No text content.
		}
	}
}

func writeInlinesText(b *strings.Builder, inlines []Inline) {
	for _, in := range inlines {
		switch v := in.(type) {
		case Text:
			b.WriteString(v.Text)
		case Code:
			b.WriteString(v.Text)
		case Emphasis:
			writeInlinesText(b, v.Inlines)
		case Strong:
			writeInlinesText(b, v.Inlines)
		case Link:
			writeInlinesText(b, v.Inlines)
		}
		b.WriteByte(' ')
	}
}
