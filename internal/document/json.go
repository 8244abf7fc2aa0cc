package document

import (
	"encoding/json"
	"fmt"
)

// The JSON form is a tagged envelope per node: {"type": "...", ...}. The
// stored shape is part of the dataset contract, so the tag strings below
// must stay stable across releases.

const (
	typeHeading        = "heading"
	typeParagraph      = "paragraph"
	typeList           = "list"
	typeDefinitionList = "definition_list"
	typeCodeBlock      = "code_block"
	typeTable          = "table"
	typeHorizontalRule = "horizontal_rule"

	typeText     = "text"
	typeCode     = "code"
	typeEmphasis = "emphasis"
	typeStrong   = "strong"
	typeLink     = "link"
)

func (d Document) MarshalJSON() ([]byte, error) {
	blocks, err := MarshalBlocks(d.Blocks)
	if err != nil {
		return nil, err
	}
	toc := d.TOC
	if toc == nil {
		toc = []TOCEntry{}
	}
	return json.Marshal(struct {
		TOC    []TOCEntry        `json:"toc"`
		Blocks []json.RawMessage `json:"blocks"`
	}{TOC: toc, Blocks: blocks})
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var raw struct {
		TOC    []TOCEntry        `json:"toc"`
		Blocks []json.RawMessage `json:"blocks"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	blocks, err := UnmarshalBlocks(raw.Blocks)
	if err != nil {
		return err
	}
	d.TOC = raw.TOC
	d.Blocks = blocks
	return nil
}

// MarshalBlocks encodes a block sequence into tagged JSON envelopes.
func MarshalBlocks(blocks []Block) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(blocks))
	for _, b := range blocks {
		raw, err := marshalBlock(b)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func marshalBlock(b Block) (json.RawMessage, error) {
	switch v := b.(type) {
	case Heading:
		return json.Marshal(struct {
			Type  string `json:"type"`
			ID    string `json:"id"`
			Text  string `json:"text"`
			Level int    `json:"level"`
		}{typeHeading, v.ID, v.Text, v.Level})
	case Paragraph:
		inlines, err := marshalInlines(v.Inlines)
		if err != nil {
			return nil, err
		}
		return json.Marshal(struct {
			Type    string            `json:"type"`
			Inlines []json.RawMessage `json:"inlines"`
		}{typeParagraph, inlines})
	case List:
		items := make([][]json.RawMessage, 0, len(v.Items))
		for _, item := range v.Items {
			enc, err := MarshalBlocks(item)
			if err != nil {
				return nil, err
			}
			items = append(items, enc)
		}
		return json.Marshal(struct {
			Type    string              `json:"type"`
			Ordered bool                `json:"ordered"`
			Items   [][]json.RawMessage `json:"items"`
		}{typeList, v.Ordered, items})
	case DefinitionList:
		type defJSON struct {
			Term     []json.RawMessage `json:"term"`
			AnchorID string            `json:"anchorId"`
			Body     []json.RawMessage `json:"body"`
		}
		items := make([]defJSON, 0, len(v.Items))
		for _, item := range v.Items {
			term, err := marshalInlines(item.Term)
			if err != nil {
				return nil, err
			}
			body, err := MarshalBlocks(item.Body)
			if err != nil {
				return nil, err
			}
			items = append(items, defJSON{term, item.AnchorID, body})
		}
		return json.Marshal(struct {
			Type  string    `json:"type"`
			Items []defJSON `json:"items"`
		}{typeDefinitionList, items})
	case CodeBlock:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{typeCodeBlock, v.Text})
	case Table:
		return json.Marshal(struct {
			Type string     `json:"type"`
			Rows [][]string `json:"rows"`
		}{typeTable, v.Rows})
	case HorizontalRule:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{typeHorizontalRule})
	default:
		return nil, fmt.Errorf("unknown block type %T", b)
	}
}

// UnmarshalBlocks decodes tagged block envelopes.
func UnmarshalBlocks(raws []json.RawMessage) ([]Block, error) {
	out := make([]Block, 0, len(raws))
	for _, raw := range raws {
		b, err := unmarshalBlock(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func unmarshalBlock(raw json.RawMessage) (Block, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, err
	}
	switch tag.Type {
	case typeHeading:
		var v struct {
			ID    string `json:"id"`
			Text  string `json:"text"`
			Level int    `json:"level"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return Heading{ID: v.ID, Text: v.Text, Level: v.Level}, nil
	case typeParagraph:
		var v struct {
			Inlines []json.RawMessage `json:"inlines"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		inlines, err := unmarshalInlines(v.Inlines)
		if err != nil {
			return nil, err
		}
		return Paragraph{Inlines: inlines}, nil
	case typeList:
		var v struct {
			Ordered bool                `json:"ordered"`
			Items   [][]json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		items := make([][]Block, 0, len(v.Items))
		for _, item := range v.Items {
			blocks, err := UnmarshalBlocks(item)
			if err != nil {
				return nil, err
			}
			items = append(items, blocks)
		}
		return List{Ordered: v.Ordered, Items: items}, nil
	case typeDefinitionList:
		var v struct {
			Items []struct {
				Term     []json.RawMessage `json:"term"`
				AnchorID string            `json:"anchorId"`
				Body     []json.RawMessage `json:"body"`
			} `json:"items"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		items := make([]Definition, 0, len(v.Items))
		for _, item := range v.Items {
			term, err := unmarshalInlines(item.Term)
			if err != nil {
				return nil, err
			}
			body, err := UnmarshalBlocks(item.Body)
			if err != nil {
				return nil, err
			}
			items = append(items, Definition{Term: term, AnchorID: item.AnchorID, Body: body})
		}
		return DefinitionList{Items: items}, nil
	case typeCodeBlock:
		var v struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return CodeBlock{Text: v.Text}, nil
	case typeTable:
		var v struct {
			Rows [][]string `json:"rows"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return Table{Rows: v.Rows}, nil
	case typeHorizontalRule:
		return HorizontalRule{}, nil
	default:
		return nil, fmt.Errorf("unknown block type %q", tag.Type)
	}
}

func marshalInlines(inlines []Inline) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(inlines))
	for _, in := range inlines {
		raw, err := marshalInline(in)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func marshalInline(in Inline) (json.RawMessage, error) {
	switch v := in.(type) {
	case Text:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{typeText, v.Text})
	case Code:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{typeCode, v.Text})
	case Emphasis:
		inner, err := marshalInlines(v.Inlines)
		if err != nil {
			return nil, err
		}
		return json.Marshal(struct {
			Type    string            `json:"type"`
			Inlines []json.RawMessage `json:"inlines"`
		}{typeEmphasis, inner})
	case Strong:
		inner, err := marshalInlines(v.Inlines)
		if err != nil {
			return nil, err
		}
		return json.Marshal(struct {
			Type    string            `json:"type"`
			Inlines []json.RawMessage `json:"inlines"`
		}{typeStrong, inner})
	case Link:
		inner, err := marshalInlines(v.Inlines)
		if err != nil {
			return nil, err
		}
		return json.Marshal(struct {
			Type     string            `json:"type"`
			Href     string            `json:"href"`
			LinkType LinkType          `json:"linkType"`
			Inlines  []json.RawMessage `json:"inlines"`
		}{typeLink, v.Href, v.LinkType, inner})
	default:
		return nil, fmt.Errorf("unknown inline type %T", in)
	}
}

func unmarshalInlines(raws []json.RawMessage) ([]Inline, error) {
	out := make([]Inline, 0, len(raws))
	for _, raw := range raws {
		in, err := unmarshalInline(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

func unmarshalInline(raw json.RawMessage) (Inline, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, err
	}
	switch tag.Type {
	case typeText, typeCode:
		var v struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		if tag.Type == typeText {
			return Text{Text: v.Text}, nil
		}
		return Code{Text: v.Text}, nil
	case typeEmphasis, typeStrong:
		var v struct {
			Inlines []json.RawMessage `json:"inlines"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		inner, err := unmarshalInlines(v.Inlines)
		if err != nil {
			return nil, err
		}
		if tag.Type == typeEmphasis {
			return Emphasis{Inlines: inner}, nil
		}
		return Strong{Inlines: inner}, nil
	case typeLink:
		var v struct {
			Href     string            `json:"href"`
			LinkType LinkType          `json:"linkType"`
			Inlines  []json.RawMessage `json:"inlines"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		inner, err := unmarshalInlines(v.Inlines)
		if err != nil {
			return nil, err
		}
		return Link{Href: v.Href, LinkType: v.LinkType, Inlines: inner}, nil
	default:
		return nil, fmt.Errorf("unknown inline type %q", tag.Type)
	}
}
