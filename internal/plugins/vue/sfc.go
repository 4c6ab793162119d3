package vue

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	openTagRe     = regexp.MustCompile(`<(template|script|style)(\s[^>]*)?>`)
	templateTagRe = regexp.MustCompile(`<template[\s>/]|</template>`)
	attrRe        = regexp.MustCompile(`([^\s=]+)(?:\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>]+)))?`)
)

var (
	ErrDuplicateBlock      = errors.New("duplicate block")
	ErrUnterminatedBlock   = errors.New("unterminated block")
	ErrUnterminatedComment = errors.New("unterminated comment")
)

const componentVar = "__sfc__"

// Block is a top level section of a single file component.
type Block struct {
	Type    string
	Attrs   map[string]string
	Content string
}

// Lang returns the block's lang attribute, or "" when unset.
func (b *Block) Lang() string {
	return b.Attrs["lang"]
}

// Has reports whether a (possibly valueless) attribute is present.
func (b *Block) Has(attr string) bool {
	_, ok := b.Attrs[attr]
	return ok
}

// SFC is a parsed single file component.
type SFC struct {
	Template *Block
	Script   *Block
	Styles   []Block
}

// ParseSFC splits a .vue source into its template, script and style blocks.
func ParseSFC(src string) (*SFC, error) {
	sfc := &SFC{}
	rest := src

	for {
		loc := openTagRe.FindStringSubmatchIndex(rest)
		if loc == nil {
			return sfc, nil
		}

		// top level comments may contain tags
		if ci := strings.Index(rest[:loc[0]], "<!--"); ci >= 0 {
			end := strings.Index(rest[ci:], "-->")
			if end < 0 {
				return nil, ErrUnterminatedComment
			}
			rest = rest[ci+end+len("-->"):]
			continue
		}

		typ := rest[loc[2]:loc[3]]
		var rawAttrs string
		if loc[4] >= 0 {
			rawAttrs = rest[loc[4]:loc[5]]
		}
		body := rest[loc[1]:]

		var contentEnd, closeEnd int
		if typ == "template" {
			idx, err := matchTemplateClose(body)
			if err != nil {
				return nil, err
			}
			contentEnd, closeEnd = idx, idx+len("</template>")
		} else {
			closeTag := "</" + typ + ">"
			idx := strings.Index(body, closeTag)
			if idx < 0 {
				return nil, fmt.Errorf("%w: <%s>", ErrUnterminatedBlock, typ)
			}
			contentEnd, closeEnd = idx, idx+len(closeTag)
		}

		block := Block{Type: typ, Attrs: parseAttrs(rawAttrs), Content: body[:contentEnd]}

		switch typ {
		case "template":
			if sfc.Template != nil {
				return nil, fmt.Errorf("%w: <template>", ErrDuplicateBlock)
			}
			sfc.Template = &block
		case "script":
			if sfc.Script != nil {
				return nil, fmt.Errorf("%w: <script>", ErrDuplicateBlock)
			}
			sfc.Script = &block
		case "style":
			sfc.Styles = append(sfc.Styles, block)
		}

		rest = body[closeEnd:]
	}
}

// matchTemplateClose finds the </template> closing the outermost template,
// accounting for nested <template> elements.
func matchTemplateClose(body string) (int, error) {
	depth := 1
	offset := 0
	for {
		loc := templateTagRe.FindStringIndex(body[offset:])
		if loc == nil {
			return 0, fmt.Errorf("%w: <template>", ErrUnterminatedBlock)
		}
		start := offset + loc[0]
		if strings.HasPrefix(body[start:], "</") {
			depth--
			if depth == 0 {
				return start, nil
			}
		} else {
			depth++
		}
		offset += loc[1]
	}
}

func parseAttrs(raw string) map[string]string {
	attrs := map[string]string{}
	for _, m := range attrRe.FindAllStringSubmatch(strings.TrimSpace(raw), -1) {
		attrs[m[1]] = m[2] + m[3] + m[4]
	}
	return attrs
}

// Module renders the component as an ES module. The script block is
// imported from scriptImport and must provide the default export; named
// exports are re-exported. styleImport returns the import specifier for the
// style block at index i.
func (s *SFC) Module(scriptImport string, styleImport func(i int) string) string {
	var b strings.Builder

	for i := range s.Styles {
		fmt.Fprintf(&b, "import %s;\n", jsString(styleImport(i)))
	}

	if s.Script != nil {
		fmt.Fprintf(&b, "import %s from %s;\n", componentVar, jsString(scriptImport))
		fmt.Fprintf(&b, "export * from %s;\n", jsString(scriptImport))
	} else {
		b.WriteString("const " + componentVar + " = {};\n")
	}

	if s.Template != nil {
		fmt.Fprintf(&b, "if (!%s.render) %s.template = %s;\n",
			componentVar, componentVar, jsString(strings.TrimSpace(s.Template.Content)))
	}

	b.WriteString("export default " + componentVar + ";\n")
	return b.String()
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
