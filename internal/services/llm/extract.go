package llm

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var codeTagRegex = regexp.MustCompile(`(?s)<code>(.*?)</code>`)

var markdown = goldmark.New()

// CodeBlock is one fenced block of a markdown document.
type CodeBlock struct {
	Language string
	Code     string
}

// FencedBlocks returns the fenced code blocks of a markdown response in order.
func FencedBlocks(response string) []CodeBlock {
	source := []byte(response)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var blocks []CodeBlock
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindFencedCodeBlock {
			return ast.WalkContinue, nil
		}
		fenced := n.(*ast.FencedCodeBlock)

		var buf bytes.Buffer
		lines := fenced.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}
		blocks = append(blocks, CodeBlock{
			Language: strings.ToLower(string(fenced.Language(source))),
			Code:     buf.String(),
		})
		return ast.WalkSkipChildren, nil
	})
	return blocks
}

// ExtractFenced returns the first fenced block tagged lang, falling back to
// the first untagged block.
func ExtractFenced(response, lang string) (string, bool) {
	blocks := FencedBlocks(response)
	for _, b := range blocks {
		if b.Language == lang {
			return strings.TrimSpace(b.Code), true
		}
	}
	for _, b := range blocks {
		if b.Language == "" {
			return strings.TrimSpace(b.Code), true
		}
	}
	return "", false
}

// ExtractCode pulls generated code out of a model response. A <code> block
// wins, then a fenced block in lang, then the whole response.
func ExtractCode(response, lang string) string {
	if m := codeTagRegex.FindStringSubmatch(response); len(m) == 2 {
		inner := m[1]
		if code, ok := ExtractFenced(inner, lang); ok {
			return code
		}
		return strings.TrimSpace(inner)
	}
	if code, ok := ExtractFenced(response, lang); ok {
		return code
	}
	return strings.TrimSpace(response)
}
