package ingestion

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gmtext "github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

// ExtractText converts raw document bytes into plain text suitable for
// chunking. The format is chosen from contentType when set, otherwise from
// the filename extension, falling back to plain text.
func ExtractText(content []byte, filename, contentType string) (string, error) {
	switch detectFormat(filename, contentType) {
	case "markdown":
		return extractMarkdown(content)
	case "html":
		return extractHTML(content)
	default:
		return string(content), nil
	}
}

func detectFormat(filename, contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "markdown"):
		return "markdown"
	case strings.Contains(ct, "html"):
		return "html"
	case ct != "":
		return "text"
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown":
		return "markdown"
	case ".html", ".htm":
		return "html"
	default:
		return "text"
	}
}

// extractMarkdown parses markdown into an AST and collects the text of each
// block, so chunking sees prose rather than markup.
func extractMarkdown(content []byte) (string, error) {
	parser := goldmark.New(goldmark.WithExtensions(extension.Table))
	reader := gmtext.NewReader(content)
	doc := parser.Parser().Parse(reader)

	var parts []string
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading, *ast.Paragraph, *ast.ListItem:
			text := nodeText(n, content)
			if text != "" {
				parts = append(parts, text)
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			var b strings.Builder
			for i := 0; i < node.Lines().Len(); i++ {
				line := node.Lines().At(i)
				b.Write(line.Value(content))
			}
			if code := strings.TrimSpace(b.String()); code != "" {
				parts = append(parts, code)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("walking markdown ast: %w", err)
	}

	return strings.Join(parts, "\n\n"), nil
}

// nodeText collects the raw text under a node.
func nodeText(n ast.Node, content []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if textNode, ok := child.(*ast.Text); ok {
			b.Write(textNode.Segment.Value(content))
			if textNode.SoftLineBreak() || textNode.HardLineBreak() {
				b.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// extractHTML tokenizes HTML and keeps visible text, skipping script and
// style elements.
func extractHTML(content []byte) (string, error) {
	tokenizer := html.NewTokenizer(strings.NewReader(string(content)))

	var parts []string
	skipDepth := 0

	for {
		tokenType := tokenizer.Next()
		switch tokenType {
		case html.ErrorToken:
			// io.EOF marks the end of the document.
			return strings.Join(parts, "\n"), nil
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if isSkippedTag(string(name)) {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if isSkippedTag(string(name)) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := strings.TrimSpace(string(tokenizer.Text()))
			if text != "" {
				parts = append(parts, text)
			}
		}
	}
}

func isSkippedTag(name string) bool {
	switch name {
	case "script", "style", "noscript":
		return true
	}
	return false
}
