package app

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// maxExtractRunes caps how much attachment text reaches the conversation.
const maxExtractRunes = 20000

// ExtractText pulls readable text out of an uploaded attachment based on
// its extension.
func ExtractText(filename string, data []byte) (string, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "txt", "md", "csv":
		return clampText(normalizeText(string(data))), nil
	case "html", "htm":
		text, err := extractHTML(data)
		if err != nil {
			return "", fmt.Errorf("parse html: %w", err)
		}
		return clampText(text), nil
	case "pdf":
		text, err := extractPDF(data)
		if err != nil {
			return "", fmt.Errorf("parse pdf: %w", err)
		}
		return clampText(text), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAttachment, filepath.Ext(filename))
	}
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	totalPages := reader.NumPage()
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip problematic pages instead of failing entirely.
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	text := normalizeText(sb.String())
	if text == "" {
		return "", fmt.Errorf("no text extracted from PDF")
	}
	return text, nil
}

func extractHTML(data []byte) (string, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			sb.WriteString(node.Data)
			sb.WriteString(" ")
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode && (node.Data == "p" || node.Data == "br" || node.Data == "div" || node.Data == "li") {
			sb.WriteString(" ")
		}
	}
	walk(root)
	return normalizeText(sb.String()), nil
}

func normalizeText(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func clampText(text string) string {
	runes := []rune(text)
	if len(runes) <= maxExtractRunes {
		return text
	}
	return string(runes[:maxExtractRunes])
}
