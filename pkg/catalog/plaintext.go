package catalog

import (
	"strings"

	"golang.org/x/net/html"

	"neokudilonga/pkg/domain"
)

// PlainText reduces markup pasted into catalog text fields to its visible
// text with collapsed whitespace. Input without tags is only trimmed.
func PlainText(s string) string {
	if !strings.ContainsRune(s, '<') {
		return strings.TrimSpace(s)
	}
	nodes, err := html.ParseFragment(strings.NewReader(s), &html.Node{Type: html.ElementNode, Data: "div"})
	if err != nil {
		return strings.TrimSpace(s)
	}
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode {
			switch node.Data {
			case "p", "br", "div", "li":
				buf.WriteString(" ")
			}
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return strings.Join(strings.Fields(buf.String()), " ")
}

// PlainTextLocalized applies PlainText to both languages.
func PlainTextLocalized(t domain.LocalizedText) domain.LocalizedText {
	return domain.LocalizedText{PT: PlainText(t.PT), EN: PlainText(t.EN)}
}
