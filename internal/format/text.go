package format

import (
	"encoding/json"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PlainText extracts readable text from a description payload. Payloads may
// be plain strings, HTML fragments, or JSON rich-text documents whose leaves
// carry a "text" key (block editors nest them under "children" or "blocks").
func PlainText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	if trimmed[0] == '{' || trimmed[0] == '[' {
		var doc interface{}
		if err := json.Unmarshal([]byte(trimmed), &doc); err == nil {
			var parts []string
			collectJSONText(doc, &parts)
			return collapseSpaces(strings.Join(parts, " "))
		}
	}

	if strings.ContainsRune(trimmed, '<') {
		return collapseSpaces(htmlText(trimmed))
	}
	return collapseSpaces(trimmed)
}

func collectJSONText(node interface{}, parts *[]string) {
	switch v := node.(type) {
	case map[string]interface{}:
		if text, ok := v["text"].(string); ok {
			*parts = append(*parts, text)
		}
		for _, key := range []string{"children", "blocks", "content"} {
			if child, ok := v[key]; ok {
				collectJSONText(child, parts)
			}
		}
	case []interface{}:
		for _, child := range v {
			collectJSONText(child, parts)
		}
	case string:
		*parts = append(*parts, v)
	}
}

func htmlText(fragment string) string {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return fragment
	}
	var sb strings.Builder
	for _, n := range nodes {
		writeText(&sb, n)
	}
	return sb.String()
}

func writeText(sb *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(sb, c)
	}
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.P, atom.Br, atom.Li, atom.Div:
			sb.WriteByte(' ')
		}
	}
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var allowedNoteTags = map[atom.Atom]bool{
	atom.P: true, atom.Br: true, atom.B: true, atom.Strong: true, atom.I: true,
	atom.Em: true, atom.U: true, atom.Ul: true, atom.Ol: true, atom.Li: true,
	atom.A: true, atom.Span: true, atom.Div: true,
}

// SanitizeNotes keeps the small set of inline and block tags a rich-text
// notes editor produces and drops every attribute except a link's http(s)
// href. Disallowed elements are unwrapped so their text survives.
func SanitizeNotes(fragment string) string {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return html.EscapeString(fragment)
	}
	var sb strings.Builder
	for _, n := range nodes {
		renderSanitized(&sb, n)
	}
	return strings.TrimSpace(sb.String())
}

func renderSanitized(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(html.EscapeString(n.Data))
		return
	case html.ElementNode:
		if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
			return
		}
		if !allowedNoteTags[n.DataAtom] {
			break
		}
		sb.WriteByte('<')
		sb.WriteString(n.Data)
		if n.DataAtom == atom.A {
			for _, attr := range n.Attr {
				lower := strings.ToLower(attr.Val)
				if attr.Key == "href" && (strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")) {
					sb.WriteString(` href="` + html.EscapeString(attr.Val) + `"`)
				}
			}
		}
		sb.WriteByte('>')
		if n.DataAtom == atom.Br {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderSanitized(sb, c)
		}
		sb.WriteString("</" + n.Data + ">")
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderSanitized(sb, c)
	}
}
