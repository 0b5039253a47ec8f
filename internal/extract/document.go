package extract

import (
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// IsHTML reports whether a document name or content type denotes HTML
func IsHTML(nameOrType string) bool {
	lower := strings.ToLower(nameOrType)
	if strings.Contains(lower, "text/html") || strings.Contains(lower, "application/xhtml") {
		return true
	}
	switch filepath.Ext(lower) {
	case ".html", ".htm", ".xhtml":
		return true
	}
	return false
}

// VisibleText renders the readable text of an HTML document. Only the main
// content is kept when the page marks it with <main>, <article> or
// role="main". Block elements start a new line so citations in adjacent
// paragraphs never run together.
func VisibleText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "head", "template", "nav":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.Join(strings.Fields(n.Data), " ")
			if text != "" {
				if buf.Len() > 0 && !endsWithSpace(buf.String()) {
					buf.WriteByte(' ')
				}
				buf.WriteString(text)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && isBlock(n.Data) && buf.Len() > 0 && !endsWithNewline(buf.String()) {
			buf.WriteByte('\n')
		}
	}

	walk(contentRoot(doc))
	return strings.TrimSpace(buf.String()), nil
}

// contentRoot prefers <main>, then <article> or role="main", then the
// whole document
func contentRoot(doc *html.Node) *html.Node {
	if n := findFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "main"
	}); n != nil {
		return n
	}
	if n := findFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && (n.Data == "article" || attr(n, "role") == "main")
	}); n != nil {
		return n
	}
	return doc
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "br", "li", "ul", "ol", "h1", "h2", "h3", "h4", "h5", "h6",
		"blockquote", "pre", "table", "tr", "section", "article", "header", "footer":
		return true
	}
	return false
}

func endsWithSpace(s string) bool {
	return strings.HasSuffix(s, " ") || endsWithNewline(s)
}

func endsWithNewline(s string) bool {
	return strings.HasSuffix(s, "\n")
}
