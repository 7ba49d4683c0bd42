package answer

import (
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true, "img": true,
	"input": true, "link": true, "meta": true, "param": true, "source": true, "track": true, "wbr": true,
}

// walk tokenizes s, calling visit with the byte offset after each token and
// the stack of open elements at that point. It reports whether every end
// tag matched the innermost open element, nothing was left open and the
// whole input tokenized.
func walk(s string, visit func(end int, depth int, tt html.TokenType)) bool {
	z := html.NewTokenizer(strings.NewReader(s))
	var stack []string
	offset, ok := 0, true
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		offset += len(z.Raw())
		switch tt {
		case html.StartTagToken:
			name, _ := z.TagName()
			if !voidElements[string(name)] {
				stack = append(stack, string(name))
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch i := slices.LastIndex(stack, string(name)); {
			case i < 0:
				ok = false
			case i != len(stack)-1:
				ok = false
				stack = stack[:i]
			default:
				stack = stack[:i]
			}
		}
		if visit != nil {
			visit(offset, len(stack), tt)
		}
	}
	return ok && len(stack) == 0 && offset == len(s)
}

// trimTrailing drops whatever follows the last top-level element. Input
// in which no element ever closes is returned unchanged for repair.
func trimTrailing(s string) string {
	cut := -1
	walk(s, func(end, depth int, tt html.TokenType) {
		if depth == 0 && tt != html.TextToken && tt != html.CommentToken && tt != html.DoctypeToken {
			cut = end
		}
	})
	if cut < 0 {
		return s
	}
	return s[:cut]
}

func balanced(s string) bool {
	return walk(s, nil)
}

// repair re-renders s through the HTML5 parser, which closes open elements
// and drops stray end tags.
func repair(s string) (string, error) {
	nodes, err := html.ParseFragment(strings.NewReader(s), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, n := range nodes {
		if err := html.Render(&sb, n); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

var unsafeElements = map[string]bool{
	"script": true, "iframe": true, "object": true, "embed": true, "frame": true,
	"frameset": true, "base": true, "form": true, "link": true, "meta": true,
}

func unsafeAttr(a html.Attribute) bool {
	key := strings.ToLower(a.Key)
	if strings.HasPrefix(key, "on") {
		return true
	}
	if key == "href" || key == "src" || key == "action" || key == "formaction" {
		v := strings.ToLower(strings.Join(strings.Fields(a.Val), ""))
		return strings.HasPrefix(v, "javascript:") || strings.HasPrefix(v, "vbscript:") || strings.HasPrefix(v, "data:text/html")
	}
	return false
}

// unsafe reports whether s carries active content.
func unsafe(s string) bool {
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if unsafeElements[tok.Data] || slices.ContainsFunc(tok.Attr, unsafeAttr) {
				return true
			}
		}
	}
}

// scrub removes active elements and attributes from s.
func scrub(s string) (string, error) {
	nodes, err := html.ParseFragment(strings.NewReader(s), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return "", err
	}
	var clean func(n *html.Node)
	clean = func(n *html.Node) {
		n.Attr = slices.DeleteFunc(n.Attr, unsafeAttr)
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			if c.Type == html.ElementNode && unsafeElements[c.Data] {
				n.RemoveChild(c)
			} else {
				clean(c)
			}
			c = next
		}
	}
	var sb strings.Builder
	for _, n := range nodes {
		if n.Type == html.ElementNode && unsafeElements[n.Data] {
			continue
		}
		clean(n)
		if err := html.Render(&sb, n); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

// isContainer reports whether s is exactly one response-container div.
func isContainer(s string) bool {
	nodes, err := html.ParseFragment(strings.NewReader(s), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return false
	}
	var root *html.Node
	for _, n := range nodes {
		switch n.Type {
		case html.TextNode:
			if strings.TrimSpace(n.Data) != "" {
				return false
			}
		case html.ElementNode:
			if root != nil {
				return false
			}
			root = n
		}
	}
	if root == nil || root.DataAtom != atom.Div {
		return false
	}
	for _, a := range root.Attr {
		if a.Key == "class" && slices.Contains(strings.Fields(a.Val), ContainerClass) {
			return true
		}
	}
	return false
}
