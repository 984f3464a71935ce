package dom

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/chromedp/chromedp"
	"golang.org/x/net/html"
)

// queryScript resolves (css, text) to an array of elements in document
// order. Text matching is a case-insensitive substring of innerText; with
// no css only the innermost matching elements are kept.
const queryScript = `(function(css, text) {
	var nodes = Array.prototype.slice.call(document.querySelectorAll(css || 'body *'));
	if (!text) { return nodes; }
	var needle = text.toLowerCase();
	var hits = nodes.filter(function(n) {
		return String(n.innerText || n.textContent || '').toLowerCase().indexOf(needle) !== -1;
	});
	if (css) { return hits; }
	return hits.filter(function(n) {
		return !hits.some(function(m) { return m !== n && n.contains(m); });
	});
})(%s, %s)`

const visibleScript = `(function(el) {
	if (!el || !el.isConnected) { return false; }
	var style = window.getComputedStyle(el);
	if (style.visibility === 'hidden' || style.display === 'none') { return false; }
	var rect = el.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
})(%s)`

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// QueryExpr is a JS expression evaluating to every match.
func QueryExpr(css, text string) string {
	return fmt.Sprintf(queryScript, jsString(css), jsString(text))
}

// ElementExpr is a JS path selecting the index-th match, usable with
// chromedp.ByJSPath.
func ElementExpr(css, text string, index int) string {
	return fmt.Sprintf("%s[%d]", QueryExpr(css, text), index)
}

func CountAction(css, text string, count *int) chromedp.Action {
	return chromedp.Evaluate(QueryExpr(css, text)+".length", count)
}

func VisibleAction(elementExpr string, visible *bool) chromedp.Action {
	return chromedp.Evaluate(fmt.Sprintf(visibleScript, elementExpr), visible)
}

// FillAction replaces the element's value with text using real key events.
func FillAction(elementExpr, text string) chromedp.Action {
	return chromedp.Tasks{
		chromedp.Focus(elementExpr, chromedp.ByJSPath),
		chromedp.SetValue(elementExpr, "", chromedp.ByJSPath),
		chromedp.SendKeys(elementExpr, text, chromedp.ByJSPath),
	}
}

func ClickAction(elementExpr string) chromedp.Action {
	return chromedp.Click(elementExpr, chromedp.ByJSPath)
}

func ReadyStateAction(state *string) chromedp.Action {
	return chromedp.Evaluate(`document.readyState`, state)
}

func GetFullHTMLAction(res *string) chromedp.Action {
	return chromedp.Evaluate(`document.documentElement.outerHTML`, res)
}

func NavigateAction(url string) chromedp.Action {
	return chromedp.Navigate(url)
}

var keptTags = map[string]bool{
	"html": true, "head": true, "body": true, "title": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"p": true, "div": true, "span": true, "br": true, "hr": true,
	"ul": true, "ol": true, "li": true,
	"table": true, "thead": true, "tbody": true, "tr": true, "th": true, "td": true,
	"a": true, "button": true, "input": true, "textarea": true, "select": true, "option": true, "label": true,
	"form": true, "img": true, "iframe": true,
}

var voidTags = map[string]bool{"br": true, "hr": true, "input": true, "img": true}

var droppedTags = map[string]bool{"script": true, "style": true, "noscript": true, "meta": true, "link": true, "svg": true}

// Attributes that matter when working out why a selector missed.
var keptAttrs = map[string]bool{
	"id": true, "name": true, "class": true, "type": true, "role": true,
	"placeholder": true, "aria-label": true, "href": true, "src": true,
	"autocomplete": true, "disabled": true, "hidden": true,
}

// SimplifyDOM strips scripts, styles and most attributes from a page so it
// can be logged next to a failed attempt. Output is cut at limit bytes when
// limit is positive.
func SimplifyDOM(htmlContent string, limit int) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := simplifyNode(&buf, doc); err != nil {
		return "", err
	}
	out := buf.String()
	if limit > 0 && len(out) > limit {
		out = out[:limit] + "…"
	}
	return out, nil
}

func simplifyNode(w io.Writer, n *html.Node) error {
	switch n.Type {
	case html.ErrorNode, html.CommentNode, html.DoctypeNode:
		return nil
	case html.TextNode:
		if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
			_, err := io.WriteString(w, html.EscapeString(trimmed)+" ")
			return err
		}
		return nil
	case html.ElementNode:
		if droppedTags[n.Data] {
			return nil
		}
		if !keptTags[n.Data] {
			return simplifyChildren(w, n)
		}
		if err := writeOpenTag(w, n); err != nil {
			return err
		}
		if voidTags[n.Data] {
			return nil
		}
		if err := simplifyChildren(w, n); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</"+n.Data+">")
		return err
	}
	return simplifyChildren(w, n)
}

func simplifyChildren(w io.Writer, n *html.Node) error {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := simplifyNode(w, c); err != nil {
			return err
		}
	}
	return nil
}

func writeOpenTag(w io.Writer, n *html.Node) error {
	var b strings.Builder
	b.WriteString("<" + n.Data)
	for _, a := range n.Attr {
		if !keptAttrs[a.Key] {
			continue
		}
		val := strings.TrimSpace(a.Val)
		if val == "" && a.Key != "disabled" && a.Key != "hidden" {
			continue
		}
		b.WriteString(" " + a.Key + "=\"" + html.EscapeString(val) + "\"")
	}
	b.WriteString(">")
	_, err := io.WriteString(w, b.String())
	return err
}
