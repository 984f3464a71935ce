package browser

import (
	"fmt"
	"regexp"
	"strings"
)

// Locator selects elements by CSS and, optionally, by contained text.
// An empty CSS with a Text matches the innermost elements containing Text.
type Locator struct {
	CSS  string
	Text string
}

var hasTextPattern = regexp.MustCompile(`^(.*):has-text\((?:'([^']*)'|"([^"]*)")\)$`)

// ParseLocator accepts three notations:
//
//	input[name='user_id']       plain CSS
//	button:has-text('Login')    CSS filtered by case-insensitive text
//	text=Login                  innermost element containing the text
func ParseLocator(expr string) (Locator, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Locator{}, fmt.Errorf("empty locator expression")
	}
	if rest, ok := strings.CutPrefix(expr, "text="); ok {
		text := strings.Trim(rest, `'"`)
		if text == "" {
			return Locator{}, fmt.Errorf("locator %q has no text", expr)
		}
		return Locator{Text: text}, nil
	}
	if m := hasTextPattern.FindStringSubmatch(expr); m != nil {
		css := strings.TrimSpace(m[1])
		if css == "" {
			return Locator{}, fmt.Errorf("locator %q has no css before :has-text", expr)
		}
		text := m[2]
		if text == "" {
			text = m[3]
		}
		return Locator{CSS: css, Text: text}, nil
	}
	return Locator{CSS: expr}, nil
}

// MustParseLocator is ParseLocator for compile-time tables.
func MustParseLocator(expr string) Locator {
	loc, err := ParseLocator(expr)
	if err != nil {
		panic(err)
	}
	return loc
}

// ParseLocators parses expressions in order.
func ParseLocators(exprs []string) ([]Locator, error) {
	out := make([]Locator, 0, len(exprs))
	for _, e := range exprs {
		loc, err := ParseLocator(e)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, nil
}

func (l Locator) String() string {
	switch {
	case l.CSS == "":
		return "text=" + l.Text
	case l.Text != "":
		return fmt.Sprintf("%s:has-text('%s')", l.CSS, l.Text)
	default:
		return l.CSS
	}
}
