package recon

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/vulnverified/nophish/internal/engine"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ExtractPage builds a RenderedPage from a browser DOM snapshot. pageURL is
// the final document URL used to resolve relative form actions and links.
// text is the browser's rendered text and is kept as given, even when empty.
func ExtractPage(pageURL, title, text, rawHTML string) (*engine.RenderedPage, error) {
	return extractPage(pageURL, title, text, rawHTML, false)
}

// ExtractStaticPage builds a RenderedPage from served markup that no browser
// rendered. The text content is derived from the markup itself.
func ExtractStaticPage(pageURL, rawHTML string) (*engine.RenderedPage, error) {
	return extractPage(pageURL, "", "", rawHTML, true)
}

func extractPage(pageURL, title, text, rawHTML string, textFromMarkup bool) (*engine.RenderedPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse DOM snapshot: %w", err)
	}

	docURL, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page URL: %w", err)
	}
	base := docURL
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if u, err := docURL.Parse(strings.TrimSpace(href)); err == nil {
			base = u
		}
	}

	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if textFromMarkup && len(doc.Nodes) > 0 {
		text = visibleText(doc.Nodes[0])
	}

	page := &engine.RenderedPage{
		Title:           title,
		TextContent:     text,
		FormsAndActions: []engine.FormAction{},
		Links:           []string{},
		MetaInfo:        []string{},
		Scripts:         []string{},
	}

	doc.Find("form").Each(func(_ int, s *goquery.Selection) {
		outer, _ := goquery.OuterHtml(s)
		action := docURL.String()
		if raw, ok := s.Attr("action"); ok && strings.TrimSpace(raw) != "" {
			action = resolveRef(base, raw)
		}
		page.FormsAndActions = append(page.FormsAndActions, engine.FormAction{FormHTML: outer, ActionURL: action})
	})

	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			page.Links = append(page.Links, "")
			return
		}
		page.Links = append(page.Links, resolveRef(base, href))
	})

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		outer, _ := goquery.OuterHtml(s)
		page.Scripts = append(page.Scripts, outer)
	})

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		page.MetaInfo = append(page.MetaInfo, attrOrNull(s, "name")+"="+attrOrNull(s, "content"))
	})

	return page, nil
}

// resolveRef resolves ref against base. Unparseable references are kept verbatim.
func resolveRef(base *url.URL, ref string) string {
	u, err := base.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return u.String()
}

func attrOrNull(s *goquery.Selection, name string) string {
	if v, ok := s.Attr(name); ok {
		return v
	}
	return "null"
}

// skippedText are elements whose content is never rendered as text.
var skippedText = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Object:   true,
}

// blockElements start on a new line in rendered text.
var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Fieldset: true, atom.Figcaption: true, atom.Figure: true, atom.Footer: true,
	atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Header: true, atom.Hr: true, atom.Li: true,
	atom.Main: true, atom.Nav: true, atom.Ol: true, atom.P: true, atom.Pre: true,
	atom.Section: true, atom.Table: true, atom.Tr: true, atom.Ul: true, atom.Option: true,
}

// visibleText approximates innerText for a static document.
func visibleText(root *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
					b.WriteByte(' ')
				}
				b.WriteString(t)
			}
			return
		case html.ElementNode:
			if skippedText[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.Input && inputType(n) == "hidden" {
				return
			}
		}

		block := n.Type == html.ElementNode && blockElements[n.DataAtom]
		if block {
			newline(&b)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			newline(&b)
		}
	}
	walk(root)
	return strings.TrimSpace(b.String())
}

func newline(b *strings.Builder) {
	if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
		b.WriteByte('\n')
	}
}

func inputType(n *html.Node) string {
	for _, a := range n.Attr {
		if a.Key == "type" {
			return strings.ToLower(a.Val)
		}
	}
	return ""
}
