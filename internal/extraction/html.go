package extraction

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// htmlNoiseTags never contain résumé content
var htmlNoiseTags = []string{
	"script", "style", "noscript", "iframe", "object", "embed",
	"svg", "meta", "link", "head", "form", "button", "nav",
}

var (
	inlineSpace = regexp.MustCompile(`[ \t\f\r]+`)
	blankLines  = regexp.MustCompile(`\n{3,}`)
)

// blockTags get a line break after their text so headings and list items stay apart
const blockTags = "p, div, li, h1, h2, h3, h4, h5, h6, tr, br, section, article, header, footer"

// htmlToText returns the readable text of an HTML résumé (online profiles, exported
// documents). Layout elements are dropped and whitespace is collapsed.
func htmlToText(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return "", err
	}

	for _, tag := range htmlNoiseTags {
		doc.Find(tag).Remove()
	}

	doc.Find(blockTags).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	return cleanExtractedText(root.Text()), nil
}

// cleanExtractedText normalises whitespace without losing line structure
func cleanExtractedText(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
