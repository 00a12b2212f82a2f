package extraction

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// driveConfirmURL extracts the real download URL from a Google Drive interstitial
// page ("Google Drive can't scan this file for viruses"). Drive serves either a
// form with hidden inputs or, on older pages, a link carrying a confirm token.
func driveConfirmURL(pageURL string, page []byte) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", false
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}

	if form := doc.Find("form#download-form").First(); form.Length() > 0 {
		action, ok := form.Attr("action")
		if !ok || action == "" {
			return "", false
		}
		target, err := base.Parse(action)
		if err != nil {
			return "", false
		}

		q := target.Query()
		form.Find("input[type='hidden']").Each(func(_ int, s *goquery.Selection) {
			name, _ := s.Attr("name")
			value, _ := s.Attr("value")
			if name != "" {
				q.Set(name, value)
			}
		})
		target.RawQuery = q.Encode()
		return target.String(), true
	}

	var confirmed string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if !strings.Contains(href, "confirm=") {
			return true
		}
		if target, err := base.Parse(href); err == nil {
			confirmed = target.String()
			return false
		}
		return true
	})

	return confirmed, confirmed != ""
}
