package feeds

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractText converts an HTML fragment into plain text. Paragraph contents
// are joined with newlines; markup without paragraphs falls back to the
// document's full text.
func ExtractText(fragment string) string {
	trimmed := strings.TrimSpace(fragment)
	if trimmed == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(trimmed))
	if err != nil {
		return collapseWhitespace(trimmed)
	}

	paragraphs := make([]string, 0, 4)
	doc.Find("p").Each(func(_ int, selection *goquery.Selection) {
		if text := collapseWhitespace(selection.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) > 0 {
		return strings.Join(paragraphs, "\n")
	}

	return collapseWhitespace(doc.Text())
}

func collapseWhitespace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
