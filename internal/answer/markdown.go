package answer

import (
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// Markdown converts an answer fragment to markdown. Inline styling is
// dropped; structure such as headings, lists and tables survives.
func Markdown(fragment string) string {
	md, err := htmltomarkdown.ConvertString(fragment)
	if err != nil {
		return plainText(fragment)
	}
	return strings.TrimSpace(md)
}
