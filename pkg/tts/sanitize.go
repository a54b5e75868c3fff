package tts

import (
	"regexp"
	"strings"
)

var (
	markdownMarks = strings.NewReplacer("**", "", "*", "", "_", "", "#", "", "`", "")
	yeaWord       = regexp.MustCompile(`\b([Yy])ea\b`)
	spaces        = regexp.MustCompile(`\s+`)
)

// Sanitize prepares chat text for a voice: markdown emphasis, headings and
// code marks are dropped and "yea" is spelled the way it should sound.
func Sanitize(text string) string {
	text = markdownMarks.Replace(text)
	text = yeaWord.ReplaceAllString(text, "${1}eah")
	return strings.TrimSpace(spaces.ReplaceAllString(text, " "))
}
