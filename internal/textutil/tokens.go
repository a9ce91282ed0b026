package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Tokenize splits text into word tokens for alignment. Tokens are case-folded
// and stripped of punctuation so "Hello," and "hello" compare equal.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '—'
	})
	folder := cases.Fold()
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		token := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
				return r
			}
			return -1
		}, field)
		token = strings.Trim(token, "'")
		if token == "" {
			continue
		}
		tokens = append(tokens, folder.String(token))
	}
	return tokens
}
