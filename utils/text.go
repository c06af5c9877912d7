package utils

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"golang.org/x/exp/slices"
)

var (
	handlePattern  = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	commandPattern = regexp.MustCompile(`/\w+`)
	hashtagPattern = regexp.MustCompile(`#(\w+)`)
)

/*
Prepares textual input for Telegram's Markdown parser.

Ref: https://core.telegram.org/bots/api#markdownv2-style
*/
func PrepareInputForMarkdown(input string, mode string) string {
	var escapedChars []rune

	switch mode {
	case "link":
		escapedChars = []rune{')', '\\'}
	case "text":
		escapedChars = []rune{
			'_', '*', '[', ']', '(', ')', '~', '`', '>',
			'#', '+', '-', '=', '|', '{', '}', '.', '!',
		}
	}

	output := ""

	for _, char := range input {
		if slices.Contains(escapedChars, char) {
			output += fmt.Sprintf("\\%s", string(char))
		} else {
			output += string(char)
		}
	}

	return output
}

// SanitizeForHtml escapes text destined for the public JSON API.
func SanitizeForHtml(text string) string {
	if text == "" {
		return text
	}

	return html.EscapeString(text)
}

// UnescapeHtml resolves HTML entities before storage, so "&amp;" is stored
// as "&".
func UnescapeHtml(text string) string {
	return html.UnescapeString(text)
}

// ValidHandle accepts handles of word characters only, as used for the
// external-network username.
func ValidHandle(handle string) bool {
	return handlePattern.MatchString(handle)
}

// ContainsHtmlTags flags angle brackets, which are rejected in user-set
// profile fields.
func ContainsHtmlTags(text string) bool {
	return strings.ContainsAny(text, "<>")
}

// ContainsCommand flags embedded slash-commands like "/start".
func ContainsCommand(text string) bool {
	return commandPattern.MatchString(text)
}

// Hashtags extracts lower-cased hashtag words from text, in order.
func Hashtags(text string) []string {
	matches := hashtagPattern.FindAllStringSubmatch(strings.ToLower(text), -1)

	tags := make([]string, 0, len(matches))
	for _, match := range matches {
		tags = append(tags, match[1])
	}

	return tags
}
