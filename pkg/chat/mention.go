package chat

import (
	"regexp"
	"strings"
)

var mentionRegexp = regexp.MustCompile(`(?i)@meerchat\b`)

// Mentioned reports whether body addresses the assistant.
func Mentioned(body string) bool {
	return mentionRegexp.MatchString(body)
}

// StripMention removes every mention token and collapses whitespace.
func StripMention(body string) string {
	return strings.Join(strings.Fields(mentionRegexp.ReplaceAllString(body, " ")), " ")
}

func sanitize(body string) string {
	return strings.NewReplacer("<", "", ">", "").Replace(body)
}
