// Package voice provides text utilities shared by display and speech output.
// clean.go strips the lightweight markup generative models emit so that
// responses read naturally on screen and through text-to-speech.
package voice

import (
	"regexp"
	"strings"
)

var (
	// [label](url) -> label
	linkPattern = regexp.MustCompile(`\[([^\]]+)\]\(([^)]*)\)`)

	// Emphasis, heading and inline-code markers, plus underscores.
	markupPattern = regexp.MustCompile("[*#`_]+")

	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Clean normalizes a provider response for display and speech.
//
// Links are reduced to their label before markers are removed. Stripping a
// marker can join "]" and "(" into a new link, so both passes repeat until
// the text stops changing; this keeps Clean(Clean(x)) == Clean(x).
func Clean(text string) string {
	for {
		next := linkPattern.ReplaceAllString(text, "$1")
		next = markupPattern.ReplaceAllString(next, "")
		if next == text {
			break
		}
		text = next
	}
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}
