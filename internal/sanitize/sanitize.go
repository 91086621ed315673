// Package sanitize strips links and user mentions from relayed text.
package sanitize

import "regexp"

const (
	LinkPlaceholder    = "[LINK REMOVED]"
	MentionPlaceholder = "[MENTION REMOVED]"
)

var (
	linkPattern    = regexp.MustCompile(`(?i)(?:https?://|www\.)\S+`)
	mentionPattern = regexp.MustCompile(`@\w{3,}`)
)

// Text replaces every link with LinkPlaceholder and every @mention of three or
// more word characters with MentionPlaceholder. Applying it twice is a no-op.
func Text(s string) string {
	if s == "" {
		return s
	}
	s = linkPattern.ReplaceAllLiteralString(s, LinkPlaceholder)
	return mentionPattern.ReplaceAllLiteralString(s, MentionPlaceholder)
}
