package chat

import (
	"strings"
)

// maxReplyRunes bounds the displayed reply length, counted in runes.
const maxReplyRunes = 500

const truncationMark = "..."

// expressiveMarks is the fixed glyph set a reply must contain at least one
// of; defaultMark is appended when none survive.
var expressiveMarks = []string{"😊", "💕", "😘", "😍", "🥰", "😉", "😋"}

const defaultMark = " 😊"

// Clean normalizes raw model output before it is stored or shown. The
// pipeline order is fixed: trim, line-dedup, truncate, expressive-mark
// guarantee. It is cosmetic only, not a content filter, and idempotent on
// already-clean input. The character name is accepted so callers clean per
// character; the pipeline itself is currently name-agnostic.
func Clean(raw, _ string) string {
	text := strings.TrimSpace(raw)

	// Drop repeated lines, order preserving, exact match.
	lines := strings.Split(text, "\n")
	unique := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		unique = append(unique, line)
	}
	text = strings.Join(unique, "\n")

	if runes := []rune(text); len(runes) > maxReplyRunes {
		text = string(runes[:maxReplyRunes]) + truncationMark
	}

	if !containsExpressiveMark(text) {
		if text == "" {
			return strings.TrimSpace(defaultMark)
		}
		text += defaultMark
	}
	return text
}

func containsExpressiveMark(text string) bool {
	for _, mark := range expressiveMarks {
		if strings.Contains(text, mark) {
			return true
		}
	}
	return false
}
