package format

import (
	"fmt"
	"strings"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

const (
	mdV1Specials = "_*`["
	mdV2Specials = "_*[]()~`>#+-=|{}.!\\"
)

// EscapeMarkdown escapes special characters for MarkdownV1 or V2.
// For V2, entityType "pre" or "code" escapes only ` and \, and "text_link"
// escapes only ) and \, as Telegram requires inside those entities.
func EscapeMarkdown(text string, version int, entityType string) (string, error) {
	switch version {
	case MarkdownV1:
		return escapeWith(text, mdV1Specials), nil
	case MarkdownV2:
		switch entityType {
		case "pre", "code":
			return escapeWith(text, "`\\"), nil
		case "text_link", "custom_emoji":
			return escapeWith(text, ")\\"), nil
		}
		return escapeWith(text, mdV2Specials), nil
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}

// EscapeV2 is EscapeMarkdown for plain MarkdownV2 text.
func EscapeV2(text string) string {
	return escapeWith(text, mdV2Specials)
}

func escapeWith(text, specials string) string {
	var b strings.Builder
	b.Grow(len(text) + 8)
	for _, r := range text {
		if strings.ContainsRune(specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
