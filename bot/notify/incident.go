package notify

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/m3rciful/callerbot/bot/flow"
	"github.com/m3rciful/callerbot/bot/provider"
	"github.com/m3rciful/callerbot/core/telegram/format"

	slackapi "github.com/slack-go/slack"
)

// Telegram rejects messages over 4096 characters; leave room for markup.
const (
	maxTelegramText = 4000
	maxBlock        = 1200
	// Escaping can double a value, and up to four values share the header.
	maxLine = 400
)

// FormatIncident renders inc as a MarkdownV2 operator message: the failing
// update, then either the provider HTTP exchange or the stack trace.
func FormatIncident(inc flow.Incident) string {
	var b strings.Builder
	b.WriteString("*Incident*\n")
	line(&b, "Chat", strconv.FormatInt(inc.ChatID, 10))
	if inc.UpdateID != 0 {
		line(&b, "Update", strconv.Itoa(inc.UpdateID))
	}
	if inc.Text != "" {
		line(&b, "Text", inc.Text)
	}
	if inc.Err != nil {
		line(&b, "Error", inc.Err.Error())
	}

	var pe *provider.Error
	if errors.As(inc.Err, &pe) {
		ex := pe.Exchange
		if ex.URL != "" {
			line(&b, "URL", ex.Method+" "+ex.URL)
		}
		if len(ex.Params) > 0 {
			line(&b, "Params", ex.Params.Encode())
		}
		if ex.RequestBody != "" {
			block(&b, "Request", ex.RequestBody)
		}
		if ex.ResponseStatus != 0 || ex.ResponseBody != "" {
			block(&b, "Response "+strconv.Itoa(ex.ResponseStatus), ex.ResponseBody)
		}
	} else if len(inc.Stack) > 0 {
		block(&b, "Stack", string(inc.Stack))
	}

	out := b.String()
	if len(out) > maxTelegramText {
		// Cutting could split an escape sequence or a code block; fall back to
		// the header lines only.
		out = strings.SplitN(out, "\n*Request:*", 2)[0]
		out = strings.SplitN(out, "\n*Response", 2)[0]
		out = strings.SplitN(out, "\n*Stack:*", 2)[0]
		out += "\n" + format.EscapeV2("(details truncated)")
	}
	return out
}

// SlackIncident renders inc as a summary line plus one attachment.
func SlackIncident(inc flow.Incident) (string, slackapi.Attachment) {
	summary := "callerbot incident in chat " + strconv.FormatInt(inc.ChatID, 10)
	att := slackapi.Attachment{
		Color:    "danger",
		Fallback: summary,
	}
	add := func(title, value string, short bool) {
		if value == "" {
			return
		}
		att.Fields = append(att.Fields, slackapi.AttachmentField{Title: title, Value: value, Short: short})
	}
	if inc.UpdateID != 0 {
		add("Update", strconv.Itoa(inc.UpdateID), true)
	}
	add("Text", clip(inc.Text, maxLine), true)
	if inc.Err != nil {
		add("Error", clip(inc.Err.Error(), maxBlock), false)
	}
	var pe *provider.Error
	if errors.As(inc.Err, &pe) {
		add("URL", strings.TrimSpace(pe.Exchange.Method+" "+pe.Exchange.URL), false)
		if len(pe.Exchange.Params) > 0 {
			add("Params", pe.Exchange.Params.Encode(), false)
		}
		add("Request", clip(pe.Exchange.RequestBody, maxBlock), false)
		add("Response", clip(pe.Exchange.ResponseBody, maxBlock), false)
	} else if len(inc.Stack) > 0 {
		att.Text = "```" + clip(string(inc.Stack), maxBlock) + "```"
	}
	return summary, att
}

func line(b *strings.Builder, label, value string) {
	b.WriteByte('*')
	b.WriteString(label)
	b.WriteString(":* ")
	b.WriteString(format.EscapeV2(clip(value, maxLine)))
	b.WriteByte('\n')
}

func block(b *strings.Builder, label, body string) {
	b.WriteByte('*')
	b.WriteString(format.EscapeV2(label))
	b.WriteString(":*\n```\n")
	escaped, _ := format.EscapeMarkdown(clip(body, maxBlock), format.MarkdownV2, "pre")
	b.WriteString(escaped)
	b.WriteString("\n```\n")
}

// clip cuts s to at most limit bytes on a rune boundary.
func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
