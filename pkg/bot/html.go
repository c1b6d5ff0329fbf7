package bot

import (
	"fmt"
	"strings"
)

// Telegram rejects messages longer than this.
const maxMessageLen = 4096

// code wraps a value in <code>, escaped for Telegram HTML.
func code(v any) string {
	return "<code>" + escapeHTML(fmt.Sprint(v)) + "</code>"
}

// preBlock wraps body in <pre>, cutting it at a line or word boundary so the
// whole block stays within room bytes.
func preBlock(body string, room int) string {
	const openTag, closeTag, more = "<pre>", "</pre>", "\n…"
	body = escapeHTML(body)
	if len(openTag)+len(body)+len(closeTag) <= room {
		return openTag + body + closeTag
	}
	keep := room - len(openTag) - len(closeTag) - len(more)
	if keep <= 0 {
		return ""
	}
	cut := body[:keep]
	if i := strings.LastIndexAny(cut, "\n "); i > 0 {
		cut = cut[:i]
	}
	// Never end inside an entity such as &amp;.
	if amp := strings.LastIndexByte(cut, '&'); amp >= 0 && !strings.Contains(cut[amp:], ";") {
		cut = cut[:amp]
	}
	return openTag + cut + more + closeTag
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
