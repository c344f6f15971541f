package gmail

import (
	"encoding/base64"
	"html"
	"regexp"
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"
)

const (
	mimeTextPlain = "text/plain"
	mimeTextHTML  = "text/html"
)

// messageBody prefers a text/plain part, then a text/html part reduced to
// text. Messages without parts use the top-level body.
func messageBody(payload *gmailapi.MessagePart) string {
	if payload == nil {
		return ""
	}

	if len(payload.Parts) == 0 {
		text := decodePart(payload)
		if strings.HasPrefix(payload.MimeType, mimeTextHTML) {
			return htmlToText(text)
		}
		return text
	}

	if p := findPart(payload.Parts, mimeTextPlain); p != nil {
		return decodePart(p)
	}
	if p := findPart(payload.Parts, mimeTextHTML); p != nil {
		return htmlToText(decodePart(p))
	}
	return ""
}

// findPart walks nested multiparts depth-first and returns the first part of
// the given type that carries inline data.
func findPart(parts []*gmailapi.MessagePart, mimeType string) *gmailapi.MessagePart {
	for _, p := range parts {
		if p == nil {
			continue
		}
		if strings.HasPrefix(p.MimeType, mimeType) && p.Body != nil && p.Body.Data != "" {
			return p
		}
		if found := findPart(p.Parts, mimeType); found != nil {
			return found
		}
	}
	return nil
}

func decodePart(p *gmailapi.MessagePart) string {
	if p == nil || p.Body == nil || p.Body.Data == "" {
		return ""
	}
	return decodeBase64(p.Body.Data)
}

// decodeBase64 accepts Gmail's URL-safe alphabet with or without padding,
// and standard base64 as a fallback.
func decodeBase64(data string) string {
	trimmed := strings.TrimRight(data, "=")
	if b, err := base64.RawURLEncoding.DecodeString(trimmed); err == nil {
		return string(b)
	}
	if b, err := base64.StdEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	return ""
}

var (
	scriptOrStyle = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)>`)
	tag           = regexp.MustCompile(`<[^>]*>`)
	whitespace    = regexp.MustCompile(`\s+`)
)

func htmlToText(s string) string {
	s = scriptOrStyle.ReplaceAllString(s, " ")
	s = tag.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
