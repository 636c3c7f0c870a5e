package provider

import (
	"encoding/base64"
	"fmt"
	"html"
	"mime"
	"net/mail"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jaytaylor/html2text"
	"google.golang.org/api/gmail/v1"

	"github.com/FinanGammell/pare/core/domain"
	"github.com/FinanGammell/pare/pkg/logger"
	"github.com/FinanGammell/pare/pkg/mimetree"
	"github.com/FinanGammell/pare/pkg/textutil"
)

var partAccessor = mimetree.Accessor[*gmail.MessagePart]{
	MimeType: func(p *gmail.MessagePart) string { return p.MimeType },
	Children: func(p *gmail.MessagePart) []*gmail.MessagePart { return p.Parts },
}

var headerDecoder = &mime.WordDecoder{CharsetReader: textutil.CharsetReader}

// ConvertMessage maps a full-format Gmail message resource onto a
// FetchedMessage. raw is kept verbatim as the message's RawPayload.
func ConvertMessage(raw []byte) (*domain.FetchedMessage, error) {
	var msg gmail.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message resource: %w", err)
	}

	fm := &domain.FetchedMessage{
		ID:         msg.Id,
		ThreadID:   msg.ThreadId,
		Snippet:    textutil.Clean(html.UnescapeString(msg.Snippet)),
		RawPayload: raw,
	}

	var headers []*gmail.MessagePartHeader
	if msg.Payload != nil {
		headers = msg.Payload.Headers
	}
	fm.Subject = decodeHeader(getHeader(headers, "Subject"))
	fm.Sender = decodeHeader(getHeader(headers, "From"))
	fm.ReceivedAt = receivedAt(msg.InternalDate, getHeader(headers, "Date"))

	plain, htmlBody := ExtractBodies(msg.Payload)
	switch {
	case strings.TrimSpace(plain) != "":
		fm.Body = textutil.Clean(html.UnescapeString(plain))
	case htmlBody != "":
		fm.Body = textutil.Clean(htmlToText(htmlBody))
	}

	fm.UnsubscribeURL = textutil.Clean(ExtractUnsubscribeURL(getHeader(headers, "List-Unsubscribe"), htmlBody, plain))
	return fm, nil
}

// ExtractBodies returns the decoded first text/plain leaf and first text/html leaf.
func ExtractBodies(payload *gmail.MessagePart) (plain, htmlBody string) {
	if payload == nil {
		return "", ""
	}
	if part, ok := mimetree.FindFirst(payload, "text/plain", partAccessor); ok {
		plain = decodePartData(part)
	}
	if part, ok := mimetree.FindFirst(payload, "text/html", partAccessor); ok {
		htmlBody = decodePartData(part)
	}
	return plain, htmlBody
}

// decodePartData returns the part body as UTF-8, converted from the charset
// the part declares.
func decodePartData(part *gmail.MessagePart) string {
	if part.Body == nil || part.Body.Data == "" {
		return ""
	}
	data, err := base64.URLEncoding.DecodeString(part.Body.Data)
	if err != nil {
		// Gmail sometimes omits padding
		data, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(part.Body.Data, "="))
		if err != nil {
			logger.Debug("[GmailAdapter] failed to decode %s part: %v", part.MimeType, err)
			return ""
		}
	}
	return textutil.ToUTF8(data, partCharset(part))
}

// partCharset reads the charset parameter from the part's Content-Type
// header, falling back to its MIME type string.
func partCharset(part *gmail.MessagePart) string {
	for _, v := range []string{getHeader(part.Headers, "Content-Type"), part.MimeType} {
		if v == "" {
			continue
		}
		if _, params, err := mime.ParseMediaType(v); err == nil && params["charset"] != "" {
			return params["charset"]
		}
	}
	return ""
}

func htmlToText(s string) string {
	text, err := html2text.FromString(s, html2text.Options{OmitLinks: true, TextOnly: true})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// decodeHeader decodes RFC 2047 encoded words, keeping the raw value on failure.
func decodeHeader(s string) string {
	if s == "" {
		return ""
	}
	decoded, err := headerDecoder.DecodeHeader(s)
	if err != nil {
		return textutil.Clean(s)
	}
	return textutil.Clean(decoded)
}

// receivedAt prefers Gmail's internalDate (ms since epoch) over the Date header.
func receivedAt(internalDate int64, dateHeader string) time.Time {
	if internalDate > 0 {
		return time.UnixMilli(internalDate).UTC()
	}
	if dateHeader != "" {
		if t, err := mail.ParseDate(dateHeader); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
