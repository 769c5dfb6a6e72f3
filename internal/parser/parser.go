// Package parser reads RFC 5322 messages with MIME multipart bodies back
// into the email model. The mail sink uses it for received mail and the
// tests use it to inspect composed messages.
package parser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/shineum/smtp-mailer/internal/email"
)

// Part is one leaf MIME part with its transfer encoding removed.
type Part struct {
	MediaType  string
	Filename   string
	Attachment bool
	Content    []byte
}

var wordDecoder = new(mime.WordDecoder)

// Parse parses a raw message into an Email. The first text/plain and
// text/html parts become the bodies; parts with an attachment disposition
// or a filename become attachments.
func Parse(raw []byte) (*email.Email, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	result := &email.Email{
		RawHeaders: make(map[string][]string, len(msg.Header)),
		From:       decodeHeader(msg.Header.Get("From")),
		Subject:    decodeHeader(msg.Header.Get("Subject")),
		MessageID:  msg.Header.Get("Message-Id"),
		To:         parseAddressList(msg.Header.Get("To")),
		Cc:         parseAddressList(msg.Header.Get("Cc")),
		Bcc:        parseAddressList(msg.Header.Get("Bcc")),
	}
	for key, values := range msg.Header {
		result.RawHeaders[key] = values
	}
	if date, err := msg.Header.Date(); err == nil {
		result.Date = date
	}

	parts, err := readEntity(textproto.MIMEHeader(msg.Header), msg.Body)
	if err != nil {
		return nil, err
	}

	for _, p := range parts {
		switch {
		case p.Attachment:
			result.Attachments = append(result.Attachments, toAttachment(p))
		case p.MediaType == "text/plain":
			if result.TextBody == "" {
				result.TextBody = string(p.Content)
			}
		case p.MediaType == "text/html":
			if result.HtmlBody == "" {
				result.HtmlBody = string(p.Content)
			}
		case p.Filename != "":
			result.Attachments = append(result.Attachments, toAttachment(p))
		default:
			slog.Warn("unrecognized MIME part, skipping", "content_type", p.MediaType)
		}
	}

	return result, nil
}

// Parts returns the leaf parts of a raw message in the order they appear.
// Nested multiparts are flattened.
func Parts(raw []byte) ([]Part, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return readEntity(textproto.MIMEHeader(msg.Header), msg.Body)
}

// readEntity reads one MIME entity, descending into multipart bodies.
func readEntity(header textproto.MIMEHeader, body io.Reader) ([]Part, error) {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		slog.Warn("failed to parse content type, treating as plain text",
			"content_type", contentType,
			"error", err,
		)
		mediaType, params = "text/plain", map[string]string{}
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart message missing boundary")
		}
		return readMultipart(body, boundary)
	}

	content, err := decodeContent(header.Get("Content-Transfer-Encoding"), body)
	if err != nil {
		return nil, err
	}

	disposition, dispParams, _ := mime.ParseMediaType(header.Get("Content-Disposition"))
	filename := dispParams["filename"]
	if filename == "" {
		filename = params["name"]
	}

	return []Part{{
		MediaType:  mediaType,
		Filename:   filename,
		Attachment: disposition == "attachment",
		Content:    content,
	}}, nil
}

func readMultipart(body io.Reader, boundary string) ([]Part, error) {
	reader := multipart.NewReader(body, boundary)

	var parts []Part
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return parts, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read next part: %w", err)
		}

		// NextPart already strips quoted-printable and drops the header.
		children, err := readEntity(part.Header, part)
		if err != nil {
			slog.Warn("failed to read MIME part, skipping",
				"content_type", part.Header.Get("Content-Type"),
				"error", err,
			)
			continue
		}
		parts = append(parts, children...)
	}
}

// decodeContent removes the Content-Transfer-Encoding from body.
func decodeContent(encoding string, body io.Reader) ([]byte, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		cleaned := strings.NewReplacer("\r", "", "\n", "", " ", "").Replace(string(raw))
		decoded, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(cleaned)
			if err != nil {
				return nil, fmt.Errorf("failed to decode base64 content: %w", err)
			}
		}
		return decoded, nil
	case "quoted-printable":
		decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(raw)))
		if err != nil {
			return nil, fmt.Errorf("failed to decode quoted-printable content: %w", err)
		}
		return decoded, nil
	default:
		return raw, nil
	}
}

func toAttachment(p Part) email.Attachment {
	filename := p.Filename
	if filename == "" {
		filename = "attachment"
		if _, subtype, ok := strings.Cut(p.MediaType, "/"); ok {
			filename += "." + subtype
		}
	}
	return email.Attachment{
		Filename:    filename,
		ContentType: p.MediaType,
		Content:     p.Content,
	}
}

func decodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// parseAddressList splits a comma-separated address list into bare addresses.
func parseAddressList(raw string) []string {
	if raw == "" {
		return nil
	}

	addresses, err := mail.ParseAddressList(raw)
	if err != nil {
		parts := strings.Split(raw, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		result = append(result, addr.Address)
	}
	return result
}
