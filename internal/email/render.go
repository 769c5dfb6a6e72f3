package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"
)

// headerSanitizer strips line breaks so header values cannot inject headers.
var headerSanitizer = strings.NewReplacer("\r", "", "\n", "")

// Render produces the RFC 5322 message addressed to the single recipient
// to. Headers are rebuilt on every call, so rendering for one recipient
// never leaks into another.
//
// A message without HTML and without attachments is a single text/plain
// part. Otherwise it is multipart/alternative with the attachments first,
// then the text/plain part, then the text/html part.
func (e *Email) Render(to string) ([]byte, error) {
	var buf bytes.Buffer

	writeHeader(&buf, "MIME-Version", "1.0")
	if !e.Date.IsZero() {
		writeHeader(&buf, "Date", e.Date.Format(time.RFC1123Z))
	}
	if e.MessageID != "" {
		writeHeader(&buf, "Message-ID", e.MessageID)
	}
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", e.Subject))
	writeHeader(&buf, "From", e.From)
	if to != "" {
		writeHeader(&buf, "To", to)
	}
	if len(e.Cc) > 0 {
		writeHeader(&buf, "Cc", strings.Join(e.Cc, ", "))
	}

	if !e.HasHTML() && len(e.Attachments) == 0 {
		writeHeader(&buf, "Content-Type", `text/plain; charset="utf-8"`)
		writeHeader(&buf, "Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString("\r\n")
		if err := writeQuotedPrintable(&buf, e.TextBody); err != nil {
			return nil, fmt.Errorf("failed to encode text body: %w", err)
		}
		return buf.Bytes(), nil
	}

	writer := multipart.NewWriter(&buf)
	writeHeader(&buf, "Content-Type", mime.FormatMediaType("multipart/alternative", map[string]string{
		"boundary": writer.Boundary(),
	}))
	buf.WriteString("\r\n")

	for _, att := range e.Attachments {
		if err := writeAttachment(writer, att); err != nil {
			return nil, err
		}
	}
	if err := writeTextPart(writer, "text/plain", e.TextBody); err != nil {
		return nil, err
	}
	if e.HasHTML() {
		if err := writeTextPart(writer, "text/html", e.HtmlBody); err != nil {
			return nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	fmt.Fprintf(buf, "%s: %s\r\n", key, headerSanitizer.Replace(value))
}

func writeTextPart(writer *multipart.Writer, mediaType, body string) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Type", mediaType+`; charset="utf-8"`)
	header.Set("Content-Transfer-Encoding", "quoted-printable")

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", mediaType, err)
	}
	if err := writeQuotedPrintable(part, body); err != nil {
		return fmt.Errorf("failed to encode %s part: %w", mediaType, err)
	}
	return nil
}

func writeAttachment(writer *multipart.Writer, att Attachment) error {
	contentType := att.ContentType
	if contentType == "" {
		contentType = defaultAttachmentType
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Type", contentType)
	header.Set("Content-Transfer-Encoding", "base64")
	header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": att.Filename,
	}))

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create attachment part: %w", err)
	}
	if _, err := part.Write([]byte(encodeBase64WithLineBreaks(att.Content))); err != nil {
		return fmt.Errorf("failed to write attachment %q: %w", att.Filename, err)
	}
	return nil
}

func writeQuotedPrintable(w io.Writer, body string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}

// encodeBase64WithLineBreaks encodes bytes to base64 with 76-character line breaks per RFC 2045.
func encodeBase64WithLineBreaks(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var lines []string
	for i := 0; i < len(encoded); i += 76 {
		end := min(i+76, len(encoded))
		lines = append(lines, encoded[i:end])
	}
	return strings.Join(lines, "\r\n")
}
