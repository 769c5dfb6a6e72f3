package email

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrAttachment is wrapped by errors that come from reading an attachment
// from disk.
var ErrAttachment = errors.New("attachment unreadable")

const defaultAttachmentType = "application/octet-stream"

// Content is the input to Build. Only Text is required.
type Content struct {
	Text    string
	Subject string
	From    string
	// HTML, when set, turns the message into a multipart/alternative
	// message that also carries the attachment.
	HTML               string
	AttachmentPath     string
	AttachmentFilename string
}

// Build assembles a message from c. The attachment is read only when an
// HTML body is present; a missing file is reported as ErrAttachment and
// still matches fs.ErrNotExist.
func Build(c Content) (*Email, error) {
	msg := &Email{
		From:      c.From,
		Subject:   c.Subject,
		TextBody:  c.Text,
		HtmlBody:  c.HTML,
		MessageID: newMessageID(c.From),
		Date:      time.Now(),
	}

	if c.HTML != "" && c.AttachmentPath != "" {
		att, err := LoadAttachment(c.AttachmentPath, c.AttachmentFilename)
		if err != nil {
			return nil, err
		}
		msg.Attachments = append(msg.Attachments, att)
	}

	return msg, nil
}

// LoadAttachment reads the file at path. The filename defaults to the last
// element of path.
func LoadAttachment(path, filename string) (Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("%w: %w", ErrAttachment, err)
	}
	if filename == "" {
		filename = filepath.Base(path)
	}
	return Attachment{
		Filename:    filename,
		ContentType: defaultAttachmentType,
		Content:     data,
	}, nil
}

// EnvelopeFrom returns the bare address of the From header for use in
// MAIL FROM. Unparseable values are returned unchanged.
func (e *Email) EnvelopeFrom() string {
	addr, err := mail.ParseAddress(e.From)
	if err != nil {
		return e.From
	}
	return addr.Address
}

func newMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 {
		if d := strings.Trim(from[at+1:], "> "); d != "" {
			domain = d
		}
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
