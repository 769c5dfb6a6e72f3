// Package email defines the message model shared by the composer, the
// delivery providers and the mail sink, along with its MIME rendering.
package email

import "time"

// Email represents a message with all its components. To lists the
// recipients; Render writes a To header naming only one of them.
type Email struct {
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	TextBody    string
	HtmlBody    string
	Attachments []Attachment
	RawHeaders  map[string][]string
	MessageID   string
	Date        time.Time
}

// Attachment represents a file attached to an email message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// HasHTML reports whether the message carries an HTML alternative.
func (e *Email) HasHTML() bool {
	return e.HtmlBody != ""
}
