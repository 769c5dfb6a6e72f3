package email_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shineum/smtp-mailer/internal/email"
	"github.com/shineum/smtp-mailer/internal/parser"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestBuild_PlainText(t *testing.T) {
	t.Parallel()

	msg, err := email.Build(email.Content{
		Text:    "This is a test message",
		Subject: "foto",
		From:    "sender@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := msg.Render("to@example.com")
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	parts, err := parser.Parts(raw)
	if err != nil {
		t.Fatalf("parts: %v", err)
	}
	if len(parts) != 1 || parts[0].MediaType != "text/plain" {
		t.Fatalf("expected one text/plain part, got %+v", parts)
	}
	if strings.Contains(string(raw), "multipart/") {
		t.Error("plain text message should not be multipart")
	}

	parsed, err := parser.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Subject != "foto" {
		t.Errorf("Subject: got %q, want %q", parsed.Subject, "foto")
	}
	if parsed.From != "sender@example.com" {
		t.Errorf("From: got %q, want %q", parsed.From, "sender@example.com")
	}
	if parsed.TextBody != "This is a test message" {
		t.Errorf("TextBody: got %q", parsed.TextBody)
	}
	if !strings.HasPrefix(parsed.MessageID, "<") || !strings.HasSuffix(parsed.MessageID, "@example.com>") {
		t.Errorf("MessageID: got %q, want <uuid@example.com>", parsed.MessageID)
	}
}

func TestBuild_PlainTextSkipsAttachment(t *testing.T) {
	t.Parallel()

	// Without HTML the attachment is never read, so a missing file is fine.
	msg, err := email.Build(email.Content{
		Text:           "body",
		From:           "sender@example.com",
		AttachmentPath: filepath.Join(t.TempDir(), "missing.png"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msg.Attachments) != 0 {
		t.Errorf("Attachments: got %d, want 0", len(msg.Attachments))
	}
}

func TestBuild_HTMLWithAttachment(t *testing.T) {
	t.Parallel()

	payload := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}
	path := writeFile(t, "scan.png", payload)

	msg, err := email.Build(email.Content{
		Text:               "plain body",
		Subject:            "Contract",
		From:               "sender@example.com",
		HTML:               "<p>html body</p>",
		AttachmentPath:     path,
		AttachmentFilename: "contract.png",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := msg.Render("to@example.com")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(string(raw), "Content-Type: multipart/alternative;") {
		t.Error("expected a multipart/alternative message")
	}
	if !strings.Contains(string(raw), "Content-Disposition: attachment; filename=contract.png") {
		t.Error("expected attachment disposition with filename")
	}

	parts, err := parser.Parts(raw)
	if err != nil {
		t.Fatalf("parts: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("parts: got %d, want 3", len(parts))
	}
	if !parts[0].Attachment || parts[0].Filename != "contract.png" {
		t.Errorf("part 0: got %+v, want attachment contract.png", parts[0])
	}
	if string(parts[0].Content) != string(payload) {
		t.Errorf("attachment content: got %v, want %v", parts[0].Content, payload)
	}
	if parts[1].MediaType != "text/plain" || string(parts[1].Content) != "plain body" {
		t.Errorf("part 1: got %s %q", parts[1].MediaType, parts[1].Content)
	}
	if parts[2].MediaType != "text/html" || string(parts[2].Content) != "<p>html body</p>" {
		t.Errorf("part 2: got %s %q", parts[2].MediaType, parts[2].Content)
	}
}

func TestBuild_HTMLWithoutAttachmentPath(t *testing.T) {
	t.Parallel()

	msg, err := email.Build(email.Content{Text: "plain", HTML: "<b>html</b>", From: "a@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := msg.Render("to@example.com")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	parts, err := parser.Parts(raw)
	if err != nil {
		t.Fatalf("parts: %v", err)
	}
	if len(parts) != 2 || parts[0].MediaType != "text/plain" || parts[1].MediaType != "text/html" {
		t.Errorf("expected text/plain then text/html, got %+v", parts)
	}
}

func TestBuild_MissingAttachment(t *testing.T) {
	t.Parallel()

	_, err := email.Build(email.Content{
		Text:           "plain",
		HTML:           "<p>html</p>",
		AttachmentPath: filepath.Join(t.TempDir(), "does-not-exist.png"),
	})
	if err == nil {
		t.Fatal("expected error for missing attachment, got nil")
	}
	if !errors.Is(err, email.ErrAttachment) {
		t.Errorf("expected ErrAttachment, got %v", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestLoadAttachment_DefaultFilename(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "report.pdf", []byte("%PDF"))
	att, err := email.LoadAttachment(path, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if att.Filename != "report.pdf" {
		t.Errorf("Filename: got %q, want %q", att.Filename, "report.pdf")
	}
	if att.ContentType != "application/octet-stream" {
		t.Errorf("ContentType: got %q", att.ContentType)
	}
}

func TestRender_RecipientHeaderIsPerCall(t *testing.T) {
	t.Parallel()

	msg, err := email.Build(email.Content{Text: "hi", From: "sender@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := msg.Render("a@example.com")
	if err != nil {
		t.Fatalf("render a: %v", err)
	}
	second, err := msg.Render("b@example.com")
	if err != nil {
		t.Fatalf("render b: %v", err)
	}

	if strings.Contains(string(second), "a@example.com") {
		t.Error("second rendering leaked the first recipient")
	}
	if !strings.Contains(string(first), "To: a@example.com\r\n") {
		t.Error("first rendering missing its To header")
	}
	if !strings.Contains(string(second), "To: b@example.com\r\n") {
		t.Error("second rendering missing its To header")
	}
	if len(msg.To) != 0 {
		t.Errorf("Render must not mutate the message, To = %v", msg.To)
	}
}

func TestRender_StripsHeaderInjection(t *testing.T) {
	t.Parallel()

	msg := &email.Email{From: "sender@example.com", Subject: "hello\r\nBcc: victim@example.com", TextBody: "x"}
	raw, err := msg.Render("to@example.com")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(string(raw), "\r\nBcc:") {
		t.Error("subject line break was not stripped")
	}
}

func TestEnvelopeFrom(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from string
		want string
	}{
		{from: "sender@example.com", want: "sender@example.com"},
		{from: "Sales Team <sales@example.com>", want: "sales@example.com"},
		{from: "not an address", want: "not an address"},
	}

	for _, tt := range tests {
		msg := &email.Email{From: tt.from}
		if got := msg.EnvelopeFrom(); got != tt.want {
			t.Errorf("EnvelopeFrom(%q): got %q, want %q", tt.from, got, tt.want)
		}
	}
}
