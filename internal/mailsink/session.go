package mailsink

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/shineum/smtp-mailer/internal/parser"
)

// Session states.
const (
	stateConnected = iota
	stateGreeted
	stateAuthOK
	stateMailFrom
	stateRcptTo
)

// idleTimeout closes sessions that send nothing for this long.
const idleTimeout = 60 * time.Second

// session runs the SMTP state machine for one client connection.
type session struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	state  int
	server *Server

	tlsActive bool

	mailFrom string
	rcptTo   []string
}

func newSession(conn net.Conn, srv *Server) *session {
	return &session{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		state:  stateConnected,
		server: srv,
	}
}

// handle processes commands until the client quits, the connection fails
// or ctx is cancelled.
func (s *session) handle(ctx context.Context) {
	defer s.conn.Close()

	s.writeLine("220 %s ESMTP mailsink", s.server.config.Hostname)

	for {
		select {
		case <-ctx.Done():
			s.writeLine("421 Service shutting down")
			return
		default:
		}

		if err := s.conn.SetDeadline(time.Now().Add(idleTimeout)); err != nil {
			slog.Error("failed to set connection deadline", "error", err)
			return
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				slog.Debug("connection read error", "error", err)
			}
			return
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		cmd, arg := parseCommand(line)
		if s.handleCommand(ctx, cmd, arg) {
			return
		}
	}
}

// handleCommand returns true when the session should end.
func (s *session) handleCommand(ctx context.Context, cmd, arg string) bool {
	entry := cmd
	if cmd == "AUTH" {
		mech, _, _ := strings.Cut(arg, " ")
		entry += " " + strings.ToUpper(mech)
	}
	s.server.record(entry)

	switch cmd {
	case "EHLO", "HELO":
		s.handleEHLO(cmd, arg)
	case "STARTTLS":
		return s.handleSTARTTLS()
	case "AUTH":
		s.handleAUTH(arg)
	case "MAIL":
		s.handleMAIL(arg)
	case "RCPT":
		s.handleRCPT(arg)
	case "DATA":
		s.handleDATA(ctx)
	case "RSET":
		s.resetTransaction()
		s.writeLine("250 OK")
	case "NOOP":
		s.writeLine("250 OK")
	case "QUIT":
		s.writeLine("221 Bye")
		return true
	default:
		s.writeLine("500 Unrecognized command")
	}
	return false
}

func (s *session) handleEHLO(cmd, arg string) {
	if arg == "" {
		s.writeLine("501 Syntax: %s hostname", cmd)
		return
	}

	s.resetTransaction()
	if s.state < stateAuthOK {
		s.state = stateGreeted
	}
	hostname := s.server.config.Hostname

	if cmd == "HELO" {
		s.writeLine("250 %s Hello %s", hostname, arg)
		return
	}

	s.writeLine("250-%s Hello %s", hostname, arg)
	if s.server.config.TLSConfig != nil && !s.tlsActive {
		s.writeLine("250-STARTTLS")
	}
	if s.server.auth.Enabled() {
		s.writeLine("250-AUTH PLAIN LOGIN")
	}
	s.writeLine("250-SIZE %d", s.server.config.MaxMessageSize)
	s.writeLine("250 OK")
}

// handleSTARTTLS upgrades the connection. It returns true when the
// handshake failed and the connection is unusable.
func (s *session) handleSTARTTLS() bool {
	if s.server.config.TLSConfig == nil {
		s.writeLine("454 TLS not available")
		return false
	}
	if s.tlsActive {
		s.writeLine("454 TLS already active")
		return false
	}

	s.writeLine("220 Ready to start TLS")

	tlsConn := tls.Server(s.conn, s.server.config.TLSConfig)
	if err := tlsConn.Handshake(); err != nil {
		slog.Error("TLS handshake failed", "error", err)
		return true
	}

	s.conn = tlsConn
	s.reader = bufio.NewReader(tlsConn)
	s.writer = bufio.NewWriter(tlsConn)
	s.tlsActive = true

	// The client must greet again and any earlier state is discarded.
	s.resetTransaction()
	s.state = stateConnected
	return false
}

func (s *session) handleAUTH(arg string) {
	if s.state < stateGreeted {
		s.writeLine("503 Send EHLO/HELO first")
		return
	}
	if !s.server.auth.Enabled() {
		s.writeLine("503 AUTH not available")
		return
	}
	if s.state >= stateAuthOK {
		s.writeLine("503 Already authenticated")
		return
	}

	mechanism, initial, _ := strings.Cut(arg, " ")
	switch strings.ToUpper(mechanism) {
	case "PLAIN":
		s.authPlain(strings.TrimSpace(initial))
	case "LOGIN":
		s.authLogin()
	default:
		s.writeLine("504 Unrecognized authentication type")
	}
}

// authPlain drives a SASL PLAIN exchange, with or without an initial
// response.
func (s *session) authPlain(initial string) {
	server := s.server.auth.PlainServer()

	var response []byte
	switch initial {
	case "":
	case "=":
		response = []byte{}
	default:
		decoded, err := base64.StdEncoding.DecodeString(initial)
		if err != nil {
			s.writeLine("501 Invalid base64 data")
			return
		}
		response = decoded
	}

	for {
		challenge, done, err := server.Next(response)
		if err != nil {
			s.writeLine("535 Authentication failed")
			return
		}
		if done {
			break
		}

		s.writeLine("334 %s", base64.StdEncoding.EncodeToString(challenge))
		line, ok := s.readAuthLine()
		if !ok {
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(line)
		if err != nil {
			s.writeLine("501 Invalid base64 data")
			return
		}
		response = decoded
	}

	s.state = stateAuthOK
	s.writeLine("235 Authentication successful")
}

func (s *session) authLogin() {
	// "Username:" and "Password:" in base64.
	s.writeLine("334 VXNlcm5hbWU6")
	user, ok := s.readAuthLine()
	if !ok {
		return
	}
	s.writeLine("334 UGFzc3dvcmQ6")
	pass, ok := s.readAuthLine()
	if !ok {
		return
	}

	if err := s.server.auth.VerifyLogin(user, pass); err != nil {
		s.writeLine("535 Authentication failed")
		return
	}

	s.state = stateAuthOK
	s.writeLine("235 Authentication successful")
}

// readAuthLine reads one client response during AUTH. It reports false
// when the exchange ended, either by cancellation or a read error.
func (s *session) readAuthLine() (string, bool) {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		slog.Error("failed to read AUTH response", "error", err)
		return "", false
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "*" {
		s.writeLine("501 Authentication cancelled")
		return "", false
	}
	return line, true
}

func (s *session) handleMAIL(arg string) {
	if s.state < stateGreeted {
		s.writeLine("503 Send EHLO/HELO first")
		return
	}
	if s.server.auth.Enabled() && s.state < stateAuthOK {
		s.writeLine("530 Authentication required")
		return
	}

	if !strings.HasPrefix(strings.ToUpper(arg), "FROM:") {
		s.writeLine("501 Syntax: MAIL FROM:<address>")
		return
	}

	addr, params := extractAddress(arg[5:])
	if addr == "" {
		s.writeLine("501 Syntax: MAIL FROM:<address>")
		return
	}

	for _, param := range params {
		key, value, _ := strings.Cut(param, "=")
		if !strings.EqualFold(key, "SIZE") {
			continue
		}
		size, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			s.writeLine("501 Invalid SIZE parameter")
			return
		}
		if size > s.server.config.MaxMessageSize {
			s.writeLine("552 Message size exceeds fixed maximum message size")
			return
		}
	}

	s.mailFrom = addr
	s.rcptTo = nil
	s.state = stateMailFrom
	s.writeLine("250 OK")
}

func (s *session) handleRCPT(arg string) {
	if s.state < stateMailFrom {
		s.writeLine("503 Send MAIL FROM first")
		return
	}

	if !strings.HasPrefix(strings.ToUpper(arg), "TO:") {
		s.writeLine("501 Syntax: RCPT TO:<address>")
		return
	}

	addr, _ := extractAddress(arg[3:])
	if addr == "" {
		s.writeLine("501 Syntax: RCPT TO:<address>")
		return
	}

	s.rcptTo = append(s.rcptTo, addr)
	s.state = stateRcptTo
	s.writeLine("250 OK")
}

// handleDATA reads the message up to the terminating dot line. Payloads
// above MaxMessageSize are read to the end and rejected.
func (s *session) handleDATA(ctx context.Context) {
	if s.state < stateRcptTo {
		s.writeLine("503 Send RCPT TO first")
		return
	}

	s.writeLine("354 Start mail input; end with <CRLF>.<CRLF>")

	var (
		data     strings.Builder
		size     int64
		tooLarge bool
	)
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			slog.Error("error reading DATA", "error", err)
			return
		}

		if strings.TrimRight(line, "\r\n") == "." {
			break
		}
		if strings.HasPrefix(line, "..") {
			line = line[1:]
		}

		size += int64(len(line))
		if size > s.server.config.MaxMessageSize {
			tooLarge = true
			continue
		}
		data.WriteString(line)
	}

	defer s.resetTransaction()

	if tooLarge {
		slog.Warn("rejected oversized message", "size", size, "from", s.mailFrom)
		s.writeLine("552 Message size exceeds fixed maximum message size")
		return
	}

	msg, err := parser.Parse([]byte(data.String()))
	if err != nil {
		slog.Error("failed to parse message", "error", err)
		s.writeLine("550 Failed to process message")
		return
	}

	if msg.From == "" {
		msg.From = s.mailFrom
	}
	if len(msg.To) == 0 {
		msg.To = s.rcptTo
	}

	prov := s.server.config.Provider
	if err := prov.Send(ctx, msg); err != nil {
		slog.Error("provider send failed",
			"provider", prov.Name(),
			"error", err,
		)
		s.writeLine("451 Temporary failure, please try again later")
		return
	}

	slog.Info("message accepted",
		"from", s.mailFrom,
		"recipients", len(s.rcptTo),
		"size", size,
	)
	s.writeLine("250 OK message accepted")
}

// resetTransaction clears the mail transaction but keeps the greeting and
// authentication state.
func (s *session) resetTransaction() {
	s.mailFrom = ""
	s.rcptTo = nil

	switch {
	case s.state >= stateAuthOK:
		s.state = stateAuthOK
	case s.state >= stateGreeted:
		s.state = stateGreeted
	}
}

func (s *session) writeLine(format string, args ...any) {
	if _, err := fmt.Fprintf(s.writer, format+"\r\n", args...); err != nil {
		slog.Error("failed to write to client", "error", err)
		return
	}
	if err := s.writer.Flush(); err != nil {
		slog.Error("failed to flush to client", "error", err)
	}
}

// parseCommand splits a command line into its upper-cased verb and the
// argument.
func parseCommand(line string) (string, string) {
	cmd, arg, _ := strings.Cut(line, " ")
	return strings.ToUpper(cmd), arg
}

// extractAddress returns the path of a MAIL or RCPT argument and any
// ESMTP parameters after it. Both "<addr>" and bare forms are accepted.
func extractAddress(s string) (string, []string) {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "<") {
		end := strings.Index(s, ">")
		if end < 0 {
			return "", nil
		}
		return s[1:end], strings.Fields(s[end+1:])
	}

	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}
