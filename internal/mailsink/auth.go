package mailsink

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/emersion/go-sasl"
)

var errAuthFailed = errors.New("authentication failed")

// Authenticator checks SMTP AUTH credentials against a single account.
type Authenticator struct {
	username string
	password string
}

// NewAuthenticator creates an Authenticator for username and password.
// Authentication is disabled when either is empty.
func NewAuthenticator(username, password string) *Authenticator {
	return &Authenticator{
		username: username,
		password: password,
	}
}

// Enabled reports whether clients must authenticate.
func (a *Authenticator) Enabled() bool {
	return a.username != "" && a.password != ""
}

// Check compares the given credentials in constant time.
func (a *Authenticator) Check(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	if !userOK || !passOK {
		return errAuthFailed
	}
	return nil
}

// PlainServer returns a SASL PLAIN server bound to this account. The
// authorization identity is ignored.
func (a *Authenticator) PlainServer() sasl.Server {
	return sasl.NewPlainServer(func(_, username, password string) error {
		return a.Check(username, password)
	})
}

// VerifyLogin checks base64 encoded AUTH LOGIN responses.
func (a *Authenticator) VerifyLogin(encodedUser, encodedPass string) error {
	user, err := base64.StdEncoding.DecodeString(encodedUser)
	if err != nil {
		return fmt.Errorf("invalid base64 username")
	}
	pass, err := base64.StdEncoding.DecodeString(encodedPass)
	if err != nil {
		return fmt.Errorf("invalid base64 password")
	}
	return a.Check(string(user), string(pass))
}
