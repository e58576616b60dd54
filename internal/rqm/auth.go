package rqm

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
)

// AuthStatus is the outcome of a credential check.
type AuthStatus int

// Credential check outcomes.
const (
	AuthOK AuthStatus = iota
	AuthRejected
	AuthUnreachable
)

func (s AuthStatus) String() string {
	switch s {
	case AuthOK:
		return "ok"
	case AuthRejected:
		return "rejected"
	case AuthUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s AuthStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// authMsgHeader is set by Jazz servers that answer 200 with a login form
// instead of the requested resource.
const authMsgHeader = "X-com-ibm-team-repository-web-auth-msg"

// AuthResult describes a credential check.
type AuthResult struct {
	Status     AuthStatus `json:"status" yaml:"status"`
	StatusCode int        `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Server     string     `json:"server" yaml:"server"`
	Username   string     `json:"username" yaml:"username"`
	Err        error      `json:"-" yaml:"-"`
}

// OK reports whether the credentials were accepted.
func (r AuthResult) OK() bool {
	return r.Status == AuthOK
}

// Message returns a one-line summary for humans.
func (r AuthResult) Message() string {
	switch r.Status {
	case AuthOK:
		return "Login successful."
	case AuthRejected:
		return "Login failed. Please check your credentials."
	default:
		if r.Err != nil {
			return "Server unreachable: " + r.Err.Error()
		}
		return "Server unreachable."
	}
}

// Authenticate validates the configured credentials with a GET on the
// server's /qm root. It never returns an error; failures are reported in the
// result.
func (c *Client) Authenticate(ctx context.Context) AuthResult {
	result := AuthResult{Server: c.Server(), Username: c.username}

	_, header, err := c.do(ctx, request{
		op:     "authenticate",
		method: http.MethodGet,
		path:   authPath,
	})
	if err != nil {
		result.Err = err
		var te *TransportError
		if errors.As(err, &te) && te.StatusCode != 0 {
			result.StatusCode = te.StatusCode
			if te.StatusCode == http.StatusUnauthorized || te.StatusCode == http.StatusForbidden {
				result.Status = AuthRejected
				return result
			}
		}
		result.Status = AuthUnreachable
		return result
	}

	result.StatusCode = http.StatusOK
	if strings.EqualFold(header.Get(authMsgHeader), "authrequired") ||
		strings.EqualFold(header.Get(authMsgHeader), "authfailed") {
		result.Status = AuthRejected
		result.Err = errors.New("server requested form login")
		return result
	}
	result.Status = AuthOK
	return result
}
