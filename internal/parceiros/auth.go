package parceiros

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/transport"
)

var ErrUnauthenticated = errors.New("parceiros authentication failed")

// loginSource exchanges username/password for a bearer token on /login.
// The API does not report an expiry, so tokens are assumed valid for ttl.
type loginSource struct {
	ctx      context.Context
	api      *transport.Client
	username string
	password string
	ttl      time.Duration
}

type loginResponse struct {
	Token string `json:"token"`
}

func (s *loginSource) Token() (*oauth2.Token, error) {
	var out loginResponse
	err := s.api.DoJSON(s.ctx, transport.Request{
		Method:   http.MethodPost,
		Endpoint: "login",
		Body:     map[string]string{"usuario": s.username, "senha": s.password},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnauthenticated, describeLoginError(err))
	}
	if strings.TrimSpace(out.Token) == "" {
		return nil, fmt.Errorf("%w: token missing from login response", ErrUnauthenticated)
	}
	return &oauth2.Token{
		AccessToken: out.Token,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(s.ttl),
	}, nil
}

func describeLoginError(err error) string {
	var apiErr *transport.APIError
	if !errors.As(err, &apiErr) {
		return err.Error()
	}
	switch apiErr.Status {
	case http.StatusUnauthorized:
		return "status 401: check the credentials"
	case http.StatusForbidden:
		return "status 403: account lacks API permission"
	case http.StatusBadGateway:
		return "status 502: partner API temporarily unavailable"
	default:
		return err.Error()
	}
}
