package captcha

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "membergate/pkg/domain-errors"
)

// =============================================================================
// Captcha Verifier Test Suite
// =============================================================================

type CaptchaSuite struct {
	suite.Suite
}

func TestCaptchaSuite(t *testing.T) {
	suite.Run(t, new(CaptchaSuite))
}

func (s *CaptchaSuite) TestHTTPVerifier() {
	ctx := context.Background()

	s.Run("empty response fails without calling the provider", func() {
		v := NewHTTPVerifier("http://127.0.0.1:1", "secret")
		err := v.Verify(ctx, "", "203.0.113.1")
		s.Error(err)
		s.True(dErrors.Is(err, dErrors.CodeCaptchaFailed))
	})

	s.Run("successful provider response passes", func() {
		var gotForm map[string]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.Require().NoError(r.ParseForm())
			gotForm = map[string]string{
				"secret":   r.PostFormValue("secret"),
				"response": r.PostFormValue("response"),
				"remoteip": r.PostFormValue("remoteip"),
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
		}))
		defer srv.Close()

		v := NewHTTPVerifier(srv.URL, "server-secret")
		s.NoError(v.Verify(ctx, "client-token", "203.0.113.1"))
		s.Equal("server-secret", gotForm["secret"])
		s.Equal("client-token", gotForm["response"])
		s.Equal("203.0.113.1", gotForm["remoteip"])
	})

	s.Run("failed provider response is a captcha error", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error-codes": []string{"invalid-input-response"}})
		}))
		defer srv.Close()

		err := NewHTTPVerifier(srv.URL, "secret").Verify(ctx, "bad-token", "")
		s.Error(err)
		s.True(dErrors.Is(err, dErrors.CodeCaptchaFailed))
	})

	s.Run("unreachable provider is a captcha error", func() {
		err := NewHTTPVerifier("http://127.0.0.1:1", "secret").Verify(ctx, "token", "")
		s.Error(err)
		s.True(dErrors.Is(err, dErrors.CodeCaptchaFailed))
	})
}

func (s *CaptchaSuite) TestStaticVerifier() {
	ctx := context.Background()
	s.NoError(StaticVerifier{Allow: true}.Verify(ctx, "anything", ""))
	s.Error(StaticVerifier{Allow: false}.Verify(ctx, "anything", ""))
}
