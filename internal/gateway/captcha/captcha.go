// Package captcha verifies challenge responses with the provider before the
// public verification endpoint does any work for anonymous callers.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	dErrors "membergate/pkg/domain-errors"
)

// Verifier checks a client's captcha response server-side.
type Verifier interface {
	Verify(ctx context.Context, response, remoteIP string) error
}

// HTTPVerifier posts the response token to the provider's siteverify
// endpoint (Turnstile/reCAPTCHA compatible form protocol).
type HTTPVerifier struct {
	client   *http.Client
	endpoint string
	secret   string
}

func NewHTTPVerifier(endpoint, secret string) *HTTPVerifier {
	return &HTTPVerifier{
		client:   &http.Client{Timeout: 5 * time.Second},
		endpoint: endpoint,
		secret:   secret,
	}
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, response, remoteIP string) error {
	if response == "" {
		return dErrors.New(dErrors.CodeCaptchaFailed, "captcha response is required")
	}

	form := url.Values{
		"secret":   {v.secret},
		"response": {response},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("captcha: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeCaptchaFailed, "captcha verification unavailable", err)
	}
	defer resp.Body.Close()

	var result siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return dErrors.Wrap(dErrors.CodeCaptchaFailed, "captcha verification unreadable", err)
	}
	if !result.Success {
		return dErrors.New(dErrors.CodeCaptchaFailed, "captcha verification failed")
	}
	return nil
}

// StaticVerifier accepts or rejects every response. Used in tests and in
// deployments that disable captcha explicitly.
type StaticVerifier struct {
	Allow bool
}

func (v StaticVerifier) Verify(_ context.Context, _, _ string) error {
	if v.Allow {
		return nil
	}
	return dErrors.New(dErrors.CodeCaptchaFailed, "captcha verification failed")
}
