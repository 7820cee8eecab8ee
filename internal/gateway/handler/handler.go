// Package handler is the thin HTTP layer for the public verification
// endpoint. It delegates to the gateway service so transport concerns remain
// isolated from the verification algorithm.
package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"membergate/internal/gateway"
	"membergate/internal/platform/middleware"
	"membergate/internal/transport/http/shared"
)

// Headers carrying the optional gateway credentials.
const (
	HeaderAPIKey   = "X-Api-Key"
	HeaderCaptcha  = "X-Captcha-Response"
	queryParamCard = "token"
	queryParamNo   = "memberNo"
)

// Service is the interface the handler needs from the gateway.
type Service interface {
	Verify(ctx context.Context, in gateway.VerifyInput) (gateway.VerifyResult, error)
}

// Handler serves the public verification endpoint.
type Handler struct {
	logger  *slog.Logger
	gateway Service
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, gateway: svc}
}

// Register mounts the public routes on the router.
func (h *Handler) Register(r chi.Router) {
	verifyRouter := chi.NewRouter()
	verifyRouter.Use(middleware.Timeout(10 * time.Second))
	verifyRouter.Get("/verify", h.handleVerify)

	r.Mount("/", verifyRouter)
}

// verifyResponse is the public wire shape. A "member not found" or "not
// active" condition is a 200 with valid=false; only captcha, rate-limit, and
// malformed-request failures are non-2xx.
type verifyResponse struct {
	OK       bool   `json:"ok"`
	Valid    bool   `json:"valid"`
	MemberNo string `json:"memberNo,omitempty"`
	Name     string `json:"name,omitempty"`
	Region   string `json:"region,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	in := gateway.VerifyInput{
		Token:           r.URL.Query().Get(queryParamCard),
		MemberNo:        r.URL.Query().Get(queryParamNo),
		APIKey:          r.Header.Get(HeaderAPIKey),
		CaptchaResponse: r.Header.Get(HeaderCaptcha),
		SourceIP:        sourceIP(r),
		UserAgent:       r.UserAgent(),
	}

	result, err := h.gateway.Verify(ctx, in)
	if err != nil {
		h.logger.WarnContext(ctx, "verification rejected",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, verifyResponse{
		OK:       true,
		Valid:    result.Valid,
		MemberNo: result.MemberNo,
		Name:     result.Name,
		Region:   result.Region,
		Reason:   result.Reason,
	})
}

// sourceIP extracts the client address for rate limiting, preferring the
// leftmost hop when a proxy sets X-Forwarded-For.
func sourceIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
