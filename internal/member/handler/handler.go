// Package handler exposes the admin membership operations. Every route
// requires an API key with the admin scope; these endpoints are for operator
// tooling and the payment-webhook processor, never the public.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"membergate/internal/gateway/apikey"
	"membergate/internal/member/models"
	"membergate/internal/member/service"
	"membergate/internal/platform/middleware"
	"membergate/internal/transport/http/shared"
	dErrors "membergate/pkg/domain-errors"
)

// Members is the interface the handler needs from the member service.
type Members interface {
	Register(ctx context.Context, in service.RegisterInput) (*models.MemberRecord, error)
	FindByMemberNo(ctx context.Context, memberNo string) (*models.MemberRecord, error)
	StartMembership(ctx context.Context, in service.StartInput) (service.StartResult, error)
	IssueCard(ctx context.Context, memberNo string) (string, *models.MemberRecord, error)
}

// Revoker is the admin revocation operation on the gateway service.
type Revoker interface {
	Revoke(ctx context.Context, jti, reason, revokedBy string) error
}

// Handler serves the admin membership routes.
type Handler struct {
	logger  *slog.Logger
	members Members
	revoker Revoker
	keys    *apikey.Authenticator
}

func New(members Members, revoker Revoker, keys *apikey.Authenticator, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, members: members, revoker: revoker, keys: keys}
}

// Register mounts the admin routes on the router.
func (h *Handler) Register(r chi.Router) {
	adminRouter := chi.NewRouter()
	adminRouter.Use(middleware.Timeout(30 * time.Second))
	adminRouter.Use(h.requireAdminKey)
	adminRouter.Post("/members", h.handleRegister)
	adminRouter.Post("/members/{memberNo}/activate", h.handleActivate)
	adminRouter.Post("/members/{memberNo}/card", h.handleIssueCard)
	adminRouter.Post("/revocations", h.handleRevoke)

	r.Mount("/admin", adminRouter)
}

type adminKeyContext struct{}

// requireAdminKey authenticates the X-Api-Key header and requires the admin
// scope.
func (h *Handler) requireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key, err := h.keys.Authenticate(ctx, r.Header.Get("X-Api-Key"))
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid api key"))
			return
		}
		if !key.HasScope(apikey.ScopeAdmin) {
			shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, "admin scope required"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, adminKeyContext{}, key)))
	})
}

func actorID(ctx context.Context) string {
	if key, ok := ctx.Value(adminKeyContext{}).(*apikey.Key); ok {
		return key.ID
	}
	return ""
}

type registerRequest struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Region string `json:"region"`
}

type memberResponse struct {
	ID        string `json:"id"`
	MemberNo  string `json:"memberNo"`
	Name      string `json:"name"`
	Region    string `json:"region"`
	Status    string `json:"status"`
	Year      int    `json:"year,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

func toMemberResponse(m *models.MemberRecord) memberResponse {
	resp := memberResponse{
		ID:       m.ID,
		MemberNo: m.MemberNo,
		Name:     m.Name,
		Region:   m.Region,
		Status:   string(m.Status),
		Year:     m.CurrentYear,
	}
	if m.CurrentExpiresAt != nil {
		resp.ExpiresAt = m.CurrentExpiresAt.Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	member, err := h.members.Register(ctx, service.RegisterInput{
		Email:  req.Email,
		Name:   req.Name,
		Region: req.Region,
	})
	if err != nil {
		h.logError(ctx, "register member failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toMemberResponse(member))
}

type activateRequest struct {
	Year          int    `json:"year"`
	PriceCents    int64  `json:"priceCents"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"paymentMethod"`
	ExternalRef   string `json:"externalRef"`
	Source        string `json:"source"`
}

type activateResponse struct {
	OK            bool   `json:"ok"`
	MemberNo      string `json:"memberNo"`
	Year          int    `json:"year"`
	Path          string `json:"path"`
	AlreadyActive bool   `json:"alreadyActive"`
	Idempotent    bool   `json:"idempotent"`
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	memberNo := chi.URLParam(r, "memberNo")

	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Source == "" {
		req.Source = service.SourceAdmin
	}

	member, err := h.members.FindByMemberNo(ctx, memberNo)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.members.StartMembership(ctx, service.StartInput{
		MemberID: member.ID,
		Year:     req.Year,
		Source:   req.Source,
		ActorID:  actorID(ctx),
		ActivateInput: service.ActivateInput{
			PriceCents:    req.PriceCents,
			Currency:      req.Currency,
			PaymentMethod: req.PaymentMethod,
			ExternalRef:   req.ExternalRef,
		},
	})
	if err != nil {
		h.logError(ctx, "start membership failed", err)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, activateResponse{
		OK:            true,
		MemberNo:      result.MemberNo,
		Year:          result.Year,
		Path:          result.Path,
		AlreadyActive: result.AlreadyActive,
		Idempotent:    result.Idempotent,
	})
}

type cardResponse struct {
	OK       bool   `json:"ok"`
	MemberNo string `json:"memberNo"`
	Token    string `json:"token"`
}

func (h *Handler) handleIssueCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	memberNo := chi.URLParam(r, "memberNo")

	signed, member, err := h.members.IssueCard(ctx, memberNo)
	if err != nil {
		h.logError(ctx, "issue card failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, cardResponse{
		OK:       true,
		MemberNo: member.MemberNo,
		Token:    signed,
	})
}

type revokeRequest struct {
	JTI    string `json:"jti"`
	Reason string `json:"reason"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.revoker.Revoke(ctx, req.JTI, req.Reason, actorID(ctx)); err != nil {
		h.logError(ctx, "revoke token failed", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
}
