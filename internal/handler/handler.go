// Package handler содержит HTTP-обработчики API сервиса донорства.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/bloodbank-system/internal/middleware"
	"github.com/mmeshcher/bloodbank-system/internal/model"
	"github.com/mmeshcher/bloodbank-system/internal/service"
)

// DefaultMaxDistanceKm используется, если клиент не указал maxDistance.
const DefaultMaxDistanceKm = 10

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CurrentUser(ctx context.Context, p model.Principal) (*model.User, error)

	CreateRequest(ctx context.Context, p model.Principal, in service.CreateRequestInput) (*model.Request, []model.DonorMatch, error)
	AcceptRequest(ctx context.Context, p model.Principal, requestID string, unitsDonated *int) (*model.Request, error)
	FulfillRequest(ctx context.Context, p model.Principal, requestID string) (*model.Request, error)
	CancelRequest(ctx context.Context, p model.Principal, requestID string) (*model.Request, error)
	ListNearbyRequests(ctx context.Context, p model.Principal, maxDistanceKm float64) ([]model.RequestMatch, error)
	ListAllOpenRequests(ctx context.Context, p model.Principal, maxDistanceKm float64) ([]model.RequestMatch, error)
	ListMyRequests(ctx context.Context, p model.Principal) ([]model.Request, error)
	ListMyDonations(ctx context.Context, p model.Principal) ([]model.Request, error)

	CreateCamp(ctx context.Context, p model.Principal, in service.CreateCampInput) (*model.BloodCamp, error)
	ListActiveCamps(ctx context.Context) ([]model.BloodCamp, error)
	ListMyCamps(ctx context.Context, p model.Principal) ([]model.BloodCamp, error)
	SetCampActive(ctx context.Context, p model.Principal, campID string, active bool) (*model.BloodCamp, error)
	DonateToCamp(ctx context.Context, p model.Principal, campID string) (*model.CampDonation, error)
	ListCampDonations(ctx context.Context, campID string) ([]model.CampDonation, error)
	CampSummary(ctx context.Context, campID string) ([]model.BloodTypeCount, error)
	InstitutionSummary(ctx context.Context, p model.Principal) ([]model.BloodTypeCount, error)
}

// Handler реализует HTTP-обработчики API сервиса донорства.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type createRequestResponse struct {
	Request    *model.Request     `json:"request"`
	Candidates []model.DonorMatch `json:"candidates"`
}

type acceptRequest struct {
	UnitsDonated *int `json:"unitsDonated"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch service.KindOf(err) {
	case service.KindValidation:
		status = http.StatusBadRequest
	case service.KindNotFound:
		status = http.StatusNotFound
	case service.KindAuthorization:
		status = http.StatusForbidden
	case service.KindConflict:
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Error(op+" error", zap.Error(err))
		h.writeJSON(w, status, errorResponse{Error: http.StatusText(status)})
		return
	}

	resp := errorResponse{Error: err.Error()}
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		resp.Reason = string(svcErr.Reason)
	}
	h.writeJSON(w, status, resp)
}

func principal(w http.ResponseWriter, r *http.Request) (model.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return p, ok
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func maxDistance(r *http.Request) (float64, bool) {
	raw := r.URL.Query().Get("maxDistance")
	if raw == "" {
		return DefaultMaxDistanceKm, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Me возвращает профиль текущего пользователя.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	u, err := h.service.CurrentUser(r.Context(), p)
	if err != nil {
		h.writeError(w, "current user", err)
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

// CreateRequest создаёт запрос на кровь и возвращает найденных поблизости доноров.
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var in service.CreateRequestInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	req, candidates, err := h.service.CreateRequest(r.Context(), p, in)
	if err != nil {
		h.writeError(w, "create request", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, createRequestResponse{Request: req, Candidates: nonNil(candidates)})
}

// AcceptRequest записывает донацию текущего пользователя в запрос.
func (h *Handler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var body acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	req, err := h.service.AcceptRequest(r.Context(), p, chi.URLParam(r, "id"), body.UnitsDonated)
	if err != nil {
		h.writeError(w, "accept request", err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

// FulfillRequest закрывает запрос по решению автора.
func (h *Handler) FulfillRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	req, err := h.service.FulfillRequest(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "fulfill request", err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

// CancelRequest отменяет запрос без донаций.
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	req, err := h.service.CancelRequest(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "cancel request", err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

// NearbyRequests возвращает открытые запросы с группой крови донора поблизости.
func (h *Handler) NearbyRequests(w http.ResponseWriter, r *http.Request) {
	h.listRequestsNear(w, r, "nearby requests", h.service.ListNearbyRequests)
}

// AllRequests возвращает открытые запросы любой группы крови поблизости от учреждения.
func (h *Handler) AllRequests(w http.ResponseWriter, r *http.Request) {
	h.listRequestsNear(w, r, "all requests", h.service.ListAllOpenRequests)
}

func (h *Handler) listRequestsNear(w http.ResponseWriter, r *http.Request, op string,
	list func(context.Context, model.Principal, float64) ([]model.RequestMatch, error)) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	km, ok := maxDistance(r)
	if !ok {
		http.Error(w, "invalid maxDistance", http.StatusBadRequest)
		return
	}

	matches, err := list(r.Context(), p, km)
	if err != nil {
		h.writeError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(matches))
}

// MyRequests возвращает запросы текущего пользователя.
func (h *Handler) MyRequests(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	reqs, err := h.service.ListMyRequests(r.Context(), p)
	if err != nil {
		h.writeError(w, "my requests", err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(reqs))
}

// MyDonations возвращает запросы, в которые текущий пользователь сдал кровь.
func (h *Handler) MyDonations(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	reqs, err := h.service.ListMyDonations(r.Context(), p)
	if err != nil {
		h.writeError(w, "my donations", err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(reqs))
}
