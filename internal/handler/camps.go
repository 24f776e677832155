package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/bloodbank-system/internal/service"
)

// CreateCamp создаёт акцию по сдаче крови.
func (h *Handler) CreateCamp(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var in service.CreateCampInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	camp, err := h.service.CreateCamp(r.Context(), p, in)
	if err != nil {
		h.writeError(w, "create camp", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, camp)
}

// ListCamps возвращает активные акции.
func (h *Handler) ListCamps(w http.ResponseWriter, r *http.Request) {
	camps, err := h.service.ListActiveCamps(r.Context())
	if err != nil {
		h.writeError(w, "list camps", err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(camps))
}

// MyCamps возвращает акции текущего учреждения.
func (h *Handler) MyCamps(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	camps, err := h.service.ListMyCamps(r.Context(), p)
	if err != nil {
		h.writeError(w, "my camps", err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(camps))
}

// CloseCamp закрывает акцию.
func (h *Handler) CloseCamp(w http.ResponseWriter, r *http.Request) {
	h.setCampActive(w, r, false)
}

// ReopenCamp снова открывает акцию.
func (h *Handler) ReopenCamp(w http.ResponseWriter, r *http.Request) {
	h.setCampActive(w, r, true)
}

func (h *Handler) setCampActive(w http.ResponseWriter, r *http.Request, active bool) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	camp, err := h.service.SetCampActive(r.Context(), p, chi.URLParam(r, "id"), active)
	if err != nil {
		h.writeError(w, "set camp active", err)
		return
	}
	h.writeJSON(w, http.StatusOK, camp)
}

// DonateToCamp записывает донацию текущего пользователя на акции.
func (h *Handler) DonateToCamp(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	d, err := h.service.DonateToCamp(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "donate to camp", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, d)
}

// CampDonations возвращает донации акции.
func (h *Handler) CampDonations(w http.ResponseWriter, r *http.Request) {
	donations, err := h.service.ListCampDonations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "camp donations", err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(donations))
}

// CampSummary возвращает количество донаций акции по группам крови.
func (h *Handler) CampSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.CampSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "camp summary", err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(summary))
}

// InstitutionSummary возвращает количество донаций по группам крови на всех акциях учреждения.
func (h *Handler) InstitutionSummary(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	summary, err := h.service.InstitutionSummary(r.Context(), p)
	if err != nil {
		h.writeError(w, "institution summary", err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(summary))
}
