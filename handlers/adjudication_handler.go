package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/adjudication-engine/middleware"
	"github.com/Dosada05/adjudication-engine/services"
)

// AdjudicationHandler — HTTP-обвязка воркфлоу судейства. Идентификатор
// вызывающего берётся из JWT claims и передаётся в сервис явным аргументом.
type AdjudicationHandler struct {
	adjudicationService services.AdjudicationService
}

func NewAdjudicationHandler(adjudicationService services.AdjudicationService) *AdjudicationHandler {
	return &AdjudicationHandler{adjudicationService: adjudicationService}
}

func (h *AdjudicationHandler) StartMatch(w http.ResponseWriter, r *http.Request) {
	matchID, userID, ok := h.matchAndUser(w, r)
	if !ok {
		return
	}

	match, err := h.adjudicationService.StartMatch(r.Context(), matchID, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *AdjudicationHandler) RecordSet(w http.ResponseWriter, r *http.Request) {
	matchID, userID, ok := h.matchAndUser(w, r)
	if !ok {
		return
	}

	var input struct {
		EntryAScore int `json:"entry_a_score"`
		EntryBScore int `json:"entry_b_score"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	set, err := h.adjudicationService.RecordSet(r.Context(), matchID, userID, input.EntryAScore, input.EntryBScore)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"set": set}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *AdjudicationHandler) FinalizeMatch(w http.ResponseWriter, r *http.Request) {
	matchID, userID, ok := h.matchAndUser(w, r)
	if !ok {
		return
	}

	match, err := h.adjudicationService.FinalizeMatch(r.Context(), matchID, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *AdjudicationHandler) ReviewPreview(w http.ResponseWriter, r *http.Request) {
	matchID, userID, ok := h.matchAndUser(w, r)
	if !ok {
		return
	}

	preview, err := h.adjudicationService.ReviewPreview(r.Context(), matchID, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"preview": preview}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *AdjudicationHandler) ApproveMatch(w http.ResponseWriter, r *http.Request) {
	matchID, userID, ok := h.matchAndUser(w, r)
	if !ok {
		return
	}

	var input struct {
		Notes *string `json:"notes"`
	}
	// Тело опционально: утверждение без заметок легально. Проверка по
	// ContentLength здесь не годится — chunked-запросы приходят с -1.
	if err := readJSON(w, r, &input); err != nil && !errors.Is(err, errBodyEmpty) {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.adjudicationService.ApproveMatch(r.Context(), matchID, userID, input.Notes)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *AdjudicationHandler) RejectMatch(w http.ResponseWriter, r *http.Request) {
	matchID, userID, ok := h.matchAndUser(w, r)
	if !ok {
		return
	}

	var input struct {
		Notes string `json:"notes"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.adjudicationService.RejectMatch(r.Context(), matchID, userID, input.Notes)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *AdjudicationHandler) ReopenMatch(w http.ResponseWriter, r *http.Request) {
	matchID, userID, ok := h.matchAndUser(w, r)
	if !ok {
		return
	}

	match, err := h.adjudicationService.ReopenMatch(r.Context(), matchID, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *AdjudicationHandler) matchAndUser(w http.ResponseWriter, r *http.Request) (matchID, userID int, ok bool) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return 0, 0, false
	}

	userID, err = middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, err.Error())
		return 0, 0, false
	}
	return matchID, userID, true
}
