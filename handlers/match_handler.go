package handlers

import (
	"net/http"
	"strconv"

	"github.com/Dosada05/adjudication-engine/models"
	"github.com/Dosada05/adjudication-engine/services"
)

type MatchHandler struct {
	matchService services.MatchService
}

func NewMatchHandler(matchService services.MatchService) *MatchHandler {
	return &MatchHandler{matchService: matchService}
}

// CreateMatch вызывается подсистемой расписания: матч появляется в статусе
// scheduled с назначенным судьёй.
func (h *MatchHandler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var input services.CreateMatchInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	match, err := h.matchService.CreateMatch(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	details, err := h.matchService.GetMatch(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, details, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListMatches отдаёт матчи по статусу с явной пагинацией и необязательным
// фильтром по судье. Выбор конкретного матча остаётся за вызывающим.
func (h *MatchHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	status := models.MatchStatus(r.URL.Query().Get("status"))

	var refereeID *int
	if refereeStr := r.URL.Query().Get("referee_id"); refereeStr != "" {
		id, err := strconv.Atoi(refereeStr)
		if err != nil || id <= 0 {
			badRequestResponse(w, r, errInvalidQueryParam("referee_id", refereeStr))
			return
		}
		refereeID = &id
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	matches, err := h.matchService.ListMatchesByStatus(r.Context(), status, refereeID, limit, offset)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) ListEloChanges(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	changes, err := h.matchService.ListEloChanges(r.Context(), matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"elo_changes": changes}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
