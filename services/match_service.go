package services

import (
	"context"
	"fmt"

	"github.com/Dosada05/adjudication-engine/lifecycle"
	"github.com/Dosada05/adjudication-engine/models"
	"github.com/Dosada05/adjudication-engine/repositories"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type CreateMatchInput struct {
	EntryAID  int `json:"entry_a_id"`
	EntryBID  int `json:"entry_b_id"`
	RefereeID int `json:"referee_id"`
	MaxSets   int `json:"max_sets"`
}

type MatchDetails struct {
	Match  *models.Match `json:"match"`
	Sets   []models.Set  `json:"sets"`
	WonByA int           `json:"won_by_a"`
	WonByB int           `json:"won_by_b"`
}

// MatchService — справочник матчей: создание (вызывается подсистемой
// расписания), чтение и листинг по статусу с явной пагинацией.
type MatchService interface {
	CreateMatch(ctx context.Context, input CreateMatchInput) (*models.Match, error)
	GetMatch(ctx context.Context, matchID int) (*MatchDetails, error)
	ListMatchesByStatus(ctx context.Context, status models.MatchStatus, refereeID *int, limit, offset int) ([]*models.Match, error)
	ListEloChanges(ctx context.Context, matchID int) ([]models.EloChange, error)
}

type matchService struct {
	matchRepo  repositories.MatchRepository
	setRepo    repositories.SetRepository
	ratingRepo repositories.RatingRepository
}

func NewMatchService(
	matchRepo repositories.MatchRepository,
	setRepo repositories.SetRepository,
	ratingRepo repositories.RatingRepository,
) MatchService {
	return &matchService{
		matchRepo:  matchRepo,
		setRepo:    setRepo,
		ratingRepo: ratingRepo,
	}
}

func (s *matchService) CreateMatch(ctx context.Context, input CreateMatchInput) (*models.Match, error) {
	if !lifecycle.ValidMaxSets(input.MaxSets) {
		return nil, fmt.Errorf("%w: got %d", lifecycle.ErrInvalidMaxSets, input.MaxSets)
	}
	if input.EntryAID == input.EntryBID {
		return nil, ErrSameEntry
	}

	match := &models.Match{
		EntryAID:  input.EntryAID,
		EntryBID:  input.EntryBID,
		RefereeID: input.RefereeID,
		MaxSets:   input.MaxSets,
		Status:    models.MatchStatusScheduled,
	}
	if err := s.matchRepo.Create(ctx, nil, match); err != nil {
		return nil, err
	}
	return match, nil
}

func (s *matchService) GetMatch(ctx context.Context, matchID int) (*MatchDetails, error) {
	match, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}

	sets, err := s.setRepo.ListByMatch(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}

	wonByA, wonByB := lifecycle.SetsWon(sets)
	return &MatchDetails{
		Match:  match,
		Sets:   sets,
		WonByA: wonByA,
		WonByB: wonByB,
	}, nil
}

func (s *matchService) ListMatchesByStatus(ctx context.Context, status models.MatchStatus, refereeID *int, limit, offset int) ([]*models.Match, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", lifecycle.ErrInvalidState, status)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.matchRepo.ListByStatus(ctx, status, refereeID, limit, offset)
}

func (s *matchService) ListEloChanges(ctx context.Context, matchID int) ([]models.EloChange, error) {
	if _, err := s.matchRepo.GetByID(ctx, nil, matchID); err != nil {
		return nil, err
	}
	return s.ratingRepo.ListChangesByMatch(ctx, matchID)
}
