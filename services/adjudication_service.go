package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Dosada05/adjudication-engine/elo"
	"github.com/Dosada05/adjudication-engine/events"
	"github.com/Dosada05/adjudication-engine/lifecycle"
	"github.com/Dosada05/adjudication-engine/models"
	"github.com/Dosada05/adjudication-engine/repositories"
	"github.com/Dosada05/adjudication-engine/storage"
	"golang.org/x/sync/errgroup"
)

// AdjudicationService оркестрирует жизненный цикл матча: судейскую половину
// (старт, запись сетов, финализация) и половину главного судьи (предпросмотр
// ELO, утверждение с коммитом рейтингов, отклонение).
type AdjudicationService interface {
	StartMatch(ctx context.Context, matchID, userID int) (*models.Match, error)
	RecordSet(ctx context.Context, matchID, userID, scoreA, scoreB int) (*models.Set, error)
	FinalizeMatch(ctx context.Context, matchID, userID int) (*models.Match, error)
	ReviewPreview(ctx context.Context, matchID, userID int) (*models.EloPreview, error)
	ApproveMatch(ctx context.Context, matchID, userID int, notes *string) (*models.Match, error)
	RejectMatch(ctx context.Context, matchID, userID int, notes string) (*models.Match, error)
	ReopenMatch(ctx context.Context, matchID, userID int) (*models.Match, error)
}

type adjudicationService struct {
	txm        TransactionManager
	matchRepo  repositories.MatchRepository
	setRepo    repositories.SetRepository
	ratingRepo repositories.RatingRepository
	authorizer Authorizer
	publisher  events.Publisher
	uploader   storage.FileUploader // может быть nil, архив отчётов опционален
	kFactor    int
	logger     *slog.Logger

	// Мьютексы по id матча: последовательность read-check-write для одного
	// матча не должна чередоваться между конкурентными вызовами.
	locksMu sync.Mutex
	locks   map[int]*sync.Mutex
}

func NewAdjudicationService(
	txm TransactionManager,
	matchRepo repositories.MatchRepository,
	setRepo repositories.SetRepository,
	ratingRepo repositories.RatingRepository,
	authorizer Authorizer,
	publisher events.Publisher,
	uploader storage.FileUploader,
	kFactor int,
	logger *slog.Logger,
) AdjudicationService {
	if kFactor <= 0 {
		kFactor = elo.DefaultKFactor
	}
	return &adjudicationService{
		txm:        txm,
		matchRepo:  matchRepo,
		setRepo:    setRepo,
		ratingRepo: ratingRepo,
		authorizer: authorizer,
		publisher:  publisher,
		uploader:   uploader,
		kFactor:    kFactor,
		logger:     logger,
		locks:      make(map[int]*sync.Mutex),
	}
}

func (s *adjudicationService) lockMatch(matchID int) func() {
	s.locksMu.Lock()
	lock, ok := s.locks[matchID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[matchID] = lock
	}
	s.locksMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (s *adjudicationService) StartMatch(ctx context.Context, matchID, userID int) (*models.Match, error) {
	defer s.lockMatch(matchID)()

	match, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}

	if err := s.requireAssignedReferee(ctx, match, userID); err != nil {
		return nil, err
	}

	if err := lifecycle.Transition(match, models.MatchStatusInProgress); err != nil {
		return nil, err
	}
	if err := s.matchRepo.UpdateStatus(ctx, nil, match); err != nil {
		return nil, err
	}

	s.publisher.Publish(events.NewEvent(events.MatchStarted, match.ID, match))
	return match, nil
}

func (s *adjudicationService) RecordSet(ctx context.Context, matchID, userID, scoreA, scoreB int) (*models.Set, error) {
	defer s.lockMatch(matchID)()

	match, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}

	if err := s.requireAssignedReferee(ctx, match, userID); err != nil {
		return nil, err
	}

	sets, err := s.setRepo.ListByMatch(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}

	if err := lifecycle.ValidateAppend(match, sets, scoreA, scoreB); err != nil {
		return nil, err
	}

	set := &models.Set{
		MatchID:     matchID,
		SetNumber:   lifecycle.NextSetNumber(sets),
		EntryAScore: scoreA,
		EntryBScore: scoreB,
	}
	if err := s.setRepo.Append(ctx, nil, set); err != nil {
		return nil, err
	}

	s.publisher.Publish(events.NewEvent(events.MatchSetRecorded, match.ID, set))
	return set, nil
}

func (s *adjudicationService) FinalizeMatch(ctx context.Context, matchID, userID int) (*models.Match, error) {
	defer s.lockMatch(matchID)()

	match, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}

	if err := s.requireAssignedReferee(ctx, match, userID); err != nil {
		return nil, err
	}

	// Повторная финализация завершённого матча — no-op, чтобы переживать
	// ретраи из ненадёжной сети.
	if match.Status == models.MatchStatusCompleted {
		return match, nil
	}

	sets, err := s.setRepo.ListByMatch(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}

	winnerEntryID, err := lifecycle.Winner(match, sets)
	if err != nil {
		return nil, err
	}

	if err := lifecycle.Transition(match, models.MatchStatusCompleted); err != nil {
		return nil, err
	}
	match.WinnerEntryID = &winnerEntryID
	if err := s.matchRepo.UpdateStatus(ctx, nil, match); err != nil {
		return nil, err
	}

	s.publisher.Publish(events.NewEvent(events.MatchFinalized, match.ID, match))
	return match, nil
}

func (s *adjudicationService) ReviewPreview(ctx context.Context, matchID, userID int) (*models.EloPreview, error) {
	match, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}

	if err := s.requireChiefReferee(ctx, userID); err != nil {
		return nil, err
	}

	if match.Status != models.MatchStatusCompleted {
		return nil, fmt.Errorf("%w: match %d has status %s", ErrNotPendingReview, match.ID, match.Status)
	}

	sets, err := s.setRepo.ListByMatch(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}

	return s.computePreview(ctx, match, sets)
}

// computePreview загружает рейтинги обеих заявок параллельно и считает
// предпросмотр чистой функцией. Повторные вызовы не имеют побочных эффектов.
func (s *adjudicationService) computePreview(ctx context.Context, match *models.Match, sets []models.Set) (*models.EloPreview, error) {
	var ratingA, ratingB elo.EntryRating

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rating, err := s.loadEntryRating(gCtx, match.EntryAID)
		if err != nil {
			return err
		}
		ratingA = rating
		return nil
	})
	g.Go(func() error {
		rating, err := s.loadEntryRating(gCtx, match.EntryBID)
		if err != nil {
			return err
		}
		ratingB = rating
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return elo.Preview(match, sets, ratingA, ratingB, s.kFactor), nil
}

func (s *adjudicationService) loadEntryRating(ctx context.Context, entryID int) (elo.EntryRating, error) {
	average, err := s.ratingRepo.GetAggregateRating(ctx, entryID)
	if err != nil {
		return elo.EntryRating{}, err
	}
	players, err := s.ratingRepo.ListPlayersByEntry(ctx, nil, entryID)
	if err != nil {
		return elo.EntryRating{}, err
	}
	return elo.EntryRating{EntryID: entryID, AverageElo: average, Players: players}, nil
}

func (s *adjudicationService) ApproveMatch(ctx context.Context, matchID, userID int, notes *string) (*models.Match, error) {
	defer s.lockMatch(matchID)()

	match, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}

	if err := s.requireChiefReferee(ctx, userID); err != nil {
		return nil, err
	}

	// Идемпотентность: повторное утверждение уже утверждённого матча —
	// no-op, дельты не применяются второй раз.
	if match.Status == models.MatchStatusApproved {
		return match, nil
	}
	if match.Status != models.MatchStatusCompleted {
		return nil, fmt.Errorf("%w: match %d has status %s", ErrNotPendingReview, match.ID, match.Status)
	}

	sets, err := s.setRepo.ListByMatch(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}

	preview, err := s.computePreview(ctx, match, sets)
	if err != nil {
		return nil, err
	}

	if err := lifecycle.Transition(match, models.MatchStatusApproved); err != nil {
		return nil, err
	}
	if notes != nil && strings.TrimSpace(*notes) != "" {
		match.ReviewNotes = notes
	}

	// Переход в approved и применение дельт — одна транзакция: либо всё,
	// либо ничего.
	err = s.txm.WithinTransaction(ctx, func(exec repositories.SQLExecutor) error {
		// Маркер коммита: строки match_elo_changes по этому матчу. Если они
		// уже есть (ретрай после частичного сбоя), дельты повторно не
		// применяются.
		committed, err := s.ratingRepo.CountChangesByMatch(ctx, exec, matchID)
		if err != nil {
			return err
		}

		if committed == 0 {
			// Рейтинг игрока мог сдвинуться между расчётом предпросмотра и
			// этой транзакцией (конкурентное утверждение другого матча с тем
			// же игроком), поэтому old_elo/new_elo журнала читаются здесь,
			// внутри транзакции. Дельта остаётся дельтой предпросмотра.
			currentElo := make(map[int]int)
			for _, entryID := range []int{match.EntryAID, match.EntryBID} {
				players, err := s.ratingRepo.ListPlayersByEntry(ctx, exec, entryID)
				if err != nil {
					return err
				}
				for _, player := range players {
					currentElo[player.ID] = player.CurrentElo
				}
			}

			for _, entryPreview := range []models.EntryEloPreview{preview.EntryA, preview.EntryB} {
				for _, playerPreview := range entryPreview.Players {
					oldElo := currentElo[playerPreview.PlayerID]
					change := &models.EloChange{
						MatchID:  matchID,
						PlayerID: playerPreview.PlayerID,
						OldElo:   oldElo,
						Delta:    playerPreview.Delta,
						NewElo:   oldElo + playerPreview.Delta,
					}
					if err := s.ratingRepo.InsertChange(ctx, exec, change); err != nil {
						return err
					}
					if err := s.ratingRepo.ApplyDelta(ctx, exec, playerPreview.PlayerID, playerPreview.Delta); err != nil {
						return err
					}
				}
			}
		}

		return s.matchRepo.UpdateStatus(ctx, exec, match)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(events.NewEvent(events.MatchApproved, match.ID, preview))
	s.archiveReport(match, sets, preview)

	return match, nil
}

func (s *adjudicationService) RejectMatch(ctx context.Context, matchID, userID int, notes string) (*models.Match, error) {
	defer s.lockMatch(matchID)()

	match, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}

	if err := s.requireChiefReferee(ctx, userID); err != nil {
		return nil, err
	}

	if match.Status == models.MatchStatusRejected {
		return match, nil
	}

	if strings.TrimSpace(notes) == "" {
		return nil, ErrMissingReviewNotes
	}

	if match.Status != models.MatchStatusCompleted {
		return nil, fmt.Errorf("%w: match %d has status %s", ErrNotPendingReview, match.ID, match.Status)
	}

	if err := lifecycle.Transition(match, models.MatchStatusRejected); err != nil {
		return nil, err
	}
	match.ReviewNotes = &notes
	if err := s.matchRepo.UpdateStatus(ctx, nil, match); err != nil {
		return nil, err
	}

	s.publisher.Publish(events.NewEvent(events.MatchRejected, match.ID, match))
	return match, nil
}

func (s *adjudicationService) ReopenMatch(ctx context.Context, matchID, userID int) (*models.Match, error) {
	defer s.lockMatch(matchID)()

	match, err := s.matchRepo.GetByID(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}

	if err := s.requireAssignedReferee(ctx, match, userID); err != nil {
		return nil, err
	}

	if err := lifecycle.Transition(match, models.MatchStatusInProgress); err != nil {
		return nil, err
	}
	match.WinnerEntryID = nil

	// Переоткрытие очищает журнал сетов: сеты неизменяемы, исправление
	// идёт чистым повторным вводом без двусмысленной нумерации.
	err = s.txm.WithinTransaction(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.setRepo.DeleteByMatch(ctx, exec, matchID); err != nil {
			return err
		}
		return s.matchRepo.UpdateStatus(ctx, exec, match)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(events.NewEvent(events.MatchStarted, match.ID, match))
	return match, nil
}

func (s *adjudicationService) requireAssignedReferee(ctx context.Context, match *models.Match, userID int) error {
	ok, err := s.authorizer.IsAssignedReferee(ctx, match, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %d is not the assigned referee of match %d", ErrUnauthorized, userID, match.ID)
	}
	return nil
}

func (s *adjudicationService) requireChiefReferee(ctx context.Context, userID int) error {
	ok, err := s.authorizer.IsChiefReferee(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %d is not a chief referee", ErrUnauthorized, userID)
	}
	return nil
}

type adjudicationReport struct {
	Match   *models.Match      `json:"match"`
	Sets    []models.Set       `json:"sets"`
	Preview *models.EloPreview `json:"elo"`
}

// archiveReport выгружает протокол утверждённого матча в объектное
// хранилище. Ошибка архивации не влияет на уже совершённый переход.
func (s *adjudicationService) archiveReport(match *models.Match, sets []models.Set, preview *models.EloPreview) {
	if s.uploader == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		report := adjudicationReport{Match: match, Sets: sets, Preview: preview}
		body, err := json.Marshal(report)
		if err != nil {
			s.logger.Error("failed to marshal adjudication report", slog.Int("match_id", match.ID), slog.Any("error", err))
			return
		}

		key := fmt.Sprintf("reports/match_%d.json", match.ID)
		result, err := s.uploader.Upload(ctx, key, "application/json", bytes.NewReader(body))
		if err != nil {
			s.logger.Error("failed to archive adjudication report", slog.Int("match_id", match.ID), slog.Any("error", err))
			return
		}
		s.logger.Info("adjudication report archived", slog.Int("match_id", match.ID), slog.String("location", result.Location))
	}()
}
