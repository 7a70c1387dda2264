package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/Dosada05/adjudication-engine/events"
	"github.com/Dosada05/adjudication-engine/lifecycle"
	"github.com/Dosada05/adjudication-engine/models"
	"github.com/Dosada05/adjudication-engine/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// In-memory репозитории для тестов воркфлоу: та же семантика копий, что и у
// postgres-реализаций (GetByID возвращает свежую копию строки).

type fakeMatchRepo struct {
	mu      sync.Mutex
	nextID  int
	matches map[int]models.Match
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{nextID: 1, matches: make(map[int]models.Match)}
}

func (r *fakeMatchRepo) Create(_ context.Context, _ repositories.SQLExecutor, match *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	match.ID = r.nextID
	r.nextID++
	r.matches[match.ID] = *match
	return nil
}

func (r *fakeMatchRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	match, ok := r.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	copied := match
	return &copied, nil
}

func (r *fakeMatchRepo) ListByStatus(_ context.Context, status models.MatchStatus, refereeID *int, limit, offset int) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matches := make([]*models.Match, 0)
	for _, match := range r.matches {
		if match.Status != status {
			continue
		}
		if refereeID != nil && match.RefereeID != *refereeID {
			continue
		}
		copied := match
		matches = append(matches, &copied)
	}
	return matches, nil
}

func (r *fakeMatchRepo) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, match *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.matches[match.ID]; !ok {
		return repositories.ErrMatchNotFound
	}
	r.matches[match.ID] = *match
	return nil
}

type fakeSetRepo struct {
	mu     sync.Mutex
	nextID int
	sets   map[int][]models.Set
}

func newFakeSetRepo() *fakeSetRepo {
	return &fakeSetRepo{nextID: 1, sets: make(map[int][]models.Set)}
}

func (r *fakeSetRepo) Append(_ context.Context, _ repositories.SQLExecutor, set *models.Set) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.sets[set.MatchID] {
		if existing.SetNumber == set.SetNumber {
			return repositories.ErrSetNumberConflict
		}
	}
	set.ID = r.nextID
	r.nextID++
	r.sets[set.MatchID] = append(r.sets[set.MatchID], *set)
	return nil
}

func (r *fakeSetRepo) ListByMatch(_ context.Context, _ repositories.SQLExecutor, matchID int) ([]models.Set, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Set(nil), r.sets[matchID]...), nil
}

func (r *fakeSetRepo) DeleteByMatch(_ context.Context, _ repositories.SQLExecutor, matchID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sets, matchID)
	return nil
}

type fakeRatingRepo struct {
	mu      sync.Mutex
	players map[int][]models.Player // по entry_id
	changes []models.EloChange
}

func newFakeRatingRepo() *fakeRatingRepo {
	return &fakeRatingRepo{players: make(map[int][]models.Player)}
}

func (r *fakeRatingRepo) addPlayer(player models.Player) {
	r.players[player.EntryID] = append(r.players[player.EntryID], player)
}

func (r *fakeRatingRepo) GetAggregateRating(_ context.Context, entryID int) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	players := r.players[entryID]
	if len(players) == 0 {
		return 0, repositories.ErrEntryNotFound
	}
	var sum int
	for _, player := range players {
		sum += player.CurrentElo
	}
	return float64(sum) / float64(len(players)), nil
}

func (r *fakeRatingRepo) ListPlayersByEntry(_ context.Context, _ repositories.SQLExecutor, entryID int) ([]models.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	players := r.players[entryID]
	if len(players) == 0 {
		return nil, repositories.ErrEntryNotFound
	}
	return append([]models.Player(nil), players...), nil
}

func (r *fakeRatingRepo) ApplyDelta(_ context.Context, _ repositories.SQLExecutor, playerID, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for entryID, players := range r.players {
		for i := range players {
			if players[i].ID == playerID {
				r.players[entryID][i].CurrentElo += delta
				return nil
			}
		}
	}
	return repositories.ErrPlayerNotFound
}

func (r *fakeRatingRepo) InsertChange(_ context.Context, _ repositories.SQLExecutor, change *models.EloChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.changes {
		if existing.MatchID == change.MatchID && existing.PlayerID == change.PlayerID {
			return repositories.ErrEloChangeConflict
		}
	}
	change.ID = len(r.changes) + 1
	r.changes = append(r.changes, *change)
	return nil
}

func (r *fakeRatingRepo) CountChangesByMatch(_ context.Context, _ repositories.SQLExecutor, matchID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, change := range r.changes {
		if change.MatchID == matchID {
			count++
		}
	}
	return count, nil
}

func (r *fakeRatingRepo) ListChangesByMatch(_ context.Context, matchID int) ([]models.EloChange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	changes := make([]models.EloChange, 0)
	for _, change := range r.changes {
		if change.MatchID == matchID {
			changes = append(changes, change)
		}
	}
	return changes, nil
}

func (r *fakeRatingRepo) playerElo(playerID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, players := range r.players {
		for _, player := range players {
			if player.ID == playerID {
				return player.CurrentElo
			}
		}
	}
	return 0
}

type fakeAuthorizer struct {
	chiefs map[int]bool
}

func (a *fakeAuthorizer) IsAssignedReferee(_ context.Context, match *models.Match, userID int) (bool, error) {
	return match.RefereeID == userID, nil
}

func (a *fakeAuthorizer) IsChiefReferee(_ context.Context, userID int) (bool, error) {
	return a.chiefs[userID], nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	eventTypes := make([]string, 0, len(p.events))
	for _, event := range p.events {
		eventTypes = append(eventTypes, event.Type)
	}
	return eventTypes
}

// fakeTxManager выполняет функцию без реальной транзакции. Хук before
// имитирует чужой коммит, успевший раньше этой транзакции.
type fakeTxManager struct {
	before func()
}

func (m *fakeTxManager) WithinTransaction(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	if m.before != nil {
		m.before()
	}
	return fn(nil)
}

const (
	refereeID = 100
	chiefID   = 200
	entryAID  = 10
	entryBID  = 20
)

type testEnv struct {
	service    AdjudicationService
	matchRepo  *fakeMatchRepo
	setRepo    *fakeSetRepo
	ratingRepo *fakeRatingRepo
	publisher  *fakePublisher
	txm        *fakeTxManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	matchRepo := newFakeMatchRepo()
	setRepo := newFakeSetRepo()
	ratingRepo := newFakeRatingRepo()
	ratingRepo.addPlayer(models.Player{ID: 1, EntryID: entryAID, CurrentElo: 1500})
	ratingRepo.addPlayer(models.Player{ID: 2, EntryID: entryAID, CurrentElo: 1500})
	ratingRepo.addPlayer(models.Player{ID: 3, EntryID: entryBID, CurrentElo: 1500})

	publisher := &fakePublisher{}
	txm := &fakeTxManager{}

	service := NewAdjudicationService(
		txm,
		matchRepo,
		setRepo,
		ratingRepo,
		&fakeAuthorizer{chiefs: map[int]bool{chiefID: true}},
		publisher,
		nil,
		32,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	return &testEnv{
		service:    service,
		matchRepo:  matchRepo,
		setRepo:    setRepo,
		ratingRepo: ratingRepo,
		publisher:  publisher,
		txm:        txm,
	}
}

func (e *testEnv) createMatch(t *testing.T, maxSets int) *models.Match {
	t.Helper()
	match := &models.Match{
		EntryAID:  entryAID,
		EntryBID:  entryBID,
		RefereeID: refereeID,
		MaxSets:   maxSets,
		Status:    models.MatchStatusScheduled,
	}
	require.NoError(t, e.matchRepo.Create(context.Background(), nil, match))
	return match
}

func TestFullAdjudicationRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	match := env.createMatch(t, 3)

	started, err := env.service.StartMatch(ctx, match.ID, refereeID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusInProgress, started.Status)

	for _, scores := range [][2]int{{21, 15}, {19, 21}, {21, 18}} {
		_, err := env.service.RecordSet(ctx, match.ID, refereeID, scores[0], scores[1])
		require.NoError(t, err)
	}

	// Порог побед достигнут, четвёртый сет не принимается.
	_, err = env.service.RecordSet(ctx, match.ID, refereeID, 21, 10)
	assert.ErrorIs(t, err, lifecycle.ErrMatchAlreadyDecided)

	finalized, err := env.service.FinalizeMatch(ctx, match.ID, refereeID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, finalized.Status)
	require.NotNil(t, finalized.WinnerEntryID)
	assert.Equal(t, entryAID, *finalized.WinnerEntryID)

	// После финализации матч закрыт для судьи.
	_, err = env.service.RecordSet(ctx, match.ID, refereeID, 21, 10)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidState)

	preview, err := env.service.ReviewPreview(ctx, match.ID, chiefID)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, preview.EntryA.ExpectedScore, 1e-9)
	require.Len(t, preview.EntryA.Players, 2)
	delta := preview.EntryA.Players[0].Delta
	assert.Positive(t, delta)

	approved, err := env.service.ApproveMatch(ctx, match.ID, chiefID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusApproved, approved.Status)

	assert.Equal(t, 1500+delta, env.ratingRepo.playerElo(1))
	assert.Equal(t, 1500+delta, env.ratingRepo.playerElo(2))
	assert.Equal(t, 1500-delta, env.ratingRepo.playerElo(3))

	changes, err := env.ratingRepo.ListChangesByMatch(ctx, match.ID)
	require.NoError(t, err)
	assert.Len(t, changes, 3)

	assert.Equal(t, []string{
		events.MatchStarted,
		events.MatchSetRecorded,
		events.MatchSetRecorded,
		events.MatchSetRecorded,
		events.MatchFinalized,
		events.MatchApproved,
	}, env.publisher.types())
}

func TestApproveMatchIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	match := env.createMatch(t, 3)

	_, err := env.service.StartMatch(ctx, match.ID, refereeID)
	require.NoError(t, err)
	for _, scores := range [][2]int{{21, 15}, {21, 12}} {
		_, err := env.service.RecordSet(ctx, match.ID, refereeID, scores[0], scores[1])
		require.NoError(t, err)
	}
	_, err = env.service.FinalizeMatch(ctx, match.ID, refereeID)
	require.NoError(t, err)

	first, err := env.service.ApproveMatch(ctx, match.ID, chiefID, nil)
	require.NoError(t, err)
	eloAfterFirst := env.ratingRepo.playerElo(1)

	second, err := env.service.ApproveMatch(ctx, match.ID, chiefID, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, eloAfterFirst, env.ratingRepo.playerElo(1), "repeated approve must not reapply deltas")

	changes, err := env.ratingRepo.ListChangesByMatch(ctx, match.ID)
	require.NoError(t, err)
	assert.Len(t, changes, 3, "one change row per player, not per approve call")
}

func TestFinalizeIncompleteMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	match := env.createMatch(t, 3)

	_, err := env.service.StartMatch(ctx, match.ID, refereeID)
	require.NoError(t, err)
	_, err = env.service.RecordSet(ctx, match.ID, refereeID, 21, 15)
	require.NoError(t, err)

	_, err = env.service.FinalizeMatch(ctx, match.ID, refereeID)
	assert.ErrorIs(t, err, lifecycle.ErrIncompleteMatch)

	stored, err := env.matchRepo.GetByID(ctx, nil, match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusInProgress, stored.Status, "failed finalize leaves stored state unchanged")
}

func TestRejectRequiresNotes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	match := env.createMatch(t, 3)

	_, err := env.service.StartMatch(ctx, match.ID, refereeID)
	require.NoError(t, err)
	for _, scores := range [][2]int{{21, 15}, {21, 12}} {
		_, err := env.service.RecordSet(ctx, match.ID, refereeID, scores[0], scores[1])
		require.NoError(t, err)
	}
	_, err = env.service.FinalizeMatch(ctx, match.ID, refereeID)
	require.NoError(t, err)

	_, err = env.service.RejectMatch(ctx, match.ID, chiefID, "")
	assert.ErrorIs(t, err, ErrMissingReviewNotes)

	_, err = env.service.RejectMatch(ctx, match.ID, chiefID, "   ")
	assert.ErrorIs(t, err, ErrMissingReviewNotes)

	stored, err := env.matchRepo.GetByID(ctx, nil, match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, stored.Status)

	rejected, err := env.service.RejectMatch(ctx, match.ID, chiefID, "set 2 score entered backwards")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusRejected, rejected.Status)
	require.NotNil(t, rejected.ReviewNotes)
}

func TestRejectReopenRefinalize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	match := env.createMatch(t, 3)

	_, err := env.service.StartMatch(ctx, match.ID, refereeID)
	require.NoError(t, err)

	// Первая попытка: ошибочный протокол, завершённый разгромом.
	for _, scores := range [][2]int{{21, 0}, {21, 0}} {
		_, err := env.service.RecordSet(ctx, match.ID, refereeID, scores[0], scores[1])
		require.NoError(t, err)
	}
	_, err = env.service.FinalizeMatch(ctx, match.ID, refereeID)
	require.NoError(t, err)

	_, err = env.service.RejectMatch(ctx, match.ID, chiefID, "scores from the wrong court")
	require.NoError(t, err)

	reopened, err := env.service.ReopenMatch(ctx, match.ID, refereeID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusInProgress, reopened.Status)
	assert.Nil(t, reopened.WinnerEntryID)

	sets, err := env.setRepo.ListByMatch(ctx, nil, match.ID)
	require.NoError(t, err)
	assert.Empty(t, sets, "reopen clears the discarded set ledger")

	// Исправленный протокол: победа B.
	for _, scores := range [][2]int{{15, 21}, {21, 19}, {17, 21}} {
		_, err := env.service.RecordSet(ctx, match.ID, refereeID, scores[0], scores[1])
		require.NoError(t, err)
	}
	finalized, err := env.service.FinalizeMatch(ctx, match.ID, refereeID)
	require.NoError(t, err)
	require.NotNil(t, finalized.WinnerEntryID)
	assert.Equal(t, entryBID, *finalized.WinnerEntryID)

	_, err = env.service.ApproveMatch(ctx, match.ID, chiefID, nil)
	require.NoError(t, err)

	// Рейтинги отражают только исправленный протокол, без следов
	// отклонённой попытки.
	changes, err := env.ratingRepo.ListChangesByMatch(ctx, match.ID)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	for _, change := range changes {
		if change.PlayerID == 3 {
			assert.Positive(t, change.Delta, "entry B won the corrected match")
		} else {
			assert.Negative(t, change.Delta)
		}
	}
}

func TestAuthorizationGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	match := env.createMatch(t, 3)

	_, err := env.service.StartMatch(ctx, match.ID, chiefID)
	assert.ErrorIs(t, err, ErrUnauthorized, "only the assigned referee may start the match")

	_, err = env.service.StartMatch(ctx, match.ID, refereeID)
	require.NoError(t, err)

	for _, scores := range [][2]int{{21, 15}, {21, 12}} {
		_, err := env.service.RecordSet(ctx, match.ID, refereeID, scores[0], scores[1])
		require.NoError(t, err)
	}
	_, err = env.service.FinalizeMatch(ctx, match.ID, refereeID)
	require.NoError(t, err)

	_, err = env.service.ReviewPreview(ctx, match.ID, refereeID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.service.ApproveMatch(ctx, match.ID, refereeID, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestPreviewRequiresPendingReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	match := env.createMatch(t, 3)

	_, err := env.service.ReviewPreview(ctx, match.ID, chiefID)
	assert.ErrorIs(t, err, ErrNotPendingReview)

	_, err = env.service.ApproveMatch(ctx, match.ID, chiefID, nil)
	assert.ErrorIs(t, err, ErrNotPendingReview)
}

func TestApproveRejectedMatchFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	match := env.createMatch(t, 3)

	_, err := env.service.StartMatch(ctx, match.ID, refereeID)
	require.NoError(t, err)
	for _, scores := range [][2]int{{21, 15}, {21, 12}} {
		_, err := env.service.RecordSet(ctx, match.ID, refereeID, scores[0], scores[1])
		require.NoError(t, err)
	}
	_, err = env.service.FinalizeMatch(ctx, match.ID, refereeID)
	require.NoError(t, err)

	_, err = env.service.RejectMatch(ctx, match.ID, chiefID, "duplicate protocol")
	require.NoError(t, err)

	_, err = env.service.ApproveMatch(ctx, match.ID, chiefID, nil)
	assert.ErrorIs(t, err, ErrNotPendingReview)

	stored, err := env.matchRepo.GetByID(ctx, nil, match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusRejected, stored.Status)

	assert.Equal(t, 1500, env.ratingRepo.playerElo(1), "rejected match must not touch ratings")
	changes, err := env.ratingRepo.ListChangesByMatch(ctx, match.ID)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestApproveJournalsCommitTimeRatings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	match := env.createMatch(t, 3)

	_, err := env.service.StartMatch(ctx, match.ID, refereeID)
	require.NoError(t, err)
	for _, scores := range [][2]int{{21, 15}, {21, 12}} {
		_, err := env.service.RecordSet(ctx, match.ID, refereeID, scores[0], scores[1])
		require.NoError(t, err)
	}
	_, err = env.service.FinalizeMatch(ctx, match.ID, refereeID)
	require.NoError(t, err)

	// Чужой коммит двигает рейтинг игрока 1 между расчётом предпросмотра
	// и транзакцией утверждения.
	env.txm.before = func() {
		require.NoError(t, env.ratingRepo.ApplyDelta(ctx, nil, 1, 10))
	}

	_, err = env.service.ApproveMatch(ctx, match.ID, chiefID, nil)
	require.NoError(t, err)

	changes, err := env.ratingRepo.ListChangesByMatch(ctx, match.ID)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	for _, change := range changes {
		switch change.PlayerID {
		case 1:
			assert.Equal(t, 1510, change.OldElo, "journal reflects the rating at commit time")
			assert.Equal(t, 1510+change.Delta, change.NewElo)
			assert.Equal(t, change.NewElo, env.ratingRepo.playerElo(1))
		case 2:
			assert.Equal(t, 1500, change.OldElo)
			assert.Equal(t, 1500+change.Delta, change.NewElo)
		}
	}
}

func TestStartMatchIllegalTransition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	match := env.createMatch(t, 3)

	_, err := env.service.StartMatch(ctx, match.ID, refereeID)
	require.NoError(t, err)

	_, err = env.service.StartMatch(ctx, match.ID, refereeID)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidState)
}

func TestConcurrentRecordSetSerialized(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	match := env.createMatch(t, 5)

	_, err := env.service.StartMatch(ctx, match.ID, refereeID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.service.RecordSet(ctx, match.ID, refereeID, 21, 15)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, lifecycle.ErrMatchAlreadyDecided)
		}
	}
	assert.Equal(t, 3, succeeded, "best-of-5 accepts exactly three decided sets for one side")

	sets, err := env.setRepo.ListByMatch(ctx, nil, match.ID)
	require.NoError(t, err)
	require.Len(t, sets, 3)

	seen := make(map[int]bool)
	for _, set := range sets {
		assert.False(t, seen[set.SetNumber], fmt.Sprintf("duplicate set number %d", set.SetNumber))
		seen[set.SetNumber] = true
	}
}
