package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/adjudication-engine/models"
	"github.com/lib/pq"
)

var (
	ErrEntryNotFound         = errors.New("entry not found")
	ErrPlayerNotFound        = errors.New("player not found")
	ErrEloChangeConflict     = errors.New("elo change already recorded for this match and player")
	ErrEloChangeMatchInvalid = errors.New("elo change match conflict or invalid")
)

// RatingRepository — хранилище рейтингов: игроки заявок, агрегатный рейтинг и
// журнал применённых изменений (match_elo_changes). Наличие строк журнала по
// match_id — маркер уже выполненного коммита рейтингов.
type RatingRepository interface {
	GetAggregateRating(ctx context.Context, entryID int) (float64, error)
	ListPlayersByEntry(ctx context.Context, exec SQLExecutor, entryID int) ([]models.Player, error)
	ApplyDelta(ctx context.Context, exec SQLExecutor, playerID, delta int) error
	InsertChange(ctx context.Context, exec SQLExecutor, change *models.EloChange) error
	CountChangesByMatch(ctx context.Context, exec SQLExecutor, matchID int) (int, error)
	ListChangesByMatch(ctx context.Context, matchID int) ([]models.EloChange, error)
}

type postgresRatingRepository struct {
	db *sql.DB
}

func NewPostgresRatingRepository(db *sql.DB) RatingRepository {
	return &postgresRatingRepository{db: db}
}

func (r *postgresRatingRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

// GetAggregateRating — средний рейтинг участников заявки (для пар и команд
// это среднее по составу).
func (r *postgresRatingRepository) GetAggregateRating(ctx context.Context, entryID int) (float64, error) {
	query := `SELECT AVG(current_elo) FROM players WHERE entry_id = $1`

	var avg sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, query, entryID).Scan(&avg); err != nil {
		return 0, fmt.Errorf("failed to aggregate rating for entry %d: %w", entryID, err)
	}
	if !avg.Valid {
		return 0, ErrEntryNotFound
	}
	return avg.Float64, nil
}

func (r *postgresRatingRepository) ListPlayersByEntry(ctx context.Context, exec SQLExecutor, entryID int) ([]models.Player, error) {
	query := `
		SELECT id, entry_id, first_name, last_name, current_elo, created_at
		FROM players
		WHERE entry_id = $1
		ORDER BY id ASC`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query players for entry %d: %w", entryID, err)
	}
	defer rows.Close()

	players := make([]models.Player, 0)
	for rows.Next() {
		var player models.Player
		if scanErr := rows.Scan(
			&player.ID,
			&player.EntryID,
			&player.FirstName,
			&player.LastName,
			&player.CurrentElo,
			&player.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan player row: %w", scanErr)
		}
		players = append(players, player)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during player rows iteration: %w", err)
	}
	if len(players) == 0 {
		return nil, ErrEntryNotFound
	}
	return players, nil
}

func (r *postgresRatingRepository) ApplyDelta(ctx context.Context, exec SQLExecutor, playerID, delta int) error {
	query := `UPDATE players SET current_elo = current_elo + $1 WHERE id = $2`
	result, err := r.getExecutor(exec).ExecContext(ctx, query, delta, playerID)
	if err != nil {
		return fmt.Errorf("failed to apply rating delta to player %d: %w", playerID, err)
	}
	return checkAffectedRows(result, ErrPlayerNotFound)
}

func (r *postgresRatingRepository) InsertChange(ctx context.Context, exec SQLExecutor, change *models.EloChange) error {
	query := `
		INSERT INTO match_elo_changes (match_id, player_id, old_elo, delta, new_elo)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		change.MatchID,
		change.PlayerID,
		change.OldElo,
		change.Delta,
		change.NewElo,
	).Scan(&change.ID, &change.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Constraint {
			case "match_elo_changes_match_id_player_id_key":
				return ErrEloChangeConflict
			case "match_elo_changes_match_id_fkey":
				return ErrEloChangeMatchInvalid
			}
		}
		return fmt.Errorf("failed to insert elo change for match %d player %d: %w", change.MatchID, change.PlayerID, err)
	}
	return nil
}

func (r *postgresRatingRepository) CountChangesByMatch(ctx context.Context, exec SQLExecutor, matchID int) (int, error) {
	query := `SELECT COUNT(*) FROM match_elo_changes WHERE match_id = $1`

	var count int
	if err := r.getExecutor(exec).QueryRowContext(ctx, query, matchID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count elo changes for match %d: %w", matchID, err)
	}
	return count, nil
}

func (r *postgresRatingRepository) ListChangesByMatch(ctx context.Context, matchID int) ([]models.EloChange, error) {
	query := `
		SELECT id, match_id, player_id, old_elo, delta, new_elo, created_at
		FROM match_elo_changes
		WHERE match_id = $1
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query elo changes for match %d: %w", matchID, err)
	}
	defer rows.Close()

	changes := make([]models.EloChange, 0)
	for rows.Next() {
		var change models.EloChange
		if scanErr := rows.Scan(
			&change.ID,
			&change.MatchID,
			&change.PlayerID,
			&change.OldElo,
			&change.Delta,
			&change.NewElo,
			&change.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan elo change row: %w", scanErr)
		}
		changes = append(changes, change)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during elo change rows iteration: %w", err)
	}
	return changes, nil
}
