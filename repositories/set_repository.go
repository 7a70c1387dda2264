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
	ErrSetNotFound       = errors.New("set not found")
	ErrSetMatchInvalid   = errors.New("set match conflict or invalid")
	ErrSetNumberConflict = errors.New("set number already recorded for this match")
)

type SetRepository interface {
	Append(ctx context.Context, exec SQLExecutor, set *models.Set) error
	ListByMatch(ctx context.Context, exec SQLExecutor, matchID int) ([]models.Set, error)
	DeleteByMatch(ctx context.Context, exec SQLExecutor, matchID int) error
}

type postgresSetRepository struct {
	db *sql.DB
}

func NewPostgresSetRepository(db *sql.DB) SetRepository {
	return &postgresSetRepository{db: db}
}

func (r *postgresSetRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresSetRepository) Append(ctx context.Context, exec SQLExecutor, set *models.Set) error {
	query := `
		INSERT INTO sets (match_id, set_number, entry_a_score, entry_b_score)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		set.MatchID,
		set.SetNumber,
		set.EntryAScore,
		set.EntryBScore,
	).Scan(&set.ID, &set.CreatedAt)

	return r.handleSetError(err)
}

func (r *postgresSetRepository) ListByMatch(ctx context.Context, exec SQLExecutor, matchID int) ([]models.Set, error) {
	query := `
		SELECT id, match_id, set_number, entry_a_score, entry_b_score, created_at
		FROM sets
		WHERE match_id = $1
		ORDER BY set_number ASC`

	rows, err := r.getExecutor(exec).QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sets for match %d: %w", matchID, err)
	}
	defer rows.Close()

	sets := make([]models.Set, 0)
	for rows.Next() {
		var set models.Set
		if scanErr := rows.Scan(
			&set.ID,
			&set.MatchID,
			&set.SetNumber,
			&set.EntryAScore,
			&set.EntryBScore,
			&set.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan set row: %w", scanErr)
		}
		sets = append(sets, set)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during set rows iteration: %w", err)
	}
	return sets, nil
}

// DeleteByMatch удаляет все сеты матча. Используется только при переоткрытии
// отклонённого матча: журнал очищается для чистого повторного ввода.
func (r *postgresSetRepository) DeleteByMatch(ctx context.Context, exec SQLExecutor, matchID int) error {
	query := `DELETE FROM sets WHERE match_id = $1`
	_, err := r.getExecutor(exec).ExecContext(ctx, query, matchID)
	if err != nil {
		return fmt.Errorf("failed to delete sets for match %d: %w", matchID, err)
	}
	return nil
}

func (r *postgresSetRepository) handleSetError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Constraint {
		case "sets_match_id_fkey":
			return ErrSetMatchInvalid
		case "sets_match_id_set_number_key":
			return ErrSetNumberConflict
		}
	}
	return err
}
