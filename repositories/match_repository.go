package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Dosada05/adjudication-engine/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound       = errors.New("match not found")
	ErrMatchEntryInvalid   = errors.New("match entry conflict or invalid")
	ErrMatchRefereeInvalid = errors.New("match referee conflict or invalid")
)

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	ListByStatus(ctx context.Context, status models.MatchStatus, refereeID *int, limit, offset int) ([]*models.Match, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, match *models.Match) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const matchColumns = `id, entry_a_id, entry_b_id, referee_id, max_sets, status, winner_entry_id, review_notes, created_at, updated_at`

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		INSERT INTO matches (entry_a_id, entry_b_id, referee_id, max_sets, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := r.getExecutor(exec).QueryRowContext(ctx, query,
		match.EntryAID,
		match.EntryBID,
		match.RefereeID,
		match.MaxSets,
		match.Status,
	).Scan(&match.ID, &match.CreatedAt, &match.UpdatedAt)

	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`

	match := &models.Match{}
	err := r.getExecutor(exec).QueryRowContext(ctx, query, id).Scan(
		&match.ID,
		&match.EntryAID,
		&match.EntryBID,
		&match.RefereeID,
		&match.MaxSets,
		&match.Status,
		&match.WinnerEntryID,
		&match.ReviewNotes,
		&match.CreatedAt,
		&match.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match by id %d: %w", id, err)
	}
	return match, nil
}

func (r *postgresMatchRepository) ListByStatus(ctx context.Context, status models.MatchStatus, refereeID *int, limit, offset int) ([]*models.Match, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + matchColumns + ` FROM matches WHERE status = $1`)

	args := []interface{}{status}
	placeholderIndex := 2

	if refereeID != nil {
		queryBuilder.WriteString(" AND referee_id = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *refereeID)
		placeholderIndex++
	}

	queryBuilder.WriteString(" ORDER BY id ASC")
	queryBuilder.WriteString(" LIMIT $" + strconv.Itoa(placeholderIndex))
	args = append(args, limit)
	placeholderIndex++
	queryBuilder.WriteString(" OFFSET $" + strconv.Itoa(placeholderIndex))
	args = append(args, offset)

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches by status %s: %w", status, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		var match models.Match
		if scanErr := rows.Scan(
			&match.ID,
			&match.EntryAID,
			&match.EntryBID,
			&match.RefereeID,
			&match.MaxSets,
			&match.Status,
			&match.WinnerEntryID,
			&match.ReviewNotes,
			&match.CreatedAt,
			&match.UpdatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", scanErr)
		}
		matches = append(matches, &match)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during match rows iteration: %w", err)
	}
	return matches, nil
}

// UpdateStatus сохраняет статус, победителя и заметки ревью одним запросом —
// все переходы состояния проходят через него.
func (r *postgresMatchRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		UPDATE matches
		SET status = $1, winner_entry_id = $2, review_notes = $3, updated_at = $4
		WHERE id = $5`

	match.UpdatedAt = time.Now()
	result, err := r.getExecutor(exec).ExecContext(ctx, query,
		match.Status,
		match.WinnerEntryID,
		match.ReviewNotes,
		match.UpdatedAt,
		match.ID,
	)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Constraint {
		case "matches_entry_a_id_fkey", "matches_entry_b_id_fkey":
			return ErrMatchEntryInvalid
		case "matches_referee_id_fkey":
			return ErrMatchRefereeInvalid
		}
	}
	return err
}
