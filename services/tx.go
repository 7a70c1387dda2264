package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dosada05/adjudication-engine/repositories"
)

// TransactionManager выполняет функцию в границах одной транзакции БД.
// Репозитории получают исполнитель и участвуют в ней через SQLExecutor.
type TransactionManager interface {
	WithinTransaction(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error
}

type sqlTransactionManager struct {
	db *sql.DB
}

func NewSQLTransactionManager(db *sql.DB) TransactionManager {
	return &sqlTransactionManager{db: db}
}

func (m *sqlTransactionManager) WithinTransaction(ctx context.Context, fn func(exec repositories.SQLExecutor) error) (txErr error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if txErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				txErr = fmt.Errorf("transaction error: %w (rollback also failed: %v)", txErr, rbErr)
			}
		}
	}()

	if txErr = fn(tx); txErr != nil {
		return txErr
	}

	if txErr = tx.Commit(); txErr != nil {
		return fmt.Errorf("failed to commit transaction: %w", txErr)
	}
	return nil
}
