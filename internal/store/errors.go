package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Sentinel taxonomy every caller branches on. Raw driver errors never leave
// this package.
var (
	ErrNotFound  = errors.New("store: not found")
	ErrConflict  = errors.New("store: conflict")
	ErrIntegrity = errors.New("store: integrity violation")
	ErrTransient = errors.New("store: transient failure")
)

// Classify folds gorm and postgres driver errors into the taxonomy.
// Unknown errors pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrIntegrity
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTransient
	}

	// pgx carries SQLSTATE codes on its own error type.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Code, err)
	}

	// lib/pq paths (raw database/sql connections, e.g. the migrator).
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifySQLState(string(pqErr.Code), err)
	}

	// The sqlite driver used in tests reports constraint failures as text.
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrConflict
	}
	if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
		return ErrIntegrity
	}

	return err
}

func classifySQLState(code string, err error) error {
	switch code {
	case "23505": // unique_violation
		return ErrConflict
	case "23503", "23514", "23502": // fk, check, not-null
		return ErrIntegrity
	case "40001", "40P01": // serialization failure, deadlock
		return ErrTransient
	case "08000", "08003", "08006", "57P03", "53300": // connection / capacity
		return ErrTransient
	}
	return err
}

// IsRetryable reports whether the error is worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
