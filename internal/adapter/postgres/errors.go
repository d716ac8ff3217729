package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/heartmarshall/engagement-backend/internal/domain"
)

// MapError converts pgx/pgconn errors to domain errors. subject names what
// was being accessed ("rfi 5f0c...", "audit_log search").
// context.DeadlineExceeded and context.Canceled are not mapped and pass through.
// Anything unrecognised becomes a *domain.DatabaseError.
func MapError(err error, subject string) error {
	if err == nil {
		return nil
	}

	// context errors pass through as-is
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", subject, err)
	}

	// pgx.ErrNoRows → domain.ErrNotFound
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", subject, domain.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %s: %w", subject, pgErr.ConstraintName, domain.ErrAlreadyExists)
		case "23503": // foreign_key_violation
			// A delete blocked by dependents conflicts; a write pointing at a
			// missing row is a dangling reference.
			if strings.Contains(pgErr.Detail, "still referenced") {
				return fmt.Errorf("%s: %s: %w", subject, pgErr.ConstraintName, domain.ErrConflict)
			}
			return fmt.Errorf("%s: %s: %w", subject, pgErr.ConstraintName, domain.ErrNotFound)
		case "23514": // check_violation
			return fmt.Errorf("%s: %s: %w", subject, pgErr.ConstraintName, domain.ErrValidation)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%s: %w", subject, domain.ErrConflict)
		}
	}

	return &domain.DatabaseError{Op: subject, Err: err}
}
