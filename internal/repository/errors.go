package repository

import (
	"errors"
	"fmt"

	"github.com/now-is/chicommons-maps/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation     = "23505"
	activeSnapshotIndex = "entry_snapshots_one_active_idx"
)

// translateError maps driver errors onto the domain taxonomy. Anything it
// does not recognise is wrapped with the operation for context.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotFoundf("%s: %w", op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == activeSnapshotIndex {
		return domain.Conflictf("%s: invariant violated: multiple active versions: %w", op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
