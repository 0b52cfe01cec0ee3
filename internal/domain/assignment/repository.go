package assignment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

var ErrInternal = errors.New("internal error")

// Repository reads learner assignments. Writes happen elsewhere.
type Repository interface {
	GetAssignment(ctx context.Context, configurationUUID uuid.UUID, lmsUserID int64, contentKey string) (*Assignment, error)
	AllocatedQuantity(ctx context.Context, configurationUUID uuid.UUID) (int64, error)
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates the Postgres assignment repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

// GetAssignment returns the learner's most recent assignment for the content key, or nil.
func (r *repository) GetAssignment(ctx context.Context, configurationUUID uuid.UUID, lmsUserID int64, contentKey string) (*Assignment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var a Assignment
	err := r.db.GetContext(ctx, &a, `
		SELECT
			uuid, assignment_configuration_uuid, content_key, parent_content_key,
			lms_user_id, learner_email, state, content_quantity, transaction_uuid,
			created, modified
		FROM learner_content_assignments
		WHERE assignment_configuration_uuid = $1
			AND lms_user_id = $2
			AND (content_key = $3 OR parent_content_key = $3)
		ORDER BY modified DESC, uuid
		LIMIT 1
	`, configurationUUID, lmsUserID, contentKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get assignment", ErrInternal)
	}
	return &a, nil
}

// AllocatedQuantity sums the content quantity of allocated assignments. The result is <= 0.
func (r *repository) AllocatedQuantity(ctx context.Context, configurationUUID uuid.UUID) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var total int64
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(content_quantity), 0)
		FROM learner_content_assignments
		WHERE assignment_configuration_uuid = $1 AND state = $2
	`, configurationUUID, StateAllocated)
	if err != nil {
		return 0, fmt.Errorf("%w: allocated quantity", ErrInternal)
	}
	return total, nil
}
