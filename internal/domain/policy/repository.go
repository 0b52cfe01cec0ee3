package policy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const queryTimeout = 3 * time.Second

// Repository defines policy data access
type Repository interface {
	Create(ctx context.Context, p *Policy) error
	Update(ctx context.Context, p *Policy) error
	GetByUUID(ctx context.Context, id uuid.UUID) (*Policy, error)
	ListActiveForEnterprise(ctx context.Context, enterpriseCustomerUUID uuid.UUID) ([]*Policy, error)
	ListActiveForSubsidy(ctx context.Context, subsidyUUID uuid.UUID) ([]*Policy, error)
}

type policyRow struct {
	Policy
	GroupUUIDs pq.StringArray `db:"group_uuids"`
}

func (r policyRow) toPolicy() (*Policy, error) {
	p := r.Policy
	p.GroupUUIDs = make([]uuid.UUID, 0, len(r.GroupUUIDs))
	for _, raw := range r.GroupUUIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: group uuid %q", ErrInternal, raw)
		}
		p.GroupUUIDs = append(p.GroupUUIDs, id)
	}
	return &p, nil
}

func groupArray(ids []uuid.UUID) pq.StringArray {
	out := make(pq.StringArray, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

type repository struct {
	db *sqlx.DB
}

// NewRepository creates the Postgres policy repository
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const selectPolicy = `
	SELECT
		p.uuid, p.policy_type, p.enterprise_customer_uuid, p.catalog_uuid, p.subsidy_uuid,
		p.access_method, p.display_name, p.description, p.active, p.retired, p.retired_at,
		p.spend_limit, p.per_learner_enrollment_limit, p.per_learner_spend_limit,
		p.assignment_configuration_uuid, p.late_redemption_allowed_until, p.created, p.modified,
		COALESCE(
			ARRAY(SELECT g.group_uuid::text FROM policy_group_associations g WHERE g.policy_uuid = p.uuid ORDER BY g.group_uuid),
			'{}'
		) AS group_uuids
	FROM subsidy_access_policies p
`

func (r *repository) Create(ctx context.Context, p *Policy) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO subsidy_access_policies (
			uuid, policy_type, enterprise_customer_uuid, catalog_uuid, subsidy_uuid,
			access_method, display_name, description, active, retired, retired_at,
			spend_limit, per_learner_enrollment_limit, per_learner_spend_limit,
			assignment_configuration_uuid, late_redemption_allowed_until, created, modified
		) VALUES (
			:uuid, :policy_type, :enterprise_customer_uuid, :catalog_uuid, :subsidy_uuid,
			:access_method, :display_name, :description, :active, :retired, :retired_at,
			:spend_limit, :per_learner_enrollment_limit, :per_learner_spend_limit,
			:assignment_configuration_uuid, :late_redemption_allowed_until, :created, :modified
		)
	`, p)
	if err != nil {
		return fmt.Errorf("%w: insert policy: %v", ErrInternal, err)
	}

	if err := replaceGroups(ctx, tx, p); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return nil
}

func (r *repository) Update(ctx context.Context, p *Policy) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	result, err := tx.NamedExecContext(ctx, `
		UPDATE subsidy_access_policies SET
			catalog_uuid = :catalog_uuid,
			subsidy_uuid = :subsidy_uuid,
			access_method = :access_method,
			display_name = :display_name,
			description = :description,
			active = :active,
			retired = :retired,
			retired_at = :retired_at,
			spend_limit = :spend_limit,
			per_learner_enrollment_limit = :per_learner_enrollment_limit,
			per_learner_spend_limit = :per_learner_spend_limit,
			assignment_configuration_uuid = :assignment_configuration_uuid,
			late_redemption_allowed_until = :late_redemption_allowed_until,
			modified = :modified
		WHERE uuid = :uuid
	`, p)
	if err != nil {
		return fmt.Errorf("%w: update policy: %v", ErrInternal, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected", ErrInternal)
	}
	if rows == 0 {
		return ErrPolicyNotFound
	}

	if err := replaceGroups(ctx, tx, p); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return nil
}

func replaceGroups(ctx context.Context, tx *sqlx.Tx, p *Policy) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM policy_group_associations WHERE policy_uuid = $1`, p.UUID); err != nil {
		return fmt.Errorf("%w: clear groups", ErrInternal)
	}
	if len(p.GroupUUIDs) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO policy_group_associations (policy_uuid, group_uuid)
		SELECT $1, unnest($2::uuid[])
	`, p.UUID, groupArray(p.GroupUUIDs))
	if err != nil {
		return fmt.Errorf("%w: insert groups", ErrInternal)
	}
	return nil
}

func (r *repository) GetByUUID(ctx context.Context, id uuid.UUID) (*Policy, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var row policyRow
	err := r.db.GetContext(ctx, &row, selectPolicy+` WHERE p.uuid = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("%w: get policy", ErrInternal)
	}
	return row.toPolicy()
}

func (r *repository) ListActiveForEnterprise(ctx context.Context, enterpriseCustomerUUID uuid.UUID) ([]*Policy, error) {
	return r.list(ctx, `
		WHERE p.enterprise_customer_uuid = $1 AND p.active = true AND p.retired = false
		ORDER BY p.created, p.uuid
	`, enterpriseCustomerUUID)
}

func (r *repository) ListActiveForSubsidy(ctx context.Context, subsidyUUID uuid.UUID) ([]*Policy, error) {
	return r.list(ctx, `
		WHERE p.subsidy_uuid = $1 AND p.active = true
		ORDER BY p.created, p.uuid
	`, subsidyUUID)
}

func (r *repository) list(ctx context.Context, where string, args ...interface{}) ([]*Policy, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rows []policyRow
	if err := r.db.SelectContext(ctx, &rows, selectPolicy+where, args...); err != nil {
		return nil, fmt.Errorf("%w: list policies", ErrInternal)
	}

	policies := make([]*Policy, 0, len(rows))
	for _, row := range rows {
		p, err := row.toPolicy()
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, nil
}
