package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/terminal-bench/vestcore/internal/vesting"
)

// Postgres is a vesting.Store backed by PostgreSQL. Schedules are keyed on
// (beneficiary, seq); modifications are append-only.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Schema used by this store. Applied by deployment tooling, kept here as
// the single reference for the key space.
const Schema = `
CREATE TABLE IF NOT EXISTS vesting_schedules (
    beneficiary     UUID        NOT NULL,
    seq             BIGINT      NOT NULL,
    total           NUMERIC     NOT NULL,
    start_time      BIGINT      NOT NULL,
    cliff           BIGINT      NOT NULL,
    duration        BIGINT      NOT NULL,
    claimed         NUMERIC     NOT NULL,
    revoked         BOOLEAN     NOT NULL DEFAULT FALSE,
    revoked_at      BIGINT      NOT NULL DEFAULT 0,
    forfeited       BOOLEAN     NOT NULL DEFAULT FALSE,
    revoke_snapshot NUMERIC     NOT NULL DEFAULT 0,
    triggers        JSONB,
    version         INT         NOT NULL,
    created_at      BIGINT      NOT NULL,
    updated_at      BIGINT      NOT NULL,
    granted_by      UUID        NOT NULL,
    PRIMARY KEY (beneficiary, seq)
);

CREATE TABLE IF NOT EXISTS vesting_sequences (
    beneficiary UUID PRIMARY KEY,
    next_seq    BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS vesting_modifications (
    id          UUID PRIMARY KEY,
    beneficiary UUID   NOT NULL,
    seq         BIGINT NOT NULL,
    field       TEXT   NOT NULL,
    old_value   TEXT   NOT NULL,
    new_value   TEXT   NOT NULL,
    actor       UUID   NOT NULL,
    ts          BIGINT NOT NULL
);
`

func (p *Postgres) Get(ctx context.Context, id vesting.ScheduleID) (*vesting.Schedule, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT total, start_time, cliff, duration, claimed, revoked, revoked_at,
		        forfeited, revoke_snapshot, triggers, version, created_at, updated_at, granted_by
		 FROM vesting_schedules WHERE beneficiary = $1 AND seq = $2`,
		id.Beneficiary, id.Seq,
	)

	s := &vesting.Schedule{ID: id}
	var total, claimed, snapshot string
	var triggers []byte
	err := row.Scan(&total, &s.Start, &s.Cliff, &s.Duration, &claimed, &s.Revoked, &s.RevokedAt,
		&s.Forfeited, &snapshot, &triggers, &s.Version, &s.CreatedAt, &s.UpdatedAt, &s.GrantedBy)
	if err == sql.ErrNoRows {
		return nil, vesting.ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	if s.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("failed to parse total: %w", err)
	}
	if s.Claimed, err = decimal.NewFromString(claimed); err != nil {
		return nil, fmt.Errorf("failed to parse claimed: %w", err)
	}
	if s.RevokeSnapshot, err = decimal.NewFromString(snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse revoke snapshot: %w", err)
	}
	if len(triggers) > 0 {
		if err := json.Unmarshal(triggers, &s.Triggers); err != nil {
			return nil, fmt.Errorf("failed to decode triggers: %w", err)
		}
	}
	return s, nil
}

func (p *Postgres) Put(ctx context.Context, s *vesting.Schedule) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var triggers []byte
	if s.Triggers != nil {
		triggers, err = json.Marshal(s.Triggers)
		if err != nil {
			return fmt.Errorf("failed to encode triggers: %w", err)
		}
	}

	var prevClaimed string
	var prevRevoked bool
	scanErr := tx.QueryRowContext(ctx,
		`SELECT claimed, revoked FROM vesting_schedules
		 WHERE beneficiary = $1 AND seq = $2 FOR UPDATE`,
		s.ID.Beneficiary, s.ID.Seq,
	).Scan(&prevClaimed, &prevRevoked)

	switch scanErr {
	case sql.ErrNoRows:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO vesting_schedules
			 (beneficiary, seq, total, start_time, cliff, duration, claimed, revoked, revoked_at,
			  forfeited, revoke_snapshot, triggers, version, created_at, updated_at, granted_by)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
			s.ID.Beneficiary, s.ID.Seq, s.Total.String(), s.Start, s.Cliff, s.Duration,
			s.Claimed.String(), s.Revoked, s.RevokedAt, s.Forfeited,
			s.RevokeSnapshot.String(), triggers, s.Version, s.CreatedAt, s.UpdatedAt, s.GrantedBy,
		)
		if err != nil {
			return fmt.Errorf("failed to insert schedule: %w", err)
		}
	case nil:
		claimed, perr := decimal.NewFromString(prevClaimed)
		if perr != nil {
			return fmt.Errorf("failed to parse stored claimed: %w", perr)
		}
		prev := &vesting.Schedule{ID: s.ID, Claimed: claimed, Revoked: prevRevoked}
		if gerr := guardOverwrite(prev, s); gerr != nil {
			return gerr
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE vesting_schedules SET
			 total = $3, start_time = $4, cliff = $5, duration = $6, claimed = $7,
			 revoked = $8, revoked_at = $9, forfeited = $10, revoke_snapshot = $11,
			 triggers = $12, version = $13, updated_at = $14
			 WHERE beneficiary = $1 AND seq = $2`,
			s.ID.Beneficiary, s.ID.Seq, s.Total.String(), s.Start, s.Cliff, s.Duration,
			s.Claimed.String(), s.Revoked, s.RevokedAt, s.Forfeited,
			s.RevokeSnapshot.String(), triggers, s.Version, s.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update schedule: %w", err)
		}
	default:
		return fmt.Errorf("failed to lock schedule: %w", scanErr)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (p *Postgres) Exists(ctx context.Context, id vesting.ScheduleID) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM vesting_schedules WHERE beneficiary = $1 AND seq = $2)`,
		id.Beneficiary, id.Seq,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check schedule: %w", err)
	}
	return exists, nil
}

func (p *Postgres) NextSeq(ctx context.Context, beneficiary uuid.UUID) (uint64, error) {
	var seq uint64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO vesting_sequences (beneficiary, next_seq) VALUES ($1, 1)
		 ON CONFLICT (beneficiary) DO UPDATE SET next_seq = vesting_sequences.next_seq + 1
		 RETURNING next_seq`,
		beneficiary,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence: %w", err)
	}
	return seq, nil
}

func (p *Postgres) AppendModification(ctx context.Context, m vesting.Modification) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO vesting_modifications (id, beneficiary, seq, field, old_value, new_value, actor, ts)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.Schedule.Beneficiary, m.Schedule.Seq, m.Field, m.OldValue, m.NewValue, m.Actor, m.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append modification: %w", err)
	}
	return nil
}

func (p *Postgres) Modifications(ctx context.Context, id vesting.ScheduleID) ([]vesting.Modification, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, field, old_value, new_value, actor, ts
		 FROM vesting_modifications WHERE beneficiary = $1 AND seq = $2 ORDER BY ts ASC`,
		id.Beneficiary, id.Seq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query modifications: %w", err)
	}
	defer rows.Close()

	var mods []vesting.Modification
	for rows.Next() {
		m := vesting.Modification{Schedule: id}
		if err := rows.Scan(&m.ID, &m.Field, &m.OldValue, &m.NewValue, &m.Actor, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan modification: %w", err)
		}
		mods = append(mods, m)
	}
	return mods, rows.Err()
}
