package register

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/caixa/internal/ledger"
	"github.com/odyssey-erp/caixa/internal/shared"
)

const registerColumns = `id, unit_id, business_date, status, opening_balance, operator,
	opened_at, closed_at, closed_by, frozen_totals, version`

const movementColumns = `id, unit_id, business_date, direction, origin, amount, payment_method,
	description, linked_entity_ref, installment_count, occurred_at`

// PGRepository persists registers and movements in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
	idem *shared.IdempotencyStore
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool, idem *shared.IdempotencyStore) *PGRepository {
	return &PGRepository{pool: pool, idem: idem}
}

// WithTx runs fn inside a read-committed transaction. Scope serialisation
// comes from the row lock taken by LoadRegisterForUpdate, so a waiting writer
// re-reads the committed register state after the lock is released.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("register: repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("register: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(ctx, &pgTx{tx: tx, idem: r.idem}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("register: commit tx: %w", err)
	}
	return nil
}

// LoadRegister reads a register without locking.
func (r *PGRepository) LoadRegister(ctx context.Context, scope ledger.Scope) (Register, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+registerColumns+` FROM cash_registers WHERE unit_id = $1 AND business_date = $2`,
		scope.UnitID, pgDate(scope.Date))
	return scanRegister(row)
}

// ListMovements returns the movements of a scope ordered by occurrence.
func (r *PGRepository) ListMovements(ctx context.Context, scope ledger.Scope) ([]ledger.Movement, error) {
	return listMovements(ctx, r.pool, scope)
}

// ListOpenBefore returns registers still open for a date before the given one.
func (r *PGRepository) ListOpenBefore(ctx context.Context, date time.Time) ([]Register, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+registerColumns+` FROM cash_registers
		WHERE status = 'OPEN' AND business_date < $1 ORDER BY business_date, unit_id`, pgDate(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Register, 0)
	for rows.Next() {
		reg, err := scanRegister(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx   pgx.Tx
	idem *shared.IdempotencyStore
}

func (t *pgTx) ClaimKey(ctx context.Context, key, module string) error {
	return claimKey(ctx, t.idem, t.tx, key, module)
}

// claimKey records key through db and reports a reused key as
// ledger.ErrDuplicateRequest.
func claimKey(ctx context.Context, idem *shared.IdempotencyStore, db shared.Execer, key, module string) error {
	if idem == nil {
		return nil
	}
	if err := idem.Claim(ctx, db, key, module); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return fmt.Errorf("%w: key %s", ledger.ErrDuplicateRequest, key)
		}
		return err
	}
	return nil
}

func (t *pgTx) LoadRegisterForUpdate(ctx context.Context, scope ledger.Scope) (Register, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+registerColumns+` FROM cash_registers
		WHERE unit_id = $1 AND business_date = $2 FOR UPDATE`, scope.UnitID, pgDate(scope.Date))
	return scanRegister(row)
}

func (t *pgTx) InsertRegister(ctx context.Context, reg Register) (Register, error) {
	const query = `INSERT INTO cash_registers (unit_id, business_date, status, opening_balance, operator, opened_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	var id pgtype.UUID
	err := t.tx.QueryRow(ctx, query,
		reg.UnitID, pgDate(reg.Date), string(reg.Status), reg.OpeningBalance, reg.Operator, reg.OpenedAt, reg.Version,
	).Scan(&id)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return Register{}, ledger.ErrAlreadyOpen
		}
		return Register{}, err
	}
	reg.ID = uuidString(id)
	return reg, nil
}

func (t *pgTx) AppendMovements(ctx context.Context, registerID string, movements []ledger.Movement) error {
	regID, err := pgUUID(registerID)
	if err != nil {
		return err
	}
	rows := make([][]any, 0, len(movements))
	for _, m := range movements {
		id, err := pgUUID(m.ID)
		if err != nil {
			return fmt.Errorf("register: movement id: %w", err)
		}
		rows = append(rows, []any{
			id, regID, m.UnitID, pgDate(m.Date), string(m.Direction), string(m.Origin), m.Amount,
			string(m.PaymentMethod), m.Description, nullableText(m.LinkedEntityRef), m.InstallmentCount, m.OccurredAt,
		})
	}
	_, err = t.tx.CopyFrom(ctx, pgx.Identifier{"cash_movements"}, []string{
		"id", "register_id", "unit_id", "business_date", "direction", "origin", "amount",
		"payment_method", "description", "linked_entity_ref", "installment_count", "occurred_at",
	}, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("register: append movements: %w", err)
	}
	return nil
}

func (t *pgTx) ListMovements(ctx context.Context, scope ledger.Scope) ([]ledger.Movement, error) {
	return listMovements(ctx, t.tx, scope)
}

func (t *pgTx) UpdateRegister(ctx context.Context, reg Register, expectedVersion int64) error {
	id, err := pgUUID(reg.ID)
	if err != nil {
		return err
	}
	var frozen []byte
	if reg.FrozenTotals != nil {
		frozen, err = json.Marshal(reg.FrozenTotals)
		if err != nil {
			return err
		}
	}
	tag, err := t.tx.Exec(ctx, `UPDATE cash_registers
		SET status = $1, closed_at = $2, closed_by = $3, frozen_totals = $4, version = $5, updated_at = NOW()
		WHERE id = $6 AND version = $7`,
		string(reg.Status), reg.ClosedAt, nullableText(reg.ClosedBy), frozen, reg.Version, id, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listMovements(ctx context.Context, q querier, scope ledger.Scope) ([]ledger.Movement, error) {
	rows, err := q.Query(ctx, `SELECT `+movementColumns+` FROM cash_movements
		WHERE unit_id = $1 AND business_date = $2 ORDER BY occurred_at, id`, scope.UnitID, pgDate(scope.Date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Movement, 0)
	for rows.Next() {
		var (
			m         ledger.Movement
			id        pgtype.UUID
			date      pgtype.Date
			direction string
			origin    string
			method    string
			linked    pgtype.Text
		)
		if err := rows.Scan(&id, &m.UnitID, &date, &direction, &origin, &m.Amount, &method,
			&m.Description, &linked, &m.InstallmentCount, &m.OccurredAt); err != nil {
			return nil, err
		}
		m.ID = uuidString(id)
		m.Date = ledger.Day(date.Time)
		m.Direction = ledger.Direction(direction)
		m.Origin = ledger.Origin(origin)
		m.PaymentMethod = ledger.PaymentMethod(method)
		m.LinkedEntityRef = linked.String
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanRegister(row pgx.Row) (Register, error) {
	var (
		reg      Register
		id       pgtype.UUID
		date     pgtype.Date
		status   string
		openedAt pgtype.Timestamptz
		closedAt pgtype.Timestamptz
		closedBy pgtype.Text
		frozen   []byte
	)
	err := row.Scan(&id, &reg.UnitID, &date, &status, &reg.OpeningBalance, &reg.Operator,
		&openedAt, &closedAt, &closedBy, &frozen, &reg.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Register{}, ErrRegisterNotFound
		}
		return Register{}, err
	}
	reg.ID = uuidString(id)
	reg.Date = ledger.Day(date.Time)
	reg.Status = Status(status)
	reg.OpenedAt = timeToPointer(openedAt)
	reg.ClosedAt = timeToPointer(closedAt)
	reg.ClosedBy = closedBy.String
	if len(frozen) > 0 {
		var totals ledger.Summary
		if err := json.Unmarshal(frozen, &totals); err != nil {
			return Register{}, fmt.Errorf("register: decode frozen totals: %w", err)
		}
		reg.FrozenTotals = &totals
	}
	return reg, nil
}

func pgDate(t time.Time) pgtype.Date {
	return pgtype.Date{Time: ledger.Day(t), Valid: !t.IsZero()}
}

func timeToPointer(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}

func nullableText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func uuidString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return uuid.UUID(id.Bytes).String()
}

func pgUUID(s string) (pgtype.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("invalid uuid %q: %w", s, err)
	}
	return pgtype.UUID{Bytes: id, Valid: true}, nil
}
