package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Querier covers both a pool and an open transaction, so the ledger can run
// standalone or inside another package's transaction (the trial workflow
// appends bill lines in the same transaction that moves inventory).
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgLedger implements the bill mutations over any Querier.
type PgLedger struct {
	q Querier
}

func NewPgLedger(q Querier) *PgLedger {
	return &PgLedger{q: q}
}

const billColumns = `
	id, clinic_id, visit_id, bill_number, total_amount, discount_amount, final_amount,
	payment_status, notes, created_by, created_at, updated_at`

func scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	var paymentStatus string

	err := row.Scan(
		&b.ID,
		&b.ClinicID,
		&b.VisitID,
		&b.BillNumber,
		&b.TotalAmount,
		&b.DiscountAmount,
		&b.FinalAmount,
		&paymentStatus,
		&b.Notes,
		&b.CreatedBy,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBillNotFound
		}
		return nil, err
	}

	b.PaymentStatus = PaymentStatus(paymentStatus)
	return &b, nil
}

func (l *PgLedger) GetBillByVisit(ctx context.Context, visitID uuid.UUID) (*Bill, error) {
	row := l.q.QueryRow(ctx, `SELECT `+billColumns+` FROM bills WHERE visit_id = $1`, visitID)
	return scanBill(row)
}

// GetOrCreateBill returns the visit's bill, creating it on first use. The
// bill number derives from the insertion sequence so receipts stay short and
// human readable.
func (l *PgLedger) GetOrCreateBill(ctx context.Context, visitID uuid.UUID, clinicID, createdBy *uuid.UUID) (*Bill, error) {
	bill, err := l.GetBillByVisit(ctx, visitID)
	if err == nil {
		return bill, nil
	}
	if !errors.Is(err, ErrBillNotFound) {
		return nil, err
	}

	id := uuid.New()
	row := l.q.QueryRow(ctx, `
		INSERT INTO bills (id, clinic_id, visit_id, bill_number, total_amount,
			discount_amount, final_amount, payment_status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, 'HW-' || to_char(nextval('bill_number_seq'), 'FM000000'),
			0, 0, 0, $4, $5, now(), now())
		ON CONFLICT (visit_id) DO UPDATE SET updated_at = now()
		RETURNING `+billColumns,
		id, clinicID, visitID, string(PaymentPending), createdBy)
	return scanBill(row)
}

func (l *PgLedger) AppendItem(ctx context.Context, item *BillItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	_, err := l.q.Exec(ctx, `
		INSERT INTO bill_items (id, bill_id, item_type, test_type_id, description, cost, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`, item.ID, item.BillID, string(item.ItemType), item.TestTypeID, item.Description,
		item.Cost, item.Quantity)
	if err != nil {
		return fmt.Errorf("append bill item: %w", err)
	}
	return nil
}

func (l *PgLedger) SetDiscount(ctx context.Context, billID uuid.UUID, amount decimal.Decimal) error {
	tag, err := l.q.Exec(ctx, `
		UPDATE bills SET discount_amount = $2, updated_at = now() WHERE id = $1
	`, billID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBillNotFound
	}
	return nil
}

// Recalculate rewrites the bill totals from its lines: total is the sum of
// cost x quantity, final is total minus discount.
func (l *PgLedger) Recalculate(ctx context.Context, billID uuid.UUID) (*Bill, error) {
	row := l.q.QueryRow(ctx, `
		UPDATE bills
		SET total_amount = COALESCE((
			SELECT sum(cost * quantity) FROM bill_items WHERE bill_id = $1
		), 0),
		    final_amount = COALESCE((
			SELECT sum(cost * quantity) FROM bill_items WHERE bill_id = $1
		), 0) - discount_amount,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+billColumns, billID)
	return scanBill(row)
}

func (l *PgLedger) ListItems(ctx context.Context, billID uuid.UUID) ([]BillItem, error) {
	rows, err := l.q.Query(ctx, `
		SELECT id, bill_id, item_type, test_type_id, description, cost, quantity, created_at
		FROM bill_items
		WHERE bill_id = $1
		ORDER BY created_at
	`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BillItem
	for rows.Next() {
		var it BillItem
		var itemType string

		err := rows.Scan(&it.ID, &it.BillID, &itemType, &it.TestTypeID,
			&it.Description, &it.Cost, &it.Quantity, &it.CreatedAt)
		if err != nil {
			return nil, err
		}

		it.ItemType = LineType(itemType)
		result = append(result, it)
	}

	return result, rows.Err()
}

// PgRepository is the pool-backed repository used outside the trial
// transaction path.
type PgRepository struct {
	*PgLedger
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{
		PgLedger: NewPgLedger(pool),
		pool:     pool,
	}
}

func (r *PgRepository) GetTestTypeByName(ctx context.Context, name string) (*TestType, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, code, cost, created_at
		FROM test_types
		WHERE lower(name) = lower($1)
	`, name)

	var t TestType
	err := row.Scan(&t.ID, &t.Name, &t.Code, &t.Cost, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestTypeNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *PgRepository) ListTestTypes(ctx context.Context) ([]TestType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, code, cost, created_at
		FROM test_types
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TestType
	for rows.Next() {
		var t TestType
		if err := rows.Scan(&t.ID, &t.Name, &t.Code, &t.Cost, &t.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, t)
	}

	return result, rows.Err()
}
