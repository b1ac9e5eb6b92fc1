package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// querier covers both pool and transaction connections.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const itemColumns = `
	id, clinic_id, master_item_id, product_name, brand, model_type, category, sku,
	stock_type, unit_price, quantity_in_stock, reorder_level, use_in_trial,
	description, created_at, updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var i Item
	var stockType string

	err := row.Scan(
		&i.ID,
		&i.ClinicID,
		&i.MasterItemID,
		&i.ProductName,
		&i.Brand,
		&i.ModelType,
		&i.Category,
		&i.SKU,
		&stockType,
		&i.UnitPrice,
		&i.QuantityInStock,
		&i.ReorderLevel,
		&i.UseInTrial,
		&i.Description,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	i.StockType = StockType(stockType)
	return &i, nil
}

func scanSerial(row pgx.Row) (*Serial, error) {
	var s Serial
	var status string

	err := row.Scan(
		&s.ID,
		&s.ItemID,
		&s.SerialNumber,
		&status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSerialNotFound
		}
		return nil, err
	}

	s.Status = SerialStatus(status)
	return &s, nil
}

func (r *PgRepository) InTx(ctx context.Context, fn func(tx TxRepository) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&pgTxRepository{q: tx})
	})
}

func (r *PgRepository) GetItemByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id = $1`, id)
	return scanItem(row)
}

func (r *PgRepository) ListItems(ctx context.Context, f ItemFilter) ([]Item, int, error) {
	const where = `
		WHERE ($1::uuid IS NULL OR clinic_id = $1)
		  AND ($2::text IS NULL OR category = $2)
		  AND ($3::bool IS NULL OR use_in_trial = $3)
		  AND ($4 = '' OR product_name ILIKE '%' || $4 || '%'
		       OR brand ILIKE '%' || $4 || '%' OR model_type ILIKE '%' || $4 || '%')`

	var total int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM inventory_items`+where,
		f.ClinicID, f.Category, f.UseInTrial, f.Search).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+itemColumns+`
		FROM inventory_items`+where+`
		ORDER BY product_name
		LIMIT $5 OFFSET $6
	`, f.ClinicID, f.Category, f.UseInTrial, f.Search, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Item
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *i)
	}

	return result, total, rows.Err()
}

func insertItem(ctx context.Context, q querier, item *Item) error {
	_, err := q.Exec(ctx, `
		INSERT INTO inventory_items (id, clinic_id, master_item_id, product_name, brand,
			model_type, category, sku, stock_type, unit_price, quantity_in_stock,
			reorder_level, use_in_trial, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
	`, item.ID, item.ClinicID, item.MasterItemID, item.ProductName, item.Brand,
		item.ModelType, item.Category, item.SKU, string(item.StockType), item.UnitPrice,
		item.QuantityInStock, item.ReorderLevel, item.UseInTrial, item.Description)
	return err
}

func (r *PgRepository) CreateItem(ctx context.Context, item *Item) error {
	return insertItem(ctx, r.pool, item)
}

func (r *PgRepository) UpdateItem(ctx context.Context, item *Item) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE inventory_items
		SET product_name = $2, brand = $3, model_type = $4, category = $5, sku = $6,
		    unit_price = $7, reorder_level = $8, use_in_trial = $9, description = $10,
		    updated_at = now()
		WHERE id = $1
	`, item.ID, item.ProductName, item.Brand, item.ModelType, item.Category, item.SKU,
		item.UnitPrice, item.ReorderLevel, item.UseInTrial, item.Description)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *PgRepository) GetSerialByNumber(ctx context.Context, serialNumber string) (*Serial, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, item_id, serial_number, status, created_at, updated_at
		FROM inventory_serials
		WHERE serial_number = $1
	`, serialNumber)
	return scanSerial(row)
}

func (r *PgRepository) ListSerialsByItem(ctx context.Context, itemID uuid.UUID) ([]Serial, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, item_id, serial_number, status, created_at, updated_at
		FROM inventory_serials
		WHERE item_id = $1
		ORDER BY serial_number
	`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Serial
	for rows.Next() {
		s, err := scanSerial(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	return result, rows.Err()
}

func (r *PgRepository) ListTrialDeviceSerials(ctx context.Context, clinicID *uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.serial_number
		FROM inventory_serials s
		JOIN inventory_items i ON i.id = s.item_id
		WHERE i.use_in_trial = true
		  AND s.status = $1
		  AND ($2::uuid IS NULL OR i.clinic_id = $2)
		ORDER BY s.serial_number
	`, string(SerialInStock), clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var sn string
		if err := rows.Scan(&sn); err != nil {
			return nil, err
		}
		result = append(result, sn)
	}

	return result, rows.Err()
}

// pgTxRepository runs against an open transaction.
type pgTxRepository struct {
	q pgx.Tx
}

func (r *pgTxRepository) GetItemForUpdate(ctx context.Context, id uuid.UUID) (*Item, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM inventory_items
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanItem(row)
}

// FindItemByIdentity resolves an item by its product identity through the
// open transaction, so rows created earlier in the same transaction are
// visible. The row lock serializes concurrent transfers into the same item.
func (r *pgTxRepository) FindItemByIdentity(ctx context.Context, clinicID *uuid.UUID, productName, brand, modelType, category string) (*Item, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM inventory_items
		WHERE ($1::uuid IS NULL OR clinic_id = $1)
		  AND product_name = $2 AND brand = $3 AND model_type = $4 AND category = $5
		LIMIT 1
		FOR UPDATE
	`, clinicID, productName, brand, modelType, category)
	return scanItem(row)
}

func (r *pgTxRepository) SetItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE inventory_items
		SET quantity_in_stock = $2, updated_at = now()
		WHERE id = $1
	`, itemID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// RecomputeItemQuantity rewrites quantity_in_stock from the count of In Stock
// serials, which is the only legal way to change a serialized item's count.
func (r *pgTxRepository) RecomputeItemQuantity(ctx context.Context, itemID uuid.UUID) (int, error) {
	var count int
	err := r.q.QueryRow(ctx, `
		UPDATE inventory_items
		SET quantity_in_stock = (
			SELECT count(*) FROM inventory_serials
			WHERE item_id = $1 AND status = $2
		), updated_at = now()
		WHERE id = $1
		RETURNING quantity_in_stock
	`, itemID, string(SerialInStock)).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrItemNotFound
		}
		return 0, err
	}
	return count, nil
}

func (r *pgTxRepository) GetSerialForUpdate(ctx context.Context, serialNumber string) (*Serial, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, item_id, serial_number, status, created_at, updated_at
		FROM inventory_serials
		WHERE serial_number = $1
		FOR UPDATE
	`, serialNumber)
	return scanSerial(row)
}

func (r *pgTxRepository) CreateSerial(ctx context.Context, s *Serial) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO inventory_serials (id, item_id, serial_number, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`, s.ID, s.ItemID, s.SerialNumber, string(s.Status))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSerial
		}
		return err
	}
	return nil
}

func (r *pgTxRepository) UpdateSerialStatus(ctx context.Context, serialID uuid.UUID, status SerialStatus) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE inventory_serials
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, serialID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSerialNotFound
	}
	return nil
}

func (r *pgTxRepository) ReassignSerials(ctx context.Context, fromItemID, toItemID uuid.UUID, serialNumbers []string) (int, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE inventory_serials
		SET item_id = $2, updated_at = now()
		WHERE item_id = $1
		  AND serial_number = ANY($3)
		  AND status = $4
	`, fromItemID, toItemID, serialNumbers, string(SerialInStock))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *pgTxRepository) CreateItem(ctx context.Context, item *Item) error {
	return insertItem(ctx, r.q, item)
}

func (r *pgTxRepository) InsertTransfer(ctx context.Context, t *Transfer) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO inventory_transfers (id, item_name, category, brand, model, from_clinic_id,
			to_clinic_id, quantity, serial_numbers, transferred_by, notes, transferred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
	`, t.ID, t.ItemName, t.Category, t.Brand, t.Model, t.FromClinicID,
		t.ToClinicID, t.Quantity, t.SerialNumbers, t.TransferredBy, t.Notes)
	return err
}
