package trial

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hearwell/clinic-backend/internal/billing"
	"github.com/hearwell/clinic-backend/internal/inventory"
	"github.com/hearwell/clinic-backend/internal/patient"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const trialColumns = `
	id, clinic_id, visit_id, patient_id, device_item_id, serial_number,
	ear_fitted, dome_type, gain_settings, srt_before, sds_before, ucl_before,
	patient_response, counselling_notes,
	trial_start_date, trial_end_date, followup_date, extended_trial, extended_at,
	trial_decision, trial_completed_at, return_notes, device_condition_on_return,
	booked_item_id, booked_serial_id, booked_serial_number,
	created_by, created_at, updated_at`

func scanTrial(row pgx.Row) (*Trial, error) {
	var t Trial
	var decision string

	err := row.Scan(
		&t.ID,
		&t.ClinicID,
		&t.VisitID,
		&t.PatientID,
		&t.DeviceItemID,
		&t.SerialNumber,
		&t.EarFitted,
		&t.DomeType,
		&t.GainSettings,
		&t.SRTBefore,
		&t.SDSBefore,
		&t.UCLBefore,
		&t.PatientResponse,
		&t.CounsellingNotes,
		&t.TrialStartDate,
		&t.TrialEndDate,
		&t.FollowupDate,
		&t.ExtendedTrial,
		&t.ExtendedAt,
		&decision,
		&t.TrialCompletedAt,
		&t.ReturnNotes,
		&t.DeviceConditionOnReturn,
		&t.BookedItemID,
		&t.BookedSerialID,
		&t.BookedSerialNumber,
		&t.CreatedBy,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTrialNotFound
		}
		return nil, err
	}

	t.Decision = Decision(decision)
	return &t, nil
}

func (s *PgStore) InTx(ctx context.Context, fn func(tx TxStore) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTxStore{tx: tx, bills: billing.NewPgLedger(tx)})
	})
}

func (s *PgStore) GetTrialByID(ctx context.Context, id uuid.UUID) (*Trial, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+trialColumns+` FROM trials WHERE id = $1`, id)
	return scanTrial(row)
}

func (s *PgStore) GetActiveTrialByVisit(ctx context.Context, visitID uuid.UUID) (*Trial, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+trialColumns+`
		FROM trials
		WHERE visit_id = $1 AND trial_decision = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, visitID, string(DecisionTrialActive))
	return scanTrial(row)
}

const detailJoin = `
	FROM trials t
	JOIN patients p ON p.id = t.patient_id
	JOIN inventory_items i ON i.id = t.device_item_id`

func (s *PgStore) listDetails(ctx context.Context, where string, args []any, limit, offset int) ([]Detail, int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `SELECT count(*)`+detailJoin+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s, p.name, i.product_name, i.brand, i.model_type
		%s%s
		ORDER BY t.created_at DESC
		LIMIT $%d OFFSET $%d`,
		prefixColumns(trialColumns, "t."), detailJoin, where, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []Detail
	for rows.Next() {
		var d Detail
		var decision string

		err := rows.Scan(
			&d.ID, &d.ClinicID, &d.VisitID, &d.PatientID, &d.DeviceItemID, &d.SerialNumber,
			&d.EarFitted, &d.DomeType, &d.GainSettings, &d.SRTBefore, &d.SDSBefore, &d.UCLBefore,
			&d.PatientResponse, &d.CounsellingNotes,
			&d.TrialStartDate, &d.TrialEndDate, &d.FollowupDate, &d.ExtendedTrial, &d.ExtendedAt,
			&decision, &d.TrialCompletedAt, &d.ReturnNotes, &d.DeviceConditionOnReturn,
			&d.BookedItemID, &d.BookedSerialID, &d.BookedSerialNumber,
			&d.CreatedBy, &d.CreatedAt, &d.UpdatedAt,
			&d.PatientName, &d.ProductName, &d.Brand, &d.ModelType,
		)
		if err != nil {
			return nil, 0, err
		}

		d.Decision = Decision(decision)
		result = append(result, d)
	}

	return result, total, rows.Err()
}

// prefixColumns qualifies a bare column list with a table alias for joins.
func prefixColumns(columns, prefix string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = prefix + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}

func (s *PgStore) ListTrials(ctx context.Context, f ListFilter) ([]Detail, int, error) {
	var decision *string
	if f.Decision != nil {
		d := string(*f.Decision)
		decision = &d
	}

	where := `
		WHERE ($1::uuid IS NULL OR t.clinic_id = $1)
		  AND ($2::text IS NULL OR t.trial_decision = $2)
		  AND ($3 = '' OR p.name ILIKE '%' || $3 || '%' OR t.serial_number ILIKE '%' || $3 || '%')`
	return s.listDetails(ctx, where, []any{f.ClinicID, decision, f.Search}, f.Limit, f.Offset)
}

func (s *PgStore) ListAwaitingStock(ctx context.Context, clinicID *uuid.UUID, limit, offset int) ([]Detail, int, error) {
	where := `
		WHERE ($1::uuid IS NULL OR t.clinic_id = $1)
		  AND t.trial_decision = $2`
	return s.listDetails(ctx, where, []any{clinicID, string(DecisionAwaitingStock)}, limit, offset)
}

func (s *PgStore) ListEndingOn(ctx context.Context, day time.Time) ([]Trial, error) {
	return s.listByDate(ctx, `
		SELECT `+trialColumns+`
		FROM trials
		WHERE trial_decision = $1 AND trial_end_date <= $2
	`, string(DecisionTrialActive), day)
}

func (s *PgStore) ListFollowupOn(ctx context.Context, day time.Time) ([]Trial, error) {
	return s.listByDate(ctx, `
		SELECT `+trialColumns+`
		FROM trials
		WHERE trial_decision = $1 AND followup_date <= $2
	`, string(DecisionTrialActive), day)
}

func (s *PgStore) listByDate(ctx context.Context, sql string, args ...any) ([]Trial, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Trial
	for rows.Next() {
		t, err := scanTrial(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}

	return result, rows.Err()
}

func (s *PgStore) UpdateVisitStatusIf(ctx context.Context, visitID uuid.UUID, from, to patient.VisitStatus, note string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE visits
		SET status = $3, status_note = $4, updated_at = now()
		WHERE id = $1 AND status = $2
	`, visitID, string(from), string(to), note)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PgStore) InsertEvent(ctx context.Context, ev *Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trial_events (event_type, trial_id, payload, created_at)
		VALUES ($1, $2, $3, now())
	`, ev.EventType, ev.TrialID, ev.Payload)
	return err
}

type pgTxStore struct {
	tx    pgx.Tx
	bills *billing.PgLedger
}

func (t *pgTxStore) Bills() billing.Ledger { return t.bills }

func (t *pgTxStore) GetTrialForUpdate(ctx context.Context, id uuid.UUID) (*Trial, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+trialColumns+` FROM trials WHERE id = $1 FOR UPDATE`, id)
	return scanTrial(row)
}

func (t *pgTxStore) GetLatestTrialBySerialForUpdate(ctx context.Context, serialNumber string) (*Trial, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+trialColumns+`
		FROM trials
		WHERE serial_number = $1
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, serialNumber)
	return scanTrial(row)
}

func (t *pgTxStore) CreateTrial(ctx context.Context, tr *Trial) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO trials (id, clinic_id, visit_id, patient_id, device_item_id, serial_number,
			ear_fitted, dome_type, gain_settings, srt_before, sds_before, ucl_before,
			patient_response, counselling_notes,
			trial_start_date, trial_end_date, followup_date, extended_trial, extended_at,
			trial_decision, trial_completed_at, return_notes, device_condition_on_return,
			booked_item_id, booked_serial_id, booked_serial_number,
			created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, now(), now())
	`, tr.ID, tr.ClinicID, tr.VisitID, tr.PatientID, tr.DeviceItemID, tr.SerialNumber,
		tr.EarFitted, tr.DomeType, tr.GainSettings, tr.SRTBefore, tr.SDSBefore, tr.UCLBefore,
		tr.PatientResponse, tr.CounsellingNotes,
		tr.TrialStartDate, tr.TrialEndDate, tr.FollowupDate, tr.ExtendedTrial, tr.ExtendedAt,
		string(tr.Decision), tr.TrialCompletedAt, tr.ReturnNotes, tr.DeviceConditionOnReturn,
		tr.BookedItemID, tr.BookedSerialID, tr.BookedSerialNumber, tr.CreatedBy)
	return err
}

func (t *pgTxStore) UpdateTrial(ctx context.Context, tr *Trial) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE trials
		SET trial_end_date = $2, followup_date = $3, extended_trial = $4, extended_at = $5,
		    trial_decision = $6, trial_completed_at = $7, return_notes = $8,
		    device_condition_on_return = $9, booked_item_id = $10, booked_serial_id = $11,
		    booked_serial_number = $12, patient_response = $13, counselling_notes = $14,
		    updated_at = now()
		WHERE id = $1
	`, tr.ID, tr.TrialEndDate, tr.FollowupDate, tr.ExtendedTrial, tr.ExtendedAt,
		string(tr.Decision), tr.TrialCompletedAt, tr.ReturnNotes,
		tr.DeviceConditionOnReturn, tr.BookedItemID, tr.BookedSerialID,
		tr.BookedSerialNumber, tr.PatientResponse, tr.CounsellingNotes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTrialNotFound
	}
	return nil
}

func (t *pgTxStore) GetVisit(ctx context.Context, id uuid.UUID) (*patient.Visit, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, clinic_id, patient_id, visit_type, status, status_note
		FROM visits
		WHERE id = $1
	`, id)

	var v patient.Visit
	var status string
	err := row.Scan(&v.ID, &v.ClinicID, &v.PatientID, &v.VisitType, &status, &v.StatusNote)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, patient.ErrVisitNotFound
		}
		return nil, err
	}

	v.Status = patient.VisitStatus(status)
	return &v, nil
}

func (t *pgTxStore) SetVisitStatus(ctx context.Context, visitID uuid.UUID, status patient.VisitStatus, note string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE visits SET status = $2, status_note = $3, updated_at = now() WHERE id = $1
	`, visitID, string(status), note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return patient.ErrVisitNotFound
	}
	return nil
}

func (t *pgTxStore) GetItemForUpdate(ctx context.Context, itemID uuid.UUID) (*inventory.Item, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, clinic_id, product_name, brand, model_type, category, stock_type,
		       unit_price, quantity_in_stock, use_in_trial
		FROM inventory_items
		WHERE id = $1
		FOR UPDATE
	`, itemID)

	var it inventory.Item
	var stockType string
	err := row.Scan(&it.ID, &it.ClinicID, &it.ProductName, &it.Brand, &it.ModelType,
		&it.Category, &stockType, &it.UnitPrice, &it.QuantityInStock, &it.UseInTrial)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrItemNotFound
		}
		return nil, err
	}

	it.StockType = inventory.StockType(stockType)
	return &it, nil
}

func (t *pgTxStore) SetItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE inventory_items SET quantity_in_stock = $2, updated_at = now() WHERE id = $1
	`, itemID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return inventory.ErrItemNotFound
	}
	return nil
}

func (t *pgTxStore) RecomputeItemQuantity(ctx context.Context, itemID uuid.UUID) (int, error) {
	var quantity int
	err := t.tx.QueryRow(ctx, `
		UPDATE inventory_items
		SET quantity_in_stock = (
			SELECT count(*) FROM inventory_serials
			WHERE item_id = $1 AND status = $2
		), updated_at = now()
		WHERE id = $1
		RETURNING quantity_in_stock
	`, itemID, string(inventory.SerialInStock)).Scan(&quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, inventory.ErrItemNotFound
		}
		return 0, err
	}
	return quantity, nil
}

func (t *pgTxStore) GetSerialForUpdate(ctx context.Context, serialNumber string) (*inventory.Serial, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, item_id, serial_number, status, created_at, updated_at
		FROM inventory_serials
		WHERE serial_number = $1
		FOR UPDATE
	`, serialNumber)

	var s inventory.Serial
	var status string
	err := row.Scan(&s.ID, &s.ItemID, &s.SerialNumber, &status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrSerialNotFound
		}
		return nil, err
	}

	s.Status = inventory.SerialStatus(status)
	return &s, nil
}

func (t *pgTxStore) SetSerialStatus(ctx context.Context, serialID uuid.UUID, status inventory.SerialStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE inventory_serials SET status = $2, updated_at = now() WHERE id = $1
	`, serialID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return inventory.ErrSerialNotFound
	}
	return nil
}

func (t *pgTxStore) InsertPurchase(ctx context.Context, p *Purchase) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO patient_purchases (id, clinic_id, patient_id, visit_id, item_id, serial_id,
			quantity, unit_price, total_price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
	`, p.ID, p.ClinicID, p.PatientID, p.VisitID, p.ItemID, p.SerialID,
		p.Quantity, p.UnitPrice, p.TotalPrice)
	return err
}
