package trial

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hearwell/clinic-backend/internal/apperr"
	"github.com/hearwell/clinic-backend/internal/billing"
	"github.com/hearwell/clinic-backend/internal/inventory"
	"github.com/hearwell/clinic-backend/internal/patient"
	redisclient "github.com/hearwell/clinic-backend/internal/redis"
)

var (
	ErrSerialRequired     = fmt.Errorf("serial number is required: %w", apperr.ErrInvalid)
	ErrUnknownDecision    = fmt.Errorf("unknown trial decision: %w", apperr.ErrInvalid)
	ErrBookedItemRequired = fmt.Errorf("a device must be selected to book: %w", apperr.ErrInvalid)
	ErrVisitClosed        = fmt.Errorf("visit is closed to further workflow actions: %w", apperr.ErrConflict)
	ErrNotTrialDevice     = fmt.Errorf("device is not flagged for trial use: %w", apperr.ErrConflict)
	ErrTrialCompleted     = fmt.Errorf("trial already has a final decision: %w", apperr.ErrConflict)
	ErrNotAwaitingStock   = fmt.Errorf("trial is not awaiting stock: %w", apperr.ErrConflict)
	ErrSerialUnavailable  = fmt.Errorf("serial not available in stock for this device: %w", apperr.ErrNotFound)
)

type Service struct {
	store  Store
	locker redisclient.Locker
	log    zerolog.Logger

	defaultTrialDays    int
	defaultFollowupDays int

	now func() time.Time
}

func NewService(store Store, locker redisclient.Locker, log zerolog.Logger, trialDays, followupDays int) *Service {
	return &Service{
		store:               store,
		locker:              locker,
		log:                 log,
		defaultTrialDays:    trialDays,
		defaultFollowupDays: followupDays,
		now:                 time.Now,
	}
}

type StartTrialParams struct {
	VisitID      uuid.UUID
	SerialNumber string

	EarFitted        *string
	DomeType         *string
	GainSettings     *string
	SRTBefore        *string
	SDSBefore        *string
	UCLBefore        *string
	PatientResponse  *string
	CounsellingNotes *string

	TrialStartDate *time.Time
	TrialEndDate   *time.Time
	FollowupDate   *time.Time

	// Cost, when positive, bills a refundable trial deposit. DiscountPercent
	// is applied against the bill total as it stands after the deposit line.
	Cost            decimal.Decimal
	DiscountPercent decimal.Decimal

	CreatedBy *uuid.UUID
}

// StartTrial reserves one serialized device for a visit and opens the trial.
// The serial moves In Stock -> On Trial and the item quantity is recomputed
// in the same transaction, so no two trials can ever hold the same unit.
func (s *Service) StartTrial(ctx context.Context, p StartTrialParams) (*Trial, error) {
	if p.SerialNumber == "" {
		return nil, ErrSerialRequired
	}

	var created *Trial
	err := s.locker.WithSerialLock(ctx, p.SerialNumber, func(ctx context.Context) error {
		return s.store.InTx(ctx, func(tx TxStore) error {
			visit, err := tx.GetVisit(ctx, p.VisitID)
			if err != nil {
				return err
			}
			if visit.Status.Terminal() {
				return ErrVisitClosed
			}

			serial, err := tx.GetSerialForUpdate(ctx, p.SerialNumber)
			if err != nil {
				return err
			}
			item, err := tx.GetItemForUpdate(ctx, serial.ItemID)
			if err != nil {
				return err
			}
			if !item.UseInTrial {
				return ErrNotTrialDevice
			}

			if err := serial.Reserve(); err != nil {
				return err
			}
			if err := tx.SetSerialStatus(ctx, serial.ID, serial.Status); err != nil {
				return err
			}
			if _, err := tx.RecomputeItemQuantity(ctx, item.ID); err != nil {
				return err
			}

			start := dateOnly(s.now())
			if p.TrialStartDate != nil {
				start = dateOnly(*p.TrialStartDate)
			}
			end := start.AddDate(0, 0, s.defaultTrialDays)
			if p.TrialEndDate != nil {
				end = dateOnly(*p.TrialEndDate)
			}
			followup := end.AddDate(0, 0, 1)
			if p.FollowupDate != nil {
				followup = dateOnly(*p.FollowupDate)
			}

			t := &Trial{
				ID:               uuid.New(),
				ClinicID:         visit.ClinicID,
				VisitID:          visit.ID,
				PatientID:        visit.PatientID,
				DeviceItemID:     item.ID,
				SerialNumber:     serial.SerialNumber,
				EarFitted:        p.EarFitted,
				DomeType:         p.DomeType,
				GainSettings:     p.GainSettings,
				SRTBefore:        p.SRTBefore,
				SDSBefore:        p.SDSBefore,
				UCLBefore:        p.UCLBefore,
				PatientResponse:  p.PatientResponse,
				CounsellingNotes: p.CounsellingNotes,
				TrialStartDate:   start,
				TrialEndDate:     &end,
				FollowupDate:     &followup,
				Decision:         DecisionTrialActive,
				CreatedBy:        p.CreatedBy,
			}
			if err := tx.CreateTrial(ctx, t); err != nil {
				return fmt.Errorf("create trial: %w", err)
			}

			note := "Trial started with " + item.ProductName
			if err := tx.SetVisitStatus(ctx, visit.ID, patient.StatusTrialActive, note); err != nil {
				return err
			}

			if p.Cost.IsPositive() {
				if err := s.billTrialDeposit(ctx, tx, t, item, p); err != nil {
					return err
				}
			}

			created = t
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, EventTrialStarted, &created.ID, map[string]any{
		"visit_id":      created.VisitID,
		"serial_number": created.SerialNumber,
	})
	return created, nil
}

func (s *Service) billTrialDeposit(ctx context.Context, tx TxStore, t *Trial, item *inventory.Item, p StartTrialParams) error {
	ledger := tx.Bills()
	bill, err := ledger.GetOrCreateBill(ctx, t.VisitID, t.ClinicID, p.CreatedBy)
	if err != nil {
		return fmt.Errorf("get or create bill: %w", err)
	}

	line := &billing.BillItem{
		BillID:      bill.ID,
		ItemType:    billing.LineTrial,
		Description: fmt.Sprintf("Trial deposit: %s %s %s", item.Brand, item.ProductName, item.ModelType),
		Cost:        p.Cost,
		Quantity:    1,
	}
	if err := ledger.AppendItem(ctx, line); err != nil {
		return err
	}

	updated, err := ledger.Recalculate(ctx, bill.ID)
	if err != nil {
		return err
	}

	if p.DiscountPercent.IsPositive() {
		discount := updated.TotalAmount.Mul(p.DiscountPercent).Div(decimal.NewFromInt(100))
		if err := ledger.SetDiscount(ctx, bill.ID, discount); err != nil {
			return err
		}
		if _, err := ledger.Recalculate(ctx, bill.ID); err != nil {
			return err
		}
	}
	return nil
}

type CompleteTrialParams struct {
	TrialID  uuid.UUID
	Decision Decision // BOOK, FOLLOWUP or DECLINE

	Notes           *string
	PatientResponse *string

	// BOOK only. BookedSerialNumber may name the trialed unit itself, any
	// other in-stock serial of the booked item, or be empty for a
	// non-serialized item.
	BookedItemID       *uuid.UUID
	BookedSerialNumber *string

	// FOLLOWUP only; zero means the configured default.
	FollowupDays int

	ActorID *uuid.UUID
}

// CompleteTrial records the patient's decision. BOOK either allocates stock
// and sells it, or parks the trial as awaiting stock when none is available.
// FOLLOWUP extends the trial window. DECLINE closes the trial and releases
// the reserved serial back to stock. BOOK_ALLOCATED and DECLINE are terminal;
// any further completion call is rejected.
func (s *Service) CompleteTrial(ctx context.Context, p CompleteTrialParams) (*Trial, error) {
	switch p.Decision {
	case DecisionBook, DecisionFollowup, DecisionDecline:
	default:
		return nil, ErrUnknownDecision
	}
	if p.Decision == DecisionBook && p.BookedItemID == nil {
		return nil, ErrBookedItemRequired
	}

	run := func(ctx context.Context) error {
		return s.store.InTx(ctx, func(tx TxStore) error {
			t, err := tx.GetTrialForUpdate(ctx, p.TrialID)
			if err != nil {
				return err
			}
			if t.Decision.Terminal() {
				return ErrTrialCompleted
			}

			t.ReturnNotes = p.Notes
			if p.PatientResponse != nil {
				t.PatientResponse = p.PatientResponse
			}

			switch p.Decision {
			case DecisionBook:
				if err := s.completeBook(ctx, tx, t, p); err != nil {
					return err
				}
			case DecisionFollowup:
				s.completeFollowup(t, p.FollowupDays)
				note := "Trial extended for follow up"
				if err := tx.SetVisitStatus(ctx, t.VisitID, patient.StatusTrialActive, note); err != nil {
					return err
				}
			case DecisionDecline:
				if err := s.completeDecline(ctx, tx, t); err != nil {
					return err
				}
			}

			return tx.UpdateTrial(ctx, t)
		})
	}

	var err error
	if p.Decision == DecisionBook && p.BookedSerialNumber != nil {
		err = s.locker.WithSerialLock(ctx, *p.BookedSerialNumber, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return nil, err
	}

	event := EventTrialCompleted
	if p.Decision == DecisionFollowup {
		event = EventTrialExtended
	}
	s.logEvent(ctx, event, &p.TrialID, map[string]any{"decision": p.Decision})

	return s.store.GetTrialByID(ctx, p.TrialID)
}

func (s *Service) completeBook(ctx context.Context, tx TxStore, t *Trial, p CompleteTrialParams) error {
	item, err := tx.GetItemForUpdate(ctx, *p.BookedItemID)
	if err != nil {
		return err
	}

	now := s.now()
	t.BookedItemID = &item.ID
	t.TrialCompletedAt = &now

	if item.StockType == inventory.StockSerialized {
		if p.BookedSerialNumber == nil {
			// No unit chosen up front: park until a serial arrives.
			return s.parkAwaitingStock(ctx, tx, t, item)
		}

		serial, err := tx.GetSerialForUpdate(ctx, *p.BookedSerialNumber)
		if err != nil {
			return err
		}
		// The trialed unit itself may be sold straight from On Trial; any
		// other unit must be sitting in stock.
		ownUnit := serial.Status == inventory.SerialOnTrial && serial.SerialNumber == t.SerialNumber
		if serial.ItemID != item.ID || (serial.Status != inventory.SerialInStock && !ownUnit) {
			return ErrSerialUnavailable
		}
		return s.sellToTrial(ctx, tx, t, item, serial, p.ActorID)
	}

	if item.QuantityInStock <= 0 {
		return s.parkAwaitingStock(ctx, tx, t, item)
	}
	if err := item.AdjustQuantity(-1); err != nil {
		return err
	}
	if err := tx.SetItemQuantity(ctx, item.ID, item.QuantityInStock); err != nil {
		return err
	}
	if err := s.recordSale(ctx, tx, t, item, nil, p.ActorID); err != nil {
		return err
	}

	t.Decision = DecisionAllocated
	return tx.SetVisitStatus(ctx, t.VisitID, patient.StatusBookAllocated,
		"Device allocated: "+item.ProductName)
}

// parkAwaitingStock records the booking intent without touching stock or the
// bill. The sale happens later through AllocateSerial.
func (s *Service) parkAwaitingStock(ctx context.Context, tx TxStore, t *Trial, item *inventory.Item) error {
	t.Decision = DecisionAwaitingStock
	return tx.SetVisitStatus(ctx, t.VisitID, patient.StatusBookAwaitingStock,
		"Booked, awaiting stock: "+item.ProductName)
}

// sellToTrial moves the chosen serial to Sold and finishes the booking.
func (s *Service) sellToTrial(ctx context.Context, tx TxStore, t *Trial, item *inventory.Item, serial *inventory.Serial, actor *uuid.UUID) error {
	if err := serial.Sell(); err != nil {
		return err
	}
	if err := tx.SetSerialStatus(ctx, serial.ID, serial.Status); err != nil {
		return err
	}
	if _, err := tx.RecomputeItemQuantity(ctx, item.ID); err != nil {
		return err
	}
	if err := s.recordSale(ctx, tx, t, item, serial, actor); err != nil {
		return err
	}

	t.BookedSerialID = &serial.ID
	t.BookedSerialNumber = &serial.SerialNumber
	t.Decision = DecisionAllocated
	return tx.SetVisitStatus(ctx, t.VisitID, patient.StatusBookAllocated,
		"Device allocated: "+item.ProductName+" ("+serial.SerialNumber+")")
}

// recordSale writes the purchase audit row and the Purchase bill line.
func (s *Service) recordSale(ctx context.Context, tx TxStore, t *Trial, item *inventory.Item, serial *inventory.Serial, actor *uuid.UUID) error {
	p := &Purchase{
		ClinicID:   t.ClinicID,
		PatientID:  t.PatientID,
		VisitID:    t.VisitID,
		ItemID:     item.ID,
		Quantity:   1,
		UnitPrice:  item.UnitPrice,
		TotalPrice: item.UnitPrice,
	}
	if serial != nil {
		p.SerialID = &serial.ID
	}
	if err := tx.InsertPurchase(ctx, p); err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}

	ledger := tx.Bills()
	bill, err := ledger.GetOrCreateBill(ctx, t.VisitID, t.ClinicID, actor)
	if err != nil {
		return fmt.Errorf("get or create bill: %w", err)
	}

	desc := fmt.Sprintf("%s %s %s", item.Brand, item.ProductName, item.ModelType)
	if serial != nil {
		desc += " (SN " + serial.SerialNumber + ")"
	}
	line := &billing.BillItem{
		BillID:      bill.ID,
		ItemType:    billing.LinePurchase,
		Description: desc,
		Cost:        item.UnitPrice,
		Quantity:    1,
	}
	if err := ledger.AppendItem(ctx, line); err != nil {
		return err
	}
	_, err = ledger.Recalculate(ctx, bill.ID)
	return err
}

func (s *Service) completeFollowup(t *Trial, days int) {
	if days <= 0 {
		days = s.defaultFollowupDays
	}

	now := s.now()
	end := dateOnly(now).AddDate(0, 0, days)
	followup := end.AddDate(0, 0, 1)

	t.ExtendedTrial = true
	t.ExtendedAt = &now
	t.TrialEndDate = &end
	t.FollowupDate = &followup
	t.Decision = DecisionTrialActive
	t.TrialCompletedAt = nil
}

func (s *Service) completeDecline(ctx context.Context, tx TxStore, t *Trial) error {
	serial, err := tx.GetSerialForUpdate(ctx, t.SerialNumber)
	if err != nil {
		return err
	}
	if serial.Status == inventory.SerialOnTrial {
		if err := serial.Release(); err != nil {
			return err
		}
		if err := tx.SetSerialStatus(ctx, serial.ID, serial.Status); err != nil {
			return err
		}
		if _, err := tx.RecomputeItemQuantity(ctx, serial.ItemID); err != nil {
			return err
		}
	}

	now := s.now()
	t.Decision = DecisionDecline
	t.TrialCompletedAt = &now
	return tx.SetVisitStatus(ctx, t.VisitID, patient.StatusTrialNoDevice,
		"Trial completed, device declined")
}

// AllocateSerial resolves a BOOK_AWAITING_STOCK trial once a unit of the
// booked item is back in stock.
func (s *Service) AllocateSerial(ctx context.Context, trialID uuid.UUID, serialNumber string, actor *uuid.UUID) (*Trial, error) {
	if serialNumber == "" {
		return nil, ErrSerialRequired
	}

	err := s.locker.WithSerialLock(ctx, serialNumber, func(ctx context.Context) error {
		return s.store.InTx(ctx, func(tx TxStore) error {
			t, err := tx.GetTrialForUpdate(ctx, trialID)
			if err != nil {
				return err
			}
			if t.Decision != DecisionAwaitingStock {
				return ErrNotAwaitingStock
			}
			if t.BookedItemID == nil {
				return fmt.Errorf("trial %s awaiting stock has no booked item", t.ID)
			}

			item, err := tx.GetItemForUpdate(ctx, *t.BookedItemID)
			if err != nil {
				return err
			}
			serial, err := tx.GetSerialForUpdate(ctx, serialNumber)
			if err != nil {
				return err
			}
			if serial.ItemID != item.ID || serial.Status != inventory.SerialInStock {
				return ErrSerialUnavailable
			}

			if err := s.sellToTrial(ctx, tx, t, item, serial, actor); err != nil {
				return err
			}
			return tx.UpdateTrial(ctx, t)
		})
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, EventSerialAllocated, &trialID, map[string]any{"serial_number": serialNumber})
	return s.store.GetTrialByID(ctx, trialID)
}

// ReturnDevice takes a trialed unit back into stock and stamps its condition
// on the trial. When the trial has no final decision yet, the trial period
// closes today and the visit moves to Decision Pending.
func (s *Service) ReturnDevice(ctx context.Context, serialNumber string, condition *string) (*Trial, error) {
	if serialNumber == "" {
		return nil, ErrSerialRequired
	}

	var returned *Trial
	err := s.locker.WithSerialLock(ctx, serialNumber, func(ctx context.Context) error {
		return s.store.InTx(ctx, func(tx TxStore) error {
			serial, err := tx.GetSerialForUpdate(ctx, serialNumber)
			if err != nil {
				return err
			}
			if err := serial.Release(); err != nil {
				return err
			}
			if err := tx.SetSerialStatus(ctx, serial.ID, serial.Status); err != nil {
				return err
			}
			if _, err := tx.RecomputeItemQuantity(ctx, serial.ItemID); err != nil {
				return err
			}

			t, err := tx.GetLatestTrialBySerialForUpdate(ctx, serialNumber)
			if err != nil {
				return err
			}

			t.DeviceConditionOnReturn = condition
			if !t.Decision.Terminal() {
				today := dateOnly(s.now())
				t.TrialEndDate = &today
				note := "Device returned, decision pending"
				if err := tx.SetVisitStatus(ctx, t.VisitID, patient.StatusDecisionPending, note); err != nil {
					return err
				}
			}
			if err := tx.UpdateTrial(ctx, t); err != nil {
				return err
			}

			returned = t
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, EventDeviceReturned, &returned.ID, map[string]any{"serial_number": serialNumber})
	return returned, nil
}

// MarkDueFollowups sweeps trials whose dates have come due and moves their
// visits to Follow Up. Each visit moves with a compare-and-set so a visit
// already advanced by staff is left alone. Returns how many visits moved.
func (s *Service) MarkDueFollowups(ctx context.Context, now time.Time) (int, error) {
	day := dateOnly(now)
	moved := 0

	ending, err := s.store.ListEndingOn(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("list trials ending: %w", err)
	}
	for _, t := range ending {
		ok, err := s.store.UpdateVisitStatusIf(ctx, t.VisitID,
			patient.StatusTrialActive, patient.StatusFollowUp, "Trial period ended, follow up due")
		if err != nil {
			return moved, err
		}
		if ok {
			moved++
		}
	}

	due, err := s.store.ListFollowupOn(ctx, day)
	if err != nil {
		return moved, fmt.Errorf("list trials due for followup: %w", err)
	}
	for _, t := range due {
		ok, err := s.store.UpdateVisitStatusIf(ctx, t.VisitID,
			patient.StatusDecisionPending, patient.StatusFollowUp, "Follow up date reached")
		if err != nil {
			return moved, err
		}
		if ok {
			moved++
		}
	}

	return moved, nil
}

func (s *Service) GetTrial(ctx context.Context, id uuid.UUID) (*Trial, error) {
	return s.store.GetTrialByID(ctx, id)
}

func (s *Service) GetActiveTrialByVisit(ctx context.Context, visitID uuid.UUID) (*Trial, error) {
	return s.store.GetActiveTrialByVisit(ctx, visitID)
}

func (s *Service) ListTrials(ctx context.Context, f ListFilter) ([]Detail, int, error) {
	f.Limit, f.Offset = clampPage(f.Limit, f.Offset)
	return s.store.ListTrials(ctx, f)
}

func (s *Service) ListAwaitingStock(ctx context.Context, clinicID *uuid.UUID, limit, offset int) ([]Detail, int, error) {
	limit, offset = clampPage(limit, offset)
	return s.store.ListAwaitingStock(ctx, clinicID, limit, offset)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func (s *Service) logEvent(ctx context.Context, eventType string, trialID *uuid.UUID, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = nil
	}
	if err := s.store.InsertEvent(ctx, &Event{EventType: eventType, TrialID: trialID, Payload: data}); err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("failed to record trial event")
	}
}
