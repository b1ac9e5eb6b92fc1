package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hearwell/clinic-backend/internal/apperr"
)

// memRepo is an in-memory Repository. InTx snapshots state and restores it
// when the callback fails, mirroring transaction rollback.
type memRepo struct {
	items     map[uuid.UUID]*Item
	serials   map[string]*Serial
	transfers []*Transfer
}

func newMemRepo() *memRepo {
	return &memRepo{
		items:   make(map[uuid.UUID]*Item),
		serials: make(map[string]*Serial),
	}
}

func (r *memRepo) snapshot() *memRepo {
	snap := newMemRepo()
	for id, item := range r.items {
		cp := *item
		snap.items[id] = &cp
	}
	for sn, s := range r.serials {
		cp := *s
		snap.serials[sn] = &cp
	}
	snap.transfers = append([]*Transfer(nil), r.transfers...)
	return snap
}

func (r *memRepo) restore(snap *memRepo) {
	r.items = snap.items
	r.serials = snap.serials
	r.transfers = snap.transfers
}

func (r *memRepo) InTx(ctx context.Context, fn func(tx TxRepository) error) error {
	snap := r.snapshot()
	if err := fn(&memTx{r}); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

func (r *memRepo) GetItemByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *memRepo) ListItems(ctx context.Context, f ItemFilter) ([]Item, int, error) {
	var out []Item
	for _, item := range r.items {
		out = append(out, *item)
	}
	return out, len(out), nil
}

func (r *memRepo) CreateItem(ctx context.Context, item *Item) error {
	cp := *item
	r.items[item.ID] = &cp
	return nil
}

func (r *memRepo) UpdateItem(ctx context.Context, item *Item) error {
	if _, ok := r.items[item.ID]; !ok {
		return ErrItemNotFound
	}
	cp := *item
	r.items[item.ID] = &cp
	return nil
}

func (r *memRepo) FindItemByIdentity(ctx context.Context, clinicID *uuid.UUID, productName, brand, modelType, category string) (*Item, error) {
	for _, item := range r.items {
		if item.ProductName != productName || item.Brand != brand ||
			item.ModelType != modelType || item.Category != category {
			continue
		}
		if clinicID == nil || item.ClinicID == nil {
			if clinicID == nil && item.ClinicID == nil {
				cp := *item
				return &cp, nil
			}
			continue
		}
		if *item.ClinicID == *clinicID {
			cp := *item
			return &cp, nil
		}
	}
	return nil, ErrItemNotFound
}

func (r *memRepo) GetSerialByNumber(ctx context.Context, serialNumber string) (*Serial, error) {
	s, ok := r.serials[serialNumber]
	if !ok {
		return nil, ErrSerialNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memRepo) ListSerialsByItem(ctx context.Context, itemID uuid.UUID) ([]Serial, error) {
	var out []Serial
	for _, s := range r.serials {
		if s.ItemID == itemID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *memRepo) ListTrialDeviceSerials(ctx context.Context, clinicID *uuid.UUID) ([]string, error) {
	var out []string
	for sn, s := range r.serials {
		item := r.items[s.ItemID]
		if item != nil && item.UseInTrial && s.Status == SerialInStock {
			out = append(out, sn)
		}
	}
	return out, nil
}

type memTx struct {
	r *memRepo
}

func (t *memTx) GetItemForUpdate(ctx context.Context, id uuid.UUID) (*Item, error) {
	return t.r.GetItemByID(ctx, id)
}

func (t *memTx) FindItemByIdentity(ctx context.Context, clinicID *uuid.UUID, productName, brand, modelType, category string) (*Item, error) {
	return t.r.FindItemByIdentity(ctx, clinicID, productName, brand, modelType, category)
}

func (t *memTx) SetItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	item, ok := t.r.items[itemID]
	if !ok {
		return ErrItemNotFound
	}
	item.QuantityInStock = quantity
	return nil
}

func (t *memTx) RecomputeItemQuantity(ctx context.Context, itemID uuid.UUID) (int, error) {
	item, ok := t.r.items[itemID]
	if !ok {
		return 0, ErrItemNotFound
	}
	count := 0
	for _, s := range t.r.serials {
		if s.ItemID == itemID && s.Status == SerialInStock {
			count++
		}
	}
	item.QuantityInStock = count
	return count, nil
}

func (t *memTx) GetSerialForUpdate(ctx context.Context, serialNumber string) (*Serial, error) {
	return t.r.GetSerialByNumber(ctx, serialNumber)
}

func (t *memTx) CreateSerial(ctx context.Context, s *Serial) error {
	if _, exists := t.r.serials[s.SerialNumber]; exists {
		return ErrDuplicateSerial
	}
	cp := *s
	t.r.serials[s.SerialNumber] = &cp
	return nil
}

func (t *memTx) UpdateSerialStatus(ctx context.Context, serialID uuid.UUID, status SerialStatus) error {
	for _, s := range t.r.serials {
		if s.ID == serialID {
			s.Status = status
			return nil
		}
	}
	return ErrSerialNotFound
}

func (t *memTx) ReassignSerials(ctx context.Context, fromItemID, toItemID uuid.UUID, serialNumbers []string) (int, error) {
	moved := 0
	for _, sn := range serialNumbers {
		s, ok := t.r.serials[sn]
		if !ok || s.ItemID != fromItemID || s.Status != SerialInStock {
			continue
		}
		s.ItemID = toItemID
		moved++
	}
	return moved, nil
}

func (t *memTx) CreateItem(ctx context.Context, item *Item) error {
	return t.r.CreateItem(ctx, item)
}

func (t *memTx) InsertTransfer(ctx context.Context, tr *Transfer) error {
	cp := *tr
	t.r.transfers = append(t.r.transfers, &cp)
	return nil
}

func addItem(r *memRepo, clinicID uuid.UUID, name string, st StockType, qty int) *Item {
	cid := clinicID
	item := &Item{
		ID:              uuid.New(),
		ClinicID:        &cid,
		ProductName:     name,
		Brand:           "Signia",
		ModelType:       "RIC",
		Category:        "Hearing Aids",
		StockType:       st,
		UnitPrice:       decimal.NewFromInt(95000),
		QuantityInStock: qty,
		UseInTrial:      st == StockSerialized,
	}
	r.items[item.ID] = item
	return item
}

func addSerial(r *memRepo, itemID uuid.UUID, sn string, status SerialStatus) *Serial {
	s := &Serial{ID: uuid.New(), ItemID: itemID, SerialNumber: sn, Status: status}
	r.serials[sn] = s
	return s
}

func TestSerialTransitions(t *testing.T) {
	s := &Serial{Status: SerialInStock}

	if err := s.Reserve(); err != nil {
		t.Fatalf("Reserve from In Stock: %v", err)
	}
	if s.Status != SerialOnTrial {
		t.Fatalf("status = %q, want On Trial", s.Status)
	}
	if err := s.Reserve(); !errors.Is(err, ErrSerialNotInStock) {
		t.Fatalf("double Reserve error = %v, want ErrSerialNotInStock", err)
	}
	if !errors.Is(ErrSerialNotInStock, apperr.ErrConflict) {
		t.Fatal("ErrSerialNotInStock should be a conflict")
	}

	if err := s.Release(); err != nil {
		t.Fatalf("Release from On Trial: %v", err)
	}
	if s.Status != SerialInStock {
		t.Fatalf("status = %q, want In Stock", s.Status)
	}
	if err := s.Release(); !errors.Is(err, ErrSerialNotOnTrial) {
		t.Fatalf("Release from In Stock error = %v, want ErrSerialNotOnTrial", err)
	}

	if err := s.Sell(); err != nil {
		t.Fatalf("Sell from In Stock: %v", err)
	}
	if err := s.Sell(); !errors.Is(err, ErrSerialNotSellable) {
		t.Fatalf("Sell from Sold error = %v, want ErrSerialNotSellable", err)
	}
}

func TestAdjustQuantityRejectsNegative(t *testing.T) {
	item := &Item{QuantityInStock: 2}

	if err := item.AdjustQuantity(-2); err != nil {
		t.Fatalf("AdjustQuantity(-2): %v", err)
	}
	if item.QuantityInStock != 0 {
		t.Fatalf("quantity = %d, want 0", item.QuantityInStock)
	}

	err := item.AdjustQuantity(-1)
	if !errors.Is(err, ErrQuantityNegative) {
		t.Fatalf("error = %v, want ErrQuantityNegative", err)
	}
	if !errors.Is(err, apperr.ErrInsufficientStock) {
		t.Fatal("ErrQuantityNegative should be insufficient stock")
	}
	if item.QuantityInStock != 0 {
		t.Fatalf("quantity changed after rejected adjustment: %d", item.QuantityInStock)
	}
}

func TestCreateItemSerializedIgnoresQuantity(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	item, err := svc.CreateItem(context.Background(), CreateItemParams{
		ProductName: "Pure Charge&Go 7IX",
		Brand:       "Signia",
		StockType:   StockSerialized,
		Quantity:    15,
	})
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if item.QuantityInStock != 0 {
		t.Fatalf("serialized item quantity = %d, want 0", item.QuantityInStock)
	}

	_, err = svc.CreateItem(context.Background(), CreateItemParams{
		ProductName: "Mystery",
		StockType:   StockType("bulk"),
	})
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("unknown stock type error = %v, want validation error", err)
	}
}

func TestAddSerialsSkipsDuplicates(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	clinicID := uuid.New()
	item := addItem(repo, clinicID, "Intent 4", StockSerialized, 0)
	addSerial(repo, item.ID, "SN-EXISTING", SerialInStock)

	result, err := svc.AddSerials(context.Background(), item.ID,
		[]string{"SN-NEW-1", "SN-EXISTING", " SN-NEW-2 ", ""})
	if err != nil {
		t.Fatalf("AddSerials: %v", err)
	}

	if result.Created != 2 {
		t.Fatalf("created = %d, want 2", result.Created)
	}
	if len(result.Rejected) != 1 || result.Rejected[0] != "SN-EXISTING" {
		t.Fatalf("rejected = %v, want [SN-EXISTING]", result.Rejected)
	}
	if result.Quantity != 3 {
		t.Fatalf("quantity after recompute = %d, want 3", result.Quantity)
	}
	if repo.items[item.ID].QuantityInStock != 3 {
		t.Fatalf("stored quantity = %d, want 3", repo.items[item.ID].QuantityInStock)
	}
	if _, ok := repo.serials["SN-NEW-2"]; !ok {
		t.Fatal("trimmed serial SN-NEW-2 was not created")
	}
}

func TestAddSerialsRejectsNonSerialized(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	item := addItem(repo, uuid.New(), "Battery Size 312", StockNonSerialized, 100)

	_, err := svc.AddSerials(context.Background(), item.ID, []string{"SN-1"})
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("error = %v, want validation error", err)
	}

	_, err = svc.AddSerials(context.Background(), item.ID, nil)
	if !errors.Is(err, ErrSerialsRequired) {
		t.Fatalf("empty list error = %v, want ErrSerialsRequired", err)
	}
}

func TestTransferSerialized(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	fromClinic := uuid.New()
	toClinic := uuid.New()
	source := addItem(repo, fromClinic, "Lumity L50", StockSerialized, 2)
	addSerial(repo, source.ID, "SN-A", SerialInStock)
	addSerial(repo, source.ID, "SN-B", SerialInStock)
	repo.items[source.ID].QuantityInStock = 2

	actor := uuid.New()
	moved, err := svc.Transfer(context.Background(), TransferParams{
		ToClinicID:    toClinic,
		TransferredBy: &actor,
		Products: []TransferProduct{
			{SourceItemID: source.ID, SerialNumbers: []string{"SN-A"}},
		},
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if moved != 1 {
		t.Fatalf("moved = %d, want 1", moved)
	}

	// Destination item created under the target clinic, quantity recomputed on both sides.
	dest, err := repo.FindItemByIdentity(context.Background(), &toClinic,
		source.ProductName, source.Brand, source.ModelType, source.Category)
	if err != nil {
		t.Fatalf("destination item not created: %v", err)
	}
	if dest.QuantityInStock != 1 {
		t.Fatalf("destination quantity = %d, want 1", dest.QuantityInStock)
	}
	if repo.items[source.ID].QuantityInStock != 1 {
		t.Fatalf("source quantity = %d, want 1", repo.items[source.ID].QuantityInStock)
	}
	if repo.serials["SN-A"].ItemID != dest.ID {
		t.Fatal("SN-A was not reassigned to the destination item")
	}
	if len(repo.transfers) != 1 {
		t.Fatalf("transfer rows = %d, want 1", len(repo.transfers))
	}
	if repo.transfers[0].Quantity != 1 || len(repo.transfers[0].SerialNumbers) != 1 {
		t.Fatalf("transfer row = %+v, want quantity 1 with one serial", repo.transfers[0])
	}
}

func TestTransferSameIdentityProductsShareDestination(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	toClinic := uuid.New()
	source := addItem(repo, uuid.New(), "Lumity L50", StockSerialized, 2)
	addSerial(repo, source.ID, "SN-A", SerialInStock)
	addSerial(repo, source.ID, "SN-B", SerialInStock)

	// Two product lines resolving to the same brand-new destination identity.
	// The second lookup must see the item the first line created inside the
	// still-open transaction.
	moved, err := svc.Transfer(context.Background(), TransferParams{
		ToClinicID: toClinic,
		Products: []TransferProduct{
			{SourceItemID: source.ID, SerialNumbers: []string{"SN-A"}},
			{SourceItemID: source.ID, SerialNumbers: []string{"SN-B"}},
		},
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if moved != 2 {
		t.Fatalf("moved = %d, want 2", moved)
	}

	var dests []*Item
	for _, item := range repo.items {
		if item.ClinicID != nil && *item.ClinicID == toClinic &&
			item.ProductName == source.ProductName && item.Brand == source.Brand &&
			item.ModelType == source.ModelType && item.Category == source.Category {
			dests = append(dests, item)
		}
	}
	if len(dests) != 1 {
		t.Fatalf("destination items with the same identity = %d, want 1", len(dests))
	}
	if dests[0].QuantityInStock != 2 {
		t.Fatalf("destination quantity = %d, want 2", dests[0].QuantityInStock)
	}
	if repo.serials["SN-A"].ItemID != dests[0].ID || repo.serials["SN-B"].ItemID != dests[0].ID {
		t.Fatal("both serials should land on the single destination item")
	}
}

func TestTransferSerializedUnavailableRollsBack(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	source := addItem(repo, uuid.New(), "Lumity L50", StockSerialized, 1)
	addSerial(repo, source.ID, "SN-A", SerialInStock)
	addSerial(repo, source.ID, "SN-TRIAL", SerialOnTrial)

	_, err := svc.Transfer(context.Background(), TransferParams{
		ToClinicID: uuid.New(),
		Products: []TransferProduct{
			{SourceItemID: source.ID, SerialNumbers: []string{"SN-A", "SN-TRIAL"}},
		},
	})
	if !errors.Is(err, ErrSerialsUnavailable) {
		t.Fatalf("error = %v, want ErrSerialsUnavailable", err)
	}

	// Nothing moved: the in-stock serial stays put and no transfer row exists.
	if repo.serials["SN-A"].ItemID != source.ID {
		t.Fatal("SN-A moved despite failed transfer")
	}
	if len(repo.transfers) != 0 {
		t.Fatalf("transfer rows = %d, want 0", len(repo.transfers))
	}
}

func TestTransferNonSerialized(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	toClinic := uuid.New()
	source := addItem(repo, uuid.New(), "Open Dome 8mm", StockNonSerialized, 10)

	moved, err := svc.Transfer(context.Background(), TransferParams{
		ToClinicID: toClinic,
		Products: []TransferProduct{
			{SourceItemID: source.ID, Quantity: 4},
		},
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if moved != 1 {
		t.Fatalf("moved = %d, want 1", moved)
	}

	if repo.items[source.ID].QuantityInStock != 6 {
		t.Fatalf("source quantity = %d, want 6", repo.items[source.ID].QuantityInStock)
	}
	dest, err := repo.FindItemByIdentity(context.Background(), &toClinic,
		source.ProductName, source.Brand, source.ModelType, source.Category)
	if err != nil {
		t.Fatalf("destination item not created: %v", err)
	}
	if dest.QuantityInStock != 4 {
		t.Fatalf("destination quantity = %d, want 4", dest.QuantityInStock)
	}
}

func TestTransferNonSerializedInsufficientStock(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	source := addItem(repo, uuid.New(), "Wax Guard Pack", StockNonSerialized, 2)

	_, err := svc.Transfer(context.Background(), TransferParams{
		ToClinicID: uuid.New(),
		Products: []TransferProduct{
			{SourceItemID: source.ID, Quantity: 5},
		},
	})
	if !errors.Is(err, apperr.ErrInsufficientStock) {
		t.Fatalf("error = %v, want insufficient stock", err)
	}
	if repo.items[source.ID].QuantityInStock != 2 {
		t.Fatalf("source quantity = %d after rollback, want 2", repo.items[source.ID].QuantityInStock)
	}
}

func TestTransferSameClinicRejected(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	clinicID := uuid.New()
	source := addItem(repo, clinicID, "Intent 4", StockSerialized, 0)

	_, err := svc.Transfer(context.Background(), TransferParams{
		ToClinicID: clinicID,
		Products: []TransferProduct{
			{SourceItemID: source.ID, SerialNumbers: []string{"SN-X"}},
		},
	})
	if !errors.Is(err, ErrSameClinic) {
		t.Fatalf("error = %v, want ErrSameClinic", err)
	}
}

func TestMarkSerialCondition(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	item := addItem(repo, uuid.New(), "Intent 4", StockSerialized, 1)
	addSerial(repo, item.ID, "SN-REPAIR", SerialInStock)
	repo.items[item.ID].QuantityInStock = 1

	serial, err := svc.MarkSerialCondition(context.Background(), "SN-REPAIR", SerialService)
	if err != nil {
		t.Fatalf("MarkSerialCondition(Service): %v", err)
	}
	if serial.Status != SerialService {
		t.Fatalf("status = %q, want Service", serial.Status)
	}
	if repo.items[item.ID].QuantityInStock != 0 {
		t.Fatalf("quantity = %d, want 0 while under service", repo.items[item.ID].QuantityInStock)
	}

	serial, err = svc.MarkSerialCondition(context.Background(), "SN-REPAIR", SerialInStock)
	if err != nil {
		t.Fatalf("MarkSerialCondition(In Stock): %v", err)
	}
	if serial.Status != SerialInStock {
		t.Fatalf("status = %q, want In Stock", serial.Status)
	}
	if repo.items[item.ID].QuantityInStock != 1 {
		t.Fatalf("quantity = %d after restock, want 1", repo.items[item.ID].QuantityInStock)
	}

	// Restock is only valid from Service.
	if _, err := svc.MarkSerialCondition(context.Background(), "SN-REPAIR", SerialInStock); !errors.Is(err, ErrSerialNotInService) {
		t.Fatalf("restock from In Stock error = %v, want ErrSerialNotInService", err)
	}

	// Sold units cannot be sent to service.
	addSerial(repo, item.ID, "SN-SOLD", SerialSold)
	if _, err := svc.MarkSerialCondition(context.Background(), "SN-SOLD", SerialService); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("service from Sold error = %v, want conflict", err)
	}

	if _, err := svc.MarkSerialCondition(context.Background(), "SN-REPAIR", SerialStatus("Broken")); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("unknown status error = %v, want validation error", err)
	}
}

func TestProductInfoBySerial(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	item := addItem(repo, uuid.New(), "Pure Charge&Go 7IX", StockSerialized, 1)
	addSerial(repo, item.ID, "SN-LOOKUP", SerialInStock)

	gotItem, gotSerial, err := svc.ProductInfoBySerial(context.Background(), "SN-LOOKUP")
	if err != nil {
		t.Fatalf("ProductInfoBySerial: %v", err)
	}
	if gotItem.ID != item.ID {
		t.Fatalf("item = %s, want %s", gotItem.ID, item.ID)
	}
	if gotSerial.Status != SerialInStock {
		t.Fatalf("serial status = %q, want In Stock", gotSerial.Status)
	}

	_, _, err = svc.ProductInfoBySerial(context.Background(), "SN-MISSING")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing serial error = %v, want not found", err)
	}
}
