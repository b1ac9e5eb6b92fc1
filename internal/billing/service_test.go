package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hearwell/clinic-backend/internal/apperr"
)

type memBilling struct {
	bills     map[uuid.UUID]*Bill // keyed by visit ID
	items     map[uuid.UUID][]BillItem
	testTypes map[string]*TestType
	nextBill  int
}

func newMemBilling() *memBilling {
	return &memBilling{
		bills:     make(map[uuid.UUID]*Bill),
		items:     make(map[uuid.UUID][]BillItem),
		testTypes: make(map[string]*TestType),
	}
}

func (m *memBilling) addTestType(name, code string, cost int64) {
	m.testTypes[name] = &TestType{
		ID:   uuid.New(),
		Name: name,
		Code: code,
		Cost: decimal.NewFromInt(cost),
	}
}

func (m *memBilling) billByID(id uuid.UUID) *Bill {
	for _, b := range m.bills {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func (m *memBilling) GetBillByVisit(ctx context.Context, visitID uuid.UUID) (*Bill, error) {
	b, ok := m.bills[visitID]
	if !ok {
		return nil, ErrBillNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memBilling) GetOrCreateBill(ctx context.Context, visitID uuid.UUID, clinicID, createdBy *uuid.UUID) (*Bill, error) {
	if b, ok := m.bills[visitID]; ok {
		cp := *b
		return &cp, nil
	}
	m.nextBill++
	b := &Bill{
		ID:            uuid.New(),
		ClinicID:      clinicID,
		VisitID:       visitID,
		BillNumber:    "HW-000001",
		PaymentStatus: PaymentPending,
		CreatedBy:     createdBy,
	}
	m.bills[visitID] = b
	cp := *b
	return &cp, nil
}

func (m *memBilling) AppendItem(ctx context.Context, item *BillItem) error {
	cp := *item
	cp.ID = uuid.New()
	m.items[item.BillID] = append(m.items[item.BillID], cp)
	return nil
}

func (m *memBilling) SetDiscount(ctx context.Context, billID uuid.UUID, amount decimal.Decimal) error {
	b := m.billByID(billID)
	if b == nil {
		return ErrBillNotFound
	}
	b.DiscountAmount = amount
	return nil
}

func (m *memBilling) Recalculate(ctx context.Context, billID uuid.UUID) (*Bill, error) {
	b := m.billByID(billID)
	if b == nil {
		return nil, ErrBillNotFound
	}
	total := decimal.Zero
	for _, it := range m.items[billID] {
		total = total.Add(it.Total())
	}
	b.TotalAmount = total
	b.FinalAmount = total.Sub(b.DiscountAmount)
	cp := *b
	return &cp, nil
}

func (m *memBilling) ListItems(ctx context.Context, billID uuid.UUID) ([]BillItem, error) {
	return append([]BillItem(nil), m.items[billID]...), nil
}

func (m *memBilling) GetTestTypeByName(ctx context.Context, name string) (*TestType, error) {
	tt, ok := m.testTypes[name]
	if !ok {
		return nil, ErrTestTypeNotFound
	}
	cp := *tt
	return &cp, nil
}

func (m *memBilling) ListTestTypes(ctx context.Context) ([]TestType, error) {
	var out []TestType
	for _, tt := range m.testTypes {
		out = append(out, *tt)
	}
	return out, nil
}

func TestBillTestsPerformed(t *testing.T) {
	repo := newMemBilling()
	repo.addTestType("Pure Tone Audiometry", "PTA", 800)
	repo.addTestType("Impedance Audiometry", "IMP", 600)
	svc := NewService(repo)

	visitID := uuid.New()
	bill, skipped, err := svc.BillTestsPerformed(context.Background(), visitID, nil, nil,
		[]string{"Pure Tone Audiometry", "Impedance Audiometry", "Tuning Fork"})
	if err != nil {
		t.Fatalf("BillTestsPerformed: %v", err)
	}

	if len(skipped) != 1 || skipped[0] != "Tuning Fork" {
		t.Fatalf("skipped = %v, want [Tuning Fork]", skipped)
	}
	if !bill.TotalAmount.Equal(decimal.NewFromInt(1400)) {
		t.Fatalf("total = %s, want 1400", bill.TotalAmount)
	}
	if !bill.FinalAmount.Equal(decimal.NewFromInt(1400)) {
		t.Fatalf("final = %s, want 1400", bill.FinalAmount)
	}

	items, _ := repo.ListItems(context.Background(), bill.ID)
	if len(items) != 2 {
		t.Fatalf("bill lines = %d, want 2", len(items))
	}
	for _, it := range items {
		if it.ItemType != LineTest {
			t.Fatalf("line type = %q, want Test", it.ItemType)
		}
		if it.TestTypeID == nil {
			t.Fatal("test line missing test type reference")
		}
	}

	// Billing the same visit again reuses the bill rather than opening a second one.
	again, _, err := svc.BillTestsPerformed(context.Background(), visitID, nil, nil,
		[]string{"Pure Tone Audiometry"})
	if err != nil {
		t.Fatalf("second BillTestsPerformed: %v", err)
	}
	if again.ID != bill.ID {
		t.Fatal("second billing created a new bill for the same visit")
	}
	if !again.TotalAmount.Equal(decimal.NewFromInt(2200)) {
		t.Fatalf("total after second billing = %s, want 2200", again.TotalAmount)
	}
}

func TestBillTestsPerformedEmptyList(t *testing.T) {
	repo := newMemBilling()
	svc := NewService(repo)

	bill, skipped, err := svc.BillTestsPerformed(context.Background(), uuid.New(), nil, nil, nil)
	if err != nil {
		t.Fatalf("BillTestsPerformed: %v", err)
	}
	if bill != nil || skipped != nil {
		t.Fatal("empty test list should be a no-op")
	}
	if len(repo.bills) != 0 {
		t.Fatal("no bill should be created for an empty test list")
	}
}

func TestApplyDiscount(t *testing.T) {
	repo := newMemBilling()
	repo.addTestType("BERA", "BERA", 2500)
	svc := NewService(repo)

	visitID := uuid.New()
	if _, _, err := svc.BillTestsPerformed(context.Background(), visitID, nil, nil, []string{"BERA"}); err != nil {
		t.Fatalf("BillTestsPerformed: %v", err)
	}

	bill, err := svc.ApplyDiscount(context.Background(), visitID, decimal.NewFromInt(500))
	if err != nil {
		t.Fatalf("ApplyDiscount: %v", err)
	}
	if !bill.FinalAmount.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("final = %s, want 2000", bill.FinalAmount)
	}

	_, err = svc.ApplyDiscount(context.Background(), uuid.New(), decimal.NewFromInt(100))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("discount on missing bill error = %v, want not found", err)
	}
}

func TestGetBillDetailSubtotal(t *testing.T) {
	repo := newMemBilling()
	svc := NewService(repo)

	visitID := uuid.New()
	bill, err := repo.GetOrCreateBill(context.Background(), visitID, nil, nil)
	if err != nil {
		t.Fatalf("GetOrCreateBill: %v", err)
	}
	_ = repo.AppendItem(context.Background(), &BillItem{
		BillID: bill.ID, ItemType: LinePurchase,
		Description: "Battery Size 312", Cost: decimal.NewFromInt(250), Quantity: 4,
	})
	if _, err := repo.Recalculate(context.Background(), bill.ID); err != nil {
		t.Fatalf("Recalculate: %v", err)
	}

	detail, err := svc.GetBillDetail(context.Background(), visitID)
	if err != nil {
		t.Fatalf("GetBillDetail: %v", err)
	}
	if !detail.Subtotal().Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("subtotal = %s, want 1000", detail.Subtotal())
	}
	if len(detail.Items) != 1 {
		t.Fatalf("detail lines = %d, want 1", len(detail.Items))
	}
}
