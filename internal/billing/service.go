package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetBillDetail loads a bill with its lines by visit.
func (s *Service) GetBillDetail(ctx context.Context, visitID uuid.UUID) (*BillDetail, error) {
	bill, err := s.repo.GetBillByVisit(ctx, visitID)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListItems(ctx, bill.ID)
	if err != nil {
		return nil, fmt.Errorf("list bill items: %w", err)
	}

	return &BillDetail{Bill: *bill, Items: items}, nil
}

// BillTestsPerformed appends one Test line per performed test that has a
// configured TestType. Tests without a configured type are skipped rather
// than failing the whole billing step; audiologists record free-text test
// names faster than pricing catches up.
func (s *Service) BillTestsPerformed(ctx context.Context, visitID uuid.UUID, clinicID, createdBy *uuid.UUID, testNames []string) (*Bill, []string, error) {
	if len(testNames) == 0 {
		return nil, nil, nil
	}

	bill, err := s.repo.GetOrCreateBill(ctx, visitID, clinicID, createdBy)
	if err != nil {
		return nil, nil, fmt.Errorf("get or create bill: %w", err)
	}

	var skipped []string
	for _, name := range testNames {
		testType, err := s.repo.GetTestTypeByName(ctx, name)
		if err != nil {
			if errors.Is(err, ErrTestTypeNotFound) {
				skipped = append(skipped, name)
				continue
			}
			return nil, nil, fmt.Errorf("lookup test type %q: %w", name, err)
		}

		item := &BillItem{
			BillID:      bill.ID,
			ItemType:    LineTest,
			TestTypeID:  &testType.ID,
			Description: testType.Name,
			Cost:        testType.Cost,
			Quantity:    1,
		}
		if err := s.repo.AppendItem(ctx, item); err != nil {
			return nil, nil, err
		}
	}

	updated, err := s.repo.Recalculate(ctx, bill.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("recalculate bill: %w", err)
	}

	return updated, skipped, nil
}

// ApplyDiscount sets an absolute discount and recalculates.
func (s *Service) ApplyDiscount(ctx context.Context, visitID uuid.UUID, amount decimal.Decimal) (*Bill, error) {
	bill, err := s.repo.GetBillByVisit(ctx, visitID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetDiscount(ctx, bill.ID, amount); err != nil {
		return nil, err
	}

	return s.repo.Recalculate(ctx, bill.ID)
}

func (s *Service) ListTestTypes(ctx context.Context) ([]TestType, error) {
	return s.repo.ListTestTypes(ctx)
}
