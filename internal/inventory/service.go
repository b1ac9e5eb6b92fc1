package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hearwell/clinic-backend/internal/apperr"
)

var (
	ErrSerialsRequired    = fmt.Errorf("serial numbers are required for serialized items: %w", apperr.ErrInvalid)
	ErrQuantityRequired   = fmt.Errorf("quantity must be greater than zero: %w", apperr.ErrInvalid)
	ErrSameClinic         = fmt.Errorf("item is already in the destination clinic: %w", apperr.ErrInvalid)
	ErrSerialsUnavailable = fmt.Errorf("one or more serials are not available in stock: %w", apperr.ErrConflict)
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type CreateItemParams struct {
	ClinicID     *uuid.UUID
	ProductName  string
	Brand        string
	ModelType    string
	Category     string
	SKU          *string
	StockType    StockType
	UnitPrice    decimal.Decimal
	Quantity     int
	ReorderLevel int
	UseInTrial   bool
	Description  *string
}

func (s *Service) CreateItem(ctx context.Context, p CreateItemParams) (*Item, error) {
	if p.StockType != StockSerialized && p.StockType != StockNonSerialized {
		return nil, fmt.Errorf("unknown stock type %q: %w", p.StockType, apperr.ErrInvalid)
	}

	quantity := p.Quantity
	if p.StockType == StockSerialized {
		// Serialized counts always derive from serial rows.
		quantity = 0
	}

	item := &Item{
		ID:              uuid.New(),
		ClinicID:        p.ClinicID,
		ProductName:     strings.TrimSpace(p.ProductName),
		Brand:           strings.TrimSpace(p.Brand),
		ModelType:       strings.TrimSpace(p.ModelType),
		Category:        strings.TrimSpace(p.Category),
		SKU:             p.SKU,
		StockType:       p.StockType,
		UnitPrice:       p.UnitPrice,
		QuantityInStock: quantity,
		ReorderLevel:    p.ReorderLevel,
		UseInTrial:      p.UseInTrial,
		Description:     p.Description,
	}

	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}

	return item, nil
}

type UpdateItemParams struct {
	ProductName  string
	Brand        string
	ModelType    string
	Category     string
	SKU          *string
	UnitPrice    decimal.Decimal
	ReorderLevel int
	UseInTrial   bool
	Description  *string
}

func (s *Service) UpdateItem(ctx context.Context, id uuid.UUID, p UpdateItemParams) (*Item, error) {
	item, err := s.repo.GetItemByID(ctx, id)
	if err != nil {
		return nil, err
	}

	item.ProductName = p.ProductName
	item.Brand = p.Brand
	item.ModelType = p.ModelType
	item.Category = p.Category
	item.SKU = p.SKU
	item.UnitPrice = p.UnitPrice
	item.ReorderLevel = p.ReorderLevel
	item.UseInTrial = p.UseInTrial
	item.Description = p.Description

	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}

	return item, nil
}

func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	return s.repo.GetItemByID(ctx, id)
}

func (s *Service) ListItems(ctx context.Context, f ItemFilter) ([]Item, int, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.ListItems(ctx, f)
}

// AddSerialsResult reports the outcome of a bulk serial registration.
type AddSerialsResult struct {
	Created  int
	Rejected []string // serials skipped because they already exist
	Quantity int      // item quantity after recompute
}

// AddSerials registers physical units for a serialized item. Duplicates are
// skipped and reported rather than failing the whole batch, matching how
// stock intake sheets arrive with the occasional re-listed serial.
func (s *Service) AddSerials(ctx context.Context, itemID uuid.UUID, serialNumbers []string) (*AddSerialsResult, error) {
	if len(serialNumbers) == 0 {
		return nil, ErrSerialsRequired
	}

	item, err := s.repo.GetItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.StockType != StockSerialized {
		return nil, fmt.Errorf("item %q is not serialized: %w", item.ProductName, apperr.ErrInvalid)
	}

	result := &AddSerialsResult{}

	err = s.repo.InTx(ctx, func(tx TxRepository) error {
		if _, err := tx.GetItemForUpdate(ctx, itemID); err != nil {
			return err
		}

		for _, sn := range serialNumbers {
			sn = strings.TrimSpace(sn)
			if sn == "" {
				continue
			}

			serial := &Serial{
				ID:           uuid.New(),
				ItemID:       itemID,
				SerialNumber: sn,
				Status:       SerialInStock,
			}
			if err := tx.CreateSerial(ctx, serial); err != nil {
				if errors.Is(err, ErrDuplicateSerial) {
					result.Rejected = append(result.Rejected, sn)
					continue
				}
				return fmt.Errorf("create serial %s: %w", sn, err)
			}
			result.Created++
		}

		quantity, err := tx.RecomputeItemQuantity(ctx, itemID)
		if err != nil {
			return fmt.Errorf("recompute quantity: %w", err)
		}
		result.Quantity = quantity
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// MarkSerialCondition moves a serial between physical-condition statuses:
// into Service for repair, to Lost, or back In Stock once repaired. Trial
// and sale transitions never go through here; they belong to the trial flow.
func (s *Service) MarkSerialCondition(ctx context.Context, serialNumber string, target SerialStatus) (*Serial, error) {
	var out *Serial

	err := s.repo.InTx(ctx, func(tx TxRepository) error {
		serial, err := tx.GetSerialForUpdate(ctx, serialNumber)
		if err != nil {
			return err
		}

		switch target {
		case SerialService:
			if err := serial.MarkService(); err != nil {
				return err
			}
		case SerialLost:
			serial.MarkLost()
		case SerialInStock:
			if err := serial.Restock(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported serial status %q: %w", target, apperr.ErrInvalid)
		}

		if err := tx.UpdateSerialStatus(ctx, serial.ID, serial.Status); err != nil {
			return err
		}
		if _, err := tx.RecomputeItemQuantity(ctx, serial.ItemID); err != nil {
			return err
		}

		out = serial
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// ProductInfoBySerial resolves the item a serial belongs to.
func (s *Service) ProductInfoBySerial(ctx context.Context, serialNumber string) (*Item, *Serial, error) {
	serial, err := s.repo.GetSerialByNumber(ctx, serialNumber)
	if err != nil {
		return nil, nil, err
	}

	item, err := s.repo.GetItemByID(ctx, serial.ItemID)
	if err != nil {
		return nil, nil, err
	}

	return item, serial, nil
}

// ListTrialDeviceSerials returns serial numbers currently available to start
// a trial with.
func (s *Service) ListTrialDeviceSerials(ctx context.Context, clinicID *uuid.UUID) ([]string, error) {
	return s.repo.ListTrialDeviceSerials(ctx, clinicID)
}

func (s *Service) ListSerials(ctx context.Context, itemID uuid.UUID) ([]Serial, error) {
	if _, err := s.repo.GetItemByID(ctx, itemID); err != nil {
		return nil, err
	}
	return s.repo.ListSerialsByItem(ctx, itemID)
}

type TransferProduct struct {
	SourceItemID  uuid.UUID
	Quantity      int
	SerialNumbers []string
}

type TransferParams struct {
	ToClinicID    uuid.UUID
	TransferredBy *uuid.UUID
	Notes         string
	Products      []TransferProduct
}

// Transfer moves stock between clinics. Serialized units are re-owned to the
// destination item; non-serialized stock moves as a quantity. The destination
// item is looked up by product identity and created when absent.
func (s *Service) Transfer(ctx context.Context, p TransferParams) (int, error) {
	if len(p.Products) == 0 {
		return 0, fmt.Errorf("products list is required: %w", apperr.ErrInvalid)
	}

	transferred := 0

	err := s.repo.InTx(ctx, func(tx TxRepository) error {
		for _, product := range p.Products {
			source, err := tx.GetItemForUpdate(ctx, product.SourceItemID)
			if err != nil {
				return err
			}
			if source.ClinicID != nil && *source.ClinicID == p.ToClinicID {
				return ErrSameClinic
			}

			dest, err := s.findOrCreateDestination(ctx, tx, source, p.ToClinicID)
			if err != nil {
				return err
			}

			if source.StockType == StockSerialized {
				if len(product.SerialNumbers) == 0 {
					return ErrSerialsRequired
				}

				moved, err := tx.ReassignSerials(ctx, source.ID, dest.ID, product.SerialNumbers)
				if err != nil {
					return fmt.Errorf("reassign serials: %w", err)
				}
				if moved != len(product.SerialNumbers) {
					return ErrSerialsUnavailable
				}

				if _, err := tx.RecomputeItemQuantity(ctx, source.ID); err != nil {
					return err
				}
				if _, err := tx.RecomputeItemQuantity(ctx, dest.ID); err != nil {
					return err
				}
			} else {
				if product.Quantity <= 0 {
					return ErrQuantityRequired
				}
				if err := source.AdjustQuantity(-product.Quantity); err != nil {
					return fmt.Errorf("%s: %w", source.ProductName, err)
				}
				if err := tx.SetItemQuantity(ctx, source.ID, source.QuantityInStock); err != nil {
					return err
				}

				destLocked, err := tx.GetItemForUpdate(ctx, dest.ID)
				if err != nil {
					return err
				}
				if err := destLocked.AdjustQuantity(product.Quantity); err != nil {
					return err
				}
				if err := tx.SetItemQuantity(ctx, dest.ID, destLocked.QuantityInStock); err != nil {
					return err
				}
			}

			quantity := product.Quantity
			serials := product.SerialNumbers
			if source.StockType == StockSerialized {
				quantity = len(product.SerialNumbers)
			} else {
				serials = nil
			}

			if err := tx.InsertTransfer(ctx, &Transfer{
				ID:            uuid.New(),
				ItemName:      source.ProductName,
				Category:      source.Category,
				Brand:         source.Brand,
				Model:         source.ModelType,
				FromClinicID:  source.ClinicID,
				ToClinicID:    p.ToClinicID,
				Quantity:      quantity,
				SerialNumbers: serials,
				TransferredBy: p.TransferredBy,
				Notes:         p.Notes,
			}); err != nil {
				return fmt.Errorf("record transfer: %w", err)
			}

			transferred++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return transferred, nil
}

func (s *Service) findOrCreateDestination(ctx context.Context, tx TxRepository, source *Item, toClinicID uuid.UUID) (*Item, error) {
	dest, err := tx.FindItemByIdentity(ctx, &toClinicID,
		source.ProductName, source.Brand, source.ModelType, source.Category)
	if err == nil {
		return dest, nil
	}
	if !errors.Is(err, ErrItemNotFound) {
		return nil, err
	}

	masterID := source.MasterItemID
	if masterID == nil {
		masterID = &source.ID
	}

	clinicID := toClinicID
	dest = &Item{
		ID:              uuid.New(),
		ClinicID:        &clinicID,
		MasterItemID:    masterID,
		ProductName:     source.ProductName,
		Brand:           source.Brand,
		ModelType:       source.ModelType,
		Category:        source.Category,
		SKU:             source.SKU,
		StockType:       source.StockType,
		UnitPrice:       source.UnitPrice,
		QuantityInStock: 0,
		ReorderLevel:    source.ReorderLevel,
		UseInTrial:      source.UseInTrial,
		Description:     source.Description,
	}

	if err := tx.CreateItem(ctx, dest); err != nil {
		return nil, fmt.Errorf("create destination item: %w", err)
	}

	return dest, nil
}
