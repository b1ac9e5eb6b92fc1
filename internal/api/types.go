package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hearwell/clinic-backend/internal/billing"
	"github.com/hearwell/clinic-backend/internal/inventory"
	"github.com/hearwell/clinic-backend/internal/patient"
	"github.com/hearwell/clinic-backend/internal/trial"
)

const dateLayout = "2006-01-02"

// --- auth ---

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UserResponse struct {
	ID       uuid.UUID  `json:"id"`
	ClinicID *uuid.UUID `json:"clinic_id,omitempty"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Role     string     `json:"role"`
	IsActive bool       `json:"is_active"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type CreateUserRequest struct {
	ClinicID *uuid.UUID `json:"clinic_id"`
	Name     string     `json:"name" validate:"required"`
	Email    string     `json:"email" validate:"required,email"`
	Password string     `json:"password" validate:"required,min=8"`
	Role     string     `json:"role" validate:"required"`
}

// --- patients ---

type VisitInputRequest struct {
	VisitType        string   `json:"visit_type" validate:"required"`
	PresentComplaint string   `json:"present_complaint"`
	TestRequested    []string `json:"test_requested"`
	Notes            *string  `json:"notes"`
	SeenBy           *string  `json:"seen_by" validate:"omitempty,uuid"`
}

type RegisterPatientRequest struct {
	Name            string              `json:"name" validate:"required"`
	Age             int                 `json:"age" validate:"gte=0,lte=130"`
	DOB             string              `json:"dob" validate:"required,datetime=2006-01-02"`
	Gender          string              `json:"gender" validate:"required"`
	Email           *string             `json:"email" validate:"omitempty,email"`
	PhonePrimary    string              `json:"phone_primary" validate:"required"`
	PhoneSecondary  *string             `json:"phone_secondary"`
	City            string              `json:"city"`
	Address         string              `json:"address"`
	ReferralType    *string             `json:"referral_type"`
	ReferralDoctor  *string             `json:"referral_doctor"`
	ServiceType     *string             `json:"service_type"`
	AppointmentDate *string             `json:"appointment_date" validate:"omitempty,datetime=2006-01-02"`
	Visits          []VisitInputRequest `json:"visits" validate:"required,min=1,dive"`
}

type UpdatePatientRequest struct {
	Name           string  `json:"name" validate:"required"`
	Age            int     `json:"age" validate:"gte=0,lte=130"`
	DOB            string  `json:"dob" validate:"required,datetime=2006-01-02"`
	Gender         string  `json:"gender" validate:"required"`
	Email          *string `json:"email" validate:"omitempty,email"`
	PhonePrimary   string  `json:"phone_primary" validate:"required"`
	PhoneSecondary *string `json:"phone_secondary"`
	City           string  `json:"city"`
	Address        string  `json:"address"`
	ReferralType   *string `json:"referral_type"`
	ReferralDoctor *string `json:"referral_doctor"`
}

type CreateVisitsRequest struct {
	ServiceType     *string             `json:"service_type"`
	AppointmentDate *string             `json:"appointment_date" validate:"omitempty,datetime=2006-01-02"`
	Visits          []VisitInputRequest `json:"visits" validate:"required,min=1,dive"`
}

type UpdateVisitRequest struct {
	VisitType        string   `json:"visit_type" validate:"required"`
	PresentComplaint string   `json:"present_complaint"`
	TestRequested    []string `json:"test_requested"`
	Notes            *string  `json:"notes"`
	AppointmentDate  *string  `json:"appointment_date" validate:"omitempty,datetime=2006-01-02"`
}

type PatientResponse struct {
	ID             uuid.UUID  `json:"id"`
	ClinicID       *uuid.UUID `json:"clinic_id,omitempty"`
	Name           string     `json:"name"`
	Age            int        `json:"age"`
	DOB            string     `json:"dob"`
	Gender         string     `json:"gender"`
	Email          *string    `json:"email,omitempty"`
	PhonePrimary   string     `json:"phone_primary"`
	PhoneSecondary *string    `json:"phone_secondary,omitempty"`
	City           string     `json:"city"`
	Address        string     `json:"address"`
	ReferralType   *string    `json:"referral_type,omitempty"`
	ReferralDoctor *string    `json:"referral_doctor,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toPatientResponse(p *patient.Patient) PatientResponse {
	return PatientResponse{
		ID:             p.ID,
		ClinicID:       p.ClinicID,
		Name:           p.Name,
		Age:            p.Age,
		DOB:            p.DOB.Format(dateLayout),
		Gender:         p.Gender,
		Email:          p.Email,
		PhonePrimary:   p.PhonePrimary,
		PhoneSecondary: p.PhoneSecondary,
		City:           p.City,
		Address:        p.Address,
		ReferralType:   p.ReferralType,
		ReferralDoctor: p.ReferralDoctor,
		CreatedAt:      p.CreatedAt,
	}
}

type VisitResponse struct {
	ID               uuid.UUID  `json:"id"`
	ClinicID         *uuid.UUID `json:"clinic_id,omitempty"`
	PatientID        uuid.UUID  `json:"patient_id"`
	SeenBy           *uuid.UUID `json:"seen_by,omitempty"`
	VisitType        string     `json:"visit_type"`
	ServiceType      *string    `json:"service_type,omitempty"`
	PresentComplaint string     `json:"present_complaint"`
	TestRequested    []string   `json:"test_requested,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
	Status           string     `json:"status"`
	StatusNote       string     `json:"status_note,omitempty"`
	AppointmentDate  *time.Time `json:"appointment_date,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func toVisitResponse(v *patient.Visit) VisitResponse {
	return VisitResponse{
		ID:               v.ID,
		ClinicID:         v.ClinicID,
		PatientID:        v.PatientID,
		SeenBy:           v.SeenBy,
		VisitType:        v.VisitType,
		ServiceType:      v.ServiceType,
		PresentComplaint: v.PresentComplaint,
		TestRequested:    v.TestRequested,
		Notes:            v.Notes,
		Status:           string(v.Status),
		StatusNote:       v.StatusNote,
		AppointmentDate:  v.AppointmentDate,
		CreatedAt:        v.CreatedAt,
	}
}

type VisitDetailResponse struct {
	VisitResponse
	PatientName  string `json:"patient_name"`
	PatientPhone string `json:"patient_phone"`
}

type PatientDetailResponse struct {
	PatientResponse
	LatestVisit *VisitResponse `json:"latest_visit,omitempty"`
	TotalVisits int            `json:"total_visits"`
}

// --- trials ---

type StartTrialRequest struct {
	VisitID      string `json:"visit_id" validate:"required,uuid"`
	SerialNumber string `json:"serial_number" validate:"required"`

	EarFitted        *string `json:"ear_fitted"`
	DomeType         *string `json:"dome_type"`
	GainSettings     *string `json:"gain_settings"`
	SRTBefore        *string `json:"srt_before"`
	SDSBefore        *string `json:"sds_before"`
	UCLBefore        *string `json:"ucl_before"`
	PatientResponse  *string `json:"patient_response"`
	CounsellingNotes *string `json:"counselling_notes"`

	TrialStartDate *string `json:"trial_start_date" validate:"omitempty,datetime=2006-01-02"`
	TrialEndDate   *string `json:"trial_end_date" validate:"omitempty,datetime=2006-01-02"`
	FollowupDate   *string `json:"followup_date" validate:"omitempty,datetime=2006-01-02"`

	Cost            decimal.Decimal `json:"cost"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

type CompleteTrialRequest struct {
	Decision           string  `json:"decision" validate:"required,oneof=BOOK FOLLOWUP DECLINE"`
	Notes              *string `json:"notes"`
	PatientResponse    *string `json:"patient_response"`
	BookedItemID       *string `json:"booked_item_id" validate:"omitempty,uuid"`
	BookedSerialNumber *string `json:"booked_serial_number"`
	FollowupDays       int     `json:"followup_days" validate:"gte=0,lte=90"`
}

type AllocateSerialRequest struct {
	SerialNumber string `json:"serial_number" validate:"required"`
}

type ReturnDeviceRequest struct {
	SerialNumber string  `json:"serial_number" validate:"required"`
	Condition    *string `json:"condition"`
}

type TrialResponse struct {
	ID           uuid.UUID  `json:"id"`
	ClinicID     *uuid.UUID `json:"clinic_id,omitempty"`
	VisitID      uuid.UUID  `json:"visit_id"`
	PatientID    uuid.UUID  `json:"patient_id"`
	DeviceItemID uuid.UUID  `json:"device_item_id"`
	SerialNumber string     `json:"serial_number"`

	EarFitted        *string `json:"ear_fitted,omitempty"`
	DomeType         *string `json:"dome_type,omitempty"`
	GainSettings     *string `json:"gain_settings,omitempty"`
	PatientResponse  *string `json:"patient_response,omitempty"`
	CounsellingNotes *string `json:"counselling_notes,omitempty"`

	TrialStartDate string  `json:"trial_start_date"`
	TrialEndDate   *string `json:"trial_end_date,omitempty"`
	FollowupDate   *string `json:"followup_date,omitempty"`
	ExtendedTrial  bool    `json:"extended_trial"`

	Decision                string     `json:"decision"`
	TrialCompletedAt        *time.Time `json:"trial_completed_at,omitempty"`
	ReturnNotes             *string    `json:"return_notes,omitempty"`
	DeviceConditionOnReturn *string    `json:"device_condition_on_return,omitempty"`

	BookedItemID       *uuid.UUID `json:"booked_item_id,omitempty"`
	BookedSerialNumber *string    `json:"booked_serial_number,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func toTrialResponse(t *trial.Trial) TrialResponse {
	resp := TrialResponse{
		ID:                      t.ID,
		ClinicID:                t.ClinicID,
		VisitID:                 t.VisitID,
		PatientID:               t.PatientID,
		DeviceItemID:            t.DeviceItemID,
		SerialNumber:            t.SerialNumber,
		EarFitted:               t.EarFitted,
		DomeType:                t.DomeType,
		GainSettings:            t.GainSettings,
		PatientResponse:         t.PatientResponse,
		CounsellingNotes:        t.CounsellingNotes,
		TrialStartDate:          t.TrialStartDate.Format(dateLayout),
		ExtendedTrial:           t.ExtendedTrial,
		Decision:                string(t.Decision),
		TrialCompletedAt:        t.TrialCompletedAt,
		ReturnNotes:             t.ReturnNotes,
		DeviceConditionOnReturn: t.DeviceConditionOnReturn,
		BookedItemID:            t.BookedItemID,
		BookedSerialNumber:      t.BookedSerialNumber,
		CreatedAt:               t.CreatedAt,
	}
	if t.TrialEndDate != nil {
		s := t.TrialEndDate.Format(dateLayout)
		resp.TrialEndDate = &s
	}
	if t.FollowupDate != nil {
		s := t.FollowupDate.Format(dateLayout)
		resp.FollowupDate = &s
	}
	return resp
}

type TrialDetailResponse struct {
	TrialResponse
	PatientName string `json:"patient_name"`
	ProductName string `json:"product_name"`
	Brand       string `json:"brand"`
	ModelType   string `json:"model_type"`
}

func toTrialDetailResponse(d *trial.Detail) TrialDetailResponse {
	return TrialDetailResponse{
		TrialResponse: toTrialResponse(&d.Trial),
		PatientName:   d.PatientName,
		ProductName:   d.ProductName,
		Brand:         d.Brand,
		ModelType:     d.ModelType,
	}
}

// --- inventory ---

type CreateItemRequest struct {
	ProductName  string          `json:"product_name" validate:"required"`
	Brand        string          `json:"brand"`
	ModelType    string          `json:"model_type"`
	Category     string          `json:"category" validate:"required"`
	SKU          *string         `json:"sku"`
	StockType    string          `json:"stock_type" validate:"required,oneof=Serialized Non-Serialized"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity" validate:"gte=0"`
	ReorderLevel int             `json:"reorder_level" validate:"gte=0"`
	UseInTrial   bool            `json:"use_in_trial"`
	Description  *string         `json:"description"`
}

type UpdateItemRequest struct {
	ProductName  string          `json:"product_name" validate:"required"`
	Brand        string          `json:"brand"`
	ModelType    string          `json:"model_type"`
	Category     string          `json:"category" validate:"required"`
	SKU          *string         `json:"sku"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	ReorderLevel int             `json:"reorder_level" validate:"gte=0"`
	UseInTrial   bool            `json:"use_in_trial"`
	Description  *string         `json:"description"`
}

type AddSerialsRequest struct {
	SerialNumbers []string `json:"serial_numbers" validate:"required,min=1"`
}

type TransferProductRequest struct {
	SourceItemID  string   `json:"source_item_id" validate:"required,uuid"`
	Quantity      int      `json:"quantity" validate:"gte=0"`
	SerialNumbers []string `json:"serial_numbers"`
}

type TransferRequest struct {
	ToClinicID string                   `json:"to_clinic_id" validate:"required,uuid"`
	Notes      string                   `json:"notes"`
	Products   []TransferProductRequest `json:"products" validate:"required,min=1,dive"`
}

type ItemResponse struct {
	ID              uuid.UUID       `json:"id"`
	ClinicID        *uuid.UUID      `json:"clinic_id,omitempty"`
	ProductName     string          `json:"product_name"`
	Brand           string          `json:"brand"`
	ModelType       string          `json:"model_type"`
	Category        string          `json:"category"`
	SKU             *string         `json:"sku,omitempty"`
	StockType       string          `json:"stock_type"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	QuantityInStock int             `json:"quantity_in_stock"`
	ReorderLevel    int             `json:"reorder_level"`
	UseInTrial      bool            `json:"use_in_trial"`
	Description     *string         `json:"description,omitempty"`
}

func toItemResponse(it *inventory.Item) ItemResponse {
	return ItemResponse{
		ID:              it.ID,
		ClinicID:        it.ClinicID,
		ProductName:     it.ProductName,
		Brand:           it.Brand,
		ModelType:       it.ModelType,
		Category:        it.Category,
		SKU:             it.SKU,
		StockType:       string(it.StockType),
		UnitPrice:       it.UnitPrice,
		QuantityInStock: it.QuantityInStock,
		ReorderLevel:    it.ReorderLevel,
		UseInTrial:      it.UseInTrial,
		Description:     it.Description,
	}
}

type UpdateSerialStatusRequest struct {
	Status string `json:"status" validate:"required,oneof='Service' 'Lost' 'In Stock'"`
}

type SerialResponse struct {
	ID           uuid.UUID `json:"id"`
	SerialNumber string    `json:"serial_number"`
	Status       string    `json:"status"`
}

type SerialInfoResponse struct {
	Item   ItemResponse   `json:"item"`
	Serial SerialResponse `json:"serial"`
}

type AddSerialsResponse struct {
	Created  int      `json:"created"`
	Rejected []string `json:"rejected,omitempty"`
	Quantity int      `json:"quantity_in_stock"`
}

// --- billing ---

type BillItemResponse struct {
	ID          uuid.UUID       `json:"id"`
	ItemType    string          `json:"item_type"`
	Description string          `json:"description"`
	Cost        decimal.Decimal `json:"cost"`
	Quantity    int             `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
}

type BillResponse struct {
	ID             uuid.UUID          `json:"id"`
	VisitID        uuid.UUID          `json:"visit_id"`
	BillNumber     string             `json:"bill_number"`
	TotalAmount    decimal.Decimal    `json:"total_amount"`
	DiscountAmount decimal.Decimal    `json:"discount_amount"`
	FinalAmount    decimal.Decimal    `json:"final_amount"`
	PaymentStatus  string             `json:"payment_status"`
	Items          []BillItemResponse `json:"items,omitempty"`
}

func toBillResponse(b *billing.Bill, items []billing.BillItem) BillResponse {
	resp := BillResponse{
		ID:             b.ID,
		VisitID:        b.VisitID,
		BillNumber:     b.BillNumber,
		TotalAmount:    b.TotalAmount,
		DiscountAmount: b.DiscountAmount,
		FinalAmount:    b.FinalAmount,
		PaymentStatus:  string(b.PaymentStatus),
	}
	for _, it := range items {
		resp.Items = append(resp.Items, BillItemResponse{
			ID:          it.ID,
			ItemType:    string(it.ItemType),
			Description: it.Description,
			Cost:        it.Cost,
			Quantity:    it.Quantity,
			Total:       it.Total(),
		})
	}
	return resp
}

type BillTestsRequest struct {
	Tests []string `json:"tests" validate:"required,min=1"`
}

type ApplyDiscountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// --- shared ---

type ListResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func parseDate(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil
	}
	return &t
}

func parseUUIDPtr(s *string) *uuid.UUID {
	if s == nil || *s == "" {
		return nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil
	}
	return &id
}
