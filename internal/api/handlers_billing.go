package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hearwell/clinic-backend/internal/billing"
)

func getVisitBillHandler(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		visitID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_visit_id", "id must be a valid UUID")
			return
		}

		detail, err := svc.GetBillDetail(r.Context(), visitID)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBillResponse(&detail.Bill, detail.Items))
	}
}

func billTestsHandler(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		visitID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_visit_id", "id must be a valid UUID")
			return
		}

		var req BillTestsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		var clinicID, createdBy *uuid.UUID
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			clinicID = claims.ClinicID
			createdBy = &claims.UserID
		}

		bill, skipped, err := svc.BillTestsPerformed(r.Context(), visitID, clinicID, createdBy, req.Tests)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		resp := struct {
			Bill    BillResponse `json:"bill"`
			Skipped []string     `json:"skipped,omitempty"`
		}{
			Bill:    toBillResponse(bill, nil),
			Skipped: skipped,
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func applyDiscountHandler(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		visitID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_visit_id", "id must be a valid UUID")
			return
		}

		var req ApplyDiscountRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}
		if req.Amount.IsNegative() {
			writeError(w, http.StatusBadRequest, "validation_error", "discount amount cannot be negative")
			return
		}

		bill, err := svc.ApplyDiscount(r.Context(), visitID, req.Amount)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBillResponse(bill, nil))
	}
}

func listTestTypesHandler(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		types, err := svc.ListTestTypes(r.Context())
		if err != nil {
			respondServiceError(w, err)
			return
		}

		type testTypeResponse struct {
			ID   uuid.UUID `json:"id"`
			Name string    `json:"name"`
			Code string    `json:"code"`
			Cost string    `json:"cost"`
		}

		resp := ListResponse[testTypeResponse]{Total: len(types)}
		for _, t := range types {
			resp.Items = append(resp.Items, testTypeResponse{
				ID:   t.ID,
				Name: t.Name,
				Code: t.Code,
				Cost: t.Cost.String(),
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
