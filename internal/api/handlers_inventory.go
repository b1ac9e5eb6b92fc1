package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hearwell/clinic-backend/internal/inventory"
)

func createItemHandler(svc *inventory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateItemRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		params := inventory.CreateItemParams{
			ProductName:  req.ProductName,
			Brand:        req.Brand,
			ModelType:    req.ModelType,
			Category:     req.Category,
			SKU:          req.SKU,
			StockType:    inventory.StockType(req.StockType),
			UnitPrice:    req.UnitPrice,
			Quantity:     req.Quantity,
			ReorderLevel: req.ReorderLevel,
			UseInTrial:   req.UseInTrial,
			Description:  req.Description,
		}
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			params.ClinicID = claims.ClinicID
		}

		item, err := svc.CreateItem(r.Context(), params)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toItemResponse(item))
	}
}

func updateItemHandler(svc *inventory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_item_id", "id must be a valid UUID")
			return
		}

		var req UpdateItemRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		item, err := svc.UpdateItem(r.Context(), itemID, inventory.UpdateItemParams{
			ProductName:  req.ProductName,
			Brand:        req.Brand,
			ModelType:    req.ModelType,
			Category:     req.Category,
			SKU:          req.SKU,
			UnitPrice:    req.UnitPrice,
			ReorderLevel: req.ReorderLevel,
			UseInTrial:   req.UseInTrial,
			Description:  req.Description,
		})
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toItemResponse(item))
	}
}

func getItemHandler(svc *inventory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_item_id", "id must be a valid UUID")
			return
		}

		item, err := svc.GetItem(r.Context(), itemID)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toItemResponse(item))
	}
}

func listItemsHandler(svc *inventory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := inventory.ItemFilter{
			Search: r.URL.Query().Get("search"),
			Limit:  queryInt(r, "limit"),
			Offset: queryInt(r, "offset"),
		}
		if c := r.URL.Query().Get("category"); c != "" {
			f.Category = &c
		}
		if r.URL.Query().Get("trial_devices") == "true" {
			yes := true
			f.UseInTrial = &yes
		}
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			f.ClinicID = claims.ClinicID
		}

		items, total, err := svc.ListItems(r.Context(), f)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		resp := ListResponse[ItemResponse]{Total: total}
		for i := range items {
			resp.Items = append(resp.Items, toItemResponse(&items[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func addSerialsHandler(svc *inventory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_item_id", "id must be a valid UUID")
			return
		}

		var req AddSerialsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		result, err := svc.AddSerials(r.Context(), itemID, req.SerialNumbers)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, AddSerialsResponse{
			Created:  result.Created,
			Rejected: result.Rejected,
			Quantity: result.Quantity,
		})
	}
}

func listSerialsHandler(svc *inventory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_item_id", "id must be a valid UUID")
			return
		}

		serials, err := svc.ListSerials(r.Context(), itemID)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		resp := ListResponse[SerialResponse]{Total: len(serials)}
		for _, s := range serials {
			resp.Items = append(resp.Items, SerialResponse{
				ID:           s.ID,
				SerialNumber: s.SerialNumber,
				Status:       string(s.Status),
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func serialInfoHandler(svc *inventory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serialNumber := chi.URLParam(r, "serialNumber")

		item, serial, err := svc.ProductInfoBySerial(r.Context(), serialNumber)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, SerialInfoResponse{
			Item: toItemResponse(item),
			Serial: SerialResponse{
				ID:           serial.ID,
				SerialNumber: serial.SerialNumber,
				Status:       string(serial.Status),
			},
		})
	}
}

func updateSerialStatusHandler(svc *inventory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serialNumber := chi.URLParam(r, "serialNumber")

		var req UpdateSerialStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		serial, err := svc.MarkSerialCondition(r.Context(), serialNumber, inventory.SerialStatus(req.Status))
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, SerialResponse{
			ID:           serial.ID,
			SerialNumber: serial.SerialNumber,
			Status:       string(serial.Status),
		})
	}
}

func listTrialDeviceSerialsHandler(svc *inventory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var clinicID *uuid.UUID
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			clinicID = claims.ClinicID
		}

		serials, err := svc.ListTrialDeviceSerials(r.Context(), clinicID)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ListResponse[string]{Items: serials, Total: len(serials)})
	}
}

func transferHandler(svc *inventory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TransferRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		toClinicID, err := uuid.Parse(req.ToClinicID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "to_clinic_id must be a valid UUID")
			return
		}

		params := inventory.TransferParams{
			ToClinicID: toClinicID,
			Notes:      req.Notes,
		}
		for _, p := range req.Products {
			sourceID, err := uuid.Parse(p.SourceItemID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_item_id", "source_item_id must be a valid UUID")
				return
			}
			params.Products = append(params.Products, inventory.TransferProduct{
				SourceItemID:  sourceID,
				Quantity:      p.Quantity,
				SerialNumbers: p.SerialNumbers,
			})
		}
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			params.TransferredBy = &claims.UserID
		}

		transferred, err := svc.Transfer(r.Context(), params)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]int{"transferred": transferred})
	}
}
