package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hearwell/clinic-backend/internal/trial"
)

func startTrialHandler(svc *trial.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartTrialRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		visitID, err := uuid.Parse(req.VisitID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_visit_id", "visit_id must be a valid UUID")
			return
		}

		params := trial.StartTrialParams{
			VisitID:          visitID,
			SerialNumber:     req.SerialNumber,
			EarFitted:        req.EarFitted,
			DomeType:         req.DomeType,
			GainSettings:     req.GainSettings,
			SRTBefore:        req.SRTBefore,
			SDSBefore:        req.SDSBefore,
			UCLBefore:        req.UCLBefore,
			PatientResponse:  req.PatientResponse,
			CounsellingNotes: req.CounsellingNotes,
			TrialStartDate:   parseDate(req.TrialStartDate),
			TrialEndDate:     parseDate(req.TrialEndDate),
			FollowupDate:     parseDate(req.FollowupDate),
			Cost:             req.Cost,
			DiscountPercent:  req.DiscountPercent,
		}
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			params.CreatedBy = &claims.UserID
		}

		t, err := svc.StartTrial(r.Context(), params)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toTrialResponse(t))
	}
}

func completeTrialHandler(svc *trial.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trialID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_trial_id", "id must be a valid UUID")
			return
		}

		var req CompleteTrialRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		params := trial.CompleteTrialParams{
			TrialID:            trialID,
			Decision:           trial.Decision(req.Decision),
			Notes:              req.Notes,
			PatientResponse:    req.PatientResponse,
			BookedItemID:       parseUUIDPtr(req.BookedItemID),
			BookedSerialNumber: req.BookedSerialNumber,
			FollowupDays:       req.FollowupDays,
		}
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			params.ActorID = &claims.UserID
		}

		t, err := svc.CompleteTrial(r.Context(), params)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toTrialResponse(t))
	}
}

func allocateSerialHandler(svc *trial.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trialID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_trial_id", "id must be a valid UUID")
			return
		}

		var req AllocateSerialRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		var actor *uuid.UUID
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			actor = &claims.UserID
		}

		t, err := svc.AllocateSerial(r.Context(), trialID, req.SerialNumber, actor)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toTrialResponse(t))
	}
}

func returnDeviceHandler(svc *trial.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReturnDeviceRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		t, err := svc.ReturnDevice(r.Context(), req.SerialNumber, req.Condition)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toTrialResponse(t))
	}
}

func getTrialHandler(svc *trial.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trialID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_trial_id", "id must be a valid UUID")
			return
		}

		t, err := svc.GetTrial(r.Context(), trialID)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toTrialResponse(t))
	}
}

func getVisitTrialHandler(svc *trial.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		visitID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_visit_id", "id must be a valid UUID")
			return
		}

		t, err := svc.GetActiveTrialByVisit(r.Context(), visitID)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toTrialResponse(t))
	}
}

func listTrialsHandler(svc *trial.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := trial.ListFilter{
			Search: r.URL.Query().Get("search"),
			Limit:  queryInt(r, "limit"),
			Offset: queryInt(r, "offset"),
		}
		if d := r.URL.Query().Get("decision"); d != "" {
			dec := trial.Decision(d)
			f.Decision = &dec
		}
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			f.ClinicID = claims.ClinicID
		}

		details, total, err := svc.ListTrials(r.Context(), f)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		resp := ListResponse[TrialDetailResponse]{Total: total}
		for i := range details {
			resp.Items = append(resp.Items, toTrialDetailResponse(&details[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listAwaitingStockHandler(svc *trial.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var clinicID *uuid.UUID
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			clinicID = claims.ClinicID
		}

		details, total, err := svc.ListAwaitingStock(r.Context(), clinicID,
			queryInt(r, "limit"), queryInt(r, "offset"))
		if err != nil {
			respondServiceError(w, err)
			return
		}

		resp := ListResponse[TrialDetailResponse]{Total: total}
		for i := range details {
			resp.Items = append(resp.Items, toTrialDetailResponse(&details[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}
