package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hearwell/clinic-backend/internal/patient"
)

func toVisitInputs(reqs []VisitInputRequest) []patient.VisitInput {
	inputs := make([]patient.VisitInput, 0, len(reqs))
	for _, v := range reqs {
		inputs = append(inputs, patient.VisitInput{
			VisitType:        v.VisitType,
			PresentComplaint: v.PresentComplaint,
			TestRequested:    v.TestRequested,
			Notes:            v.Notes,
			SeenBy:           parseUUIDPtr(v.SeenBy),
		})
	}
	return inputs
}

func registerPatientHandler(svc *patient.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterPatientRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		dob, err := time.Parse(dateLayout, req.DOB)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_dob", "dob must be YYYY-MM-DD")
			return
		}

		params := patient.RegisterPatientParams{
			Name:            req.Name,
			Age:             req.Age,
			DOB:             dob,
			Gender:          req.Gender,
			Email:           req.Email,
			PhonePrimary:    req.PhonePrimary,
			PhoneSecondary:  req.PhoneSecondary,
			City:            req.City,
			Address:         req.Address,
			ReferralType:    req.ReferralType,
			ReferralDoctor:  req.ReferralDoctor,
			ServiceType:     req.ServiceType,
			AppointmentDate: parseDate(req.AppointmentDate),
			Visits:          toVisitInputs(req.Visits),
		}
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			params.ClinicID = claims.ClinicID
			params.CreatedBy = &claims.UserID
		}

		pat, err := svc.RegisterPatient(r.Context(), params)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toPatientResponse(pat))
	}
}

func updatePatientHandler(svc *patient.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		var req UpdatePatientRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		dob, err := time.Parse(dateLayout, req.DOB)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_dob", "dob must be YYYY-MM-DD")
			return
		}

		pat, err := svc.UpdatePatient(r.Context(), patientID, patient.UpdatePatientParams{
			Name:           req.Name,
			Age:            req.Age,
			DOB:            dob,
			Gender:         req.Gender,
			Email:          req.Email,
			PhonePrimary:   req.PhonePrimary,
			PhoneSecondary: req.PhoneSecondary,
			City:           req.City,
			Address:        req.Address,
			ReferralType:   req.ReferralType,
			ReferralDoctor: req.ReferralDoctor,
		})
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPatientResponse(pat))
	}
}

func getPatientHandler(svc *patient.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		detail, err := svc.GetPatientDetail(r.Context(), patientID)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		resp := PatientDetailResponse{
			PatientResponse: toPatientResponse(&detail.Patient),
			TotalVisits:     detail.TotalVisits,
		}
		if detail.LatestVisit != nil {
			v := toVisitResponse(detail.LatestVisit)
			resp.LatestVisit = &v
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listPatientsHandler(svc *patient.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var clinicID *uuid.UUID
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			clinicID = claims.ClinicID
		}

		patients, err := svc.ListPatients(r.Context(), clinicID, r.URL.Query().Get("search"))
		if err != nil {
			respondServiceError(w, err)
			return
		}

		resp := ListResponse[PatientResponse]{Total: len(patients)}
		for i := range patients {
			resp.Items = append(resp.Items, toPatientResponse(&patients[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createVisitsHandler(svc *patient.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		var req CreateVisitsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		params := patient.CreateVisitsParams{
			PatientID:       patientID,
			ServiceType:     req.ServiceType,
			AppointmentDate: parseDate(req.AppointmentDate),
			Visits:          toVisitInputs(req.Visits),
		}
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			params.ClinicID = claims.ClinicID
			params.CreatedBy = &claims.UserID
		}

		visits, err := svc.CreateVisits(r.Context(), params)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		resp := ListResponse[VisitResponse]{Total: len(visits)}
		for i := range visits {
			resp.Items = append(resp.Items, toVisitResponse(&visits[i]))
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func listPatientVisitsHandler(svc *patient.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		visits, total, err := svc.ListVisitsByPatient(r.Context(), patientID,
			queryInt(r, "limit"), queryInt(r, "offset"))
		if err != nil {
			respondServiceError(w, err)
			return
		}

		resp := ListResponse[VisitResponse]{Total: total}
		for i := range visits {
			resp.Items = append(resp.Items, toVisitResponse(&visits[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getVisitHandler(svc *patient.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		visitID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_visit_id", "id must be a valid UUID")
			return
		}

		visit, err := svc.GetVisit(r.Context(), visitID)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toVisitResponse(visit))
	}
}

func updateVisitHandler(svc *patient.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		visitID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_visit_id", "id must be a valid UUID")
			return
		}

		var req UpdateVisitRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		visit, err := svc.UpdateVisit(r.Context(), visitID, patient.UpdateVisitParams{
			VisitType:        req.VisitType,
			PresentComplaint: req.PresentComplaint,
			TestRequested:    req.TestRequested,
			Notes:            req.Notes,
			AppointmentDate:  parseDate(req.AppointmentDate),
		})
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toVisitResponse(visit))
	}
}

func listVisitsHandler(svc *patient.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := patient.ListFilter{
			Search: r.URL.Query().Get("search"),
			Limit:  queryInt(r, "limit"),
			Offset: queryInt(r, "offset"),
		}
		if s := r.URL.Query().Get("status"); s != "" {
			status := patient.VisitStatus(s)
			f.Status = &status
		}
		if vt := r.URL.Query().Get("visit_type"); vt != "" {
			f.VisitType = &vt
		}
		if d := r.URL.Query().Get("appointment_date"); d != "" {
			f.AppointmentDate = parseDate(&d)
		}
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			f.ClinicID = claims.ClinicID
		}

		visits, total, err := svc.ListVisits(r.Context(), f)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		resp := ListResponse[VisitDetailResponse]{Total: total}
		for i := range visits {
			resp.Items = append(resp.Items, VisitDetailResponse{
				VisitResponse: toVisitResponse(&visits[i].Visit),
				PatientName:   visits[i].PatientName,
				PatientPhone:  visits[i].PatientPhone,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
