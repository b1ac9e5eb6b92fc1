package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/hearwell/clinic-backend/internal/identity"
)

func toUserResponse(u *identity.User) UserResponse {
	return UserResponse{
		ID:       u.ID,
		ClinicID: u.ClinicID,
		Name:     u.Name,
		Email:    u.Email,
		Role:     string(u.Role),
		IsActive: u.IsActive,
	}
}

func loginHandler(svc *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		token, user, err := svc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, identity.ErrInvalidCredentials):
				writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
			case errors.Is(err, identity.ErrUserInactive):
				writeError(w, http.StatusForbidden, "user_inactive", "this account has been deactivated")
			default:
				respondServiceError(w, err)
			}
			return
		}

		writeJSON(w, http.StatusOK, LoginResponse{
			Token: token,
			User:  toUserResponse(user),
		})
	}
}

func meHandler(svc *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		user, err := svc.GetUser(r.Context(), claims.UserID)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toUserResponse(user))
	}
}

func createUserHandler(svc *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateUserRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		user, err := svc.CreateUser(r.Context(), identity.CreateUserParams{
			ClinicID: req.ClinicID,
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
			Role:     identity.Role(req.Role),
		})
		if err != nil {
			respondServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toUserResponse(user))
	}
}

func listUsersHandler(svc *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var clinicID *uuid.UUID
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			clinicID = claims.ClinicID
		}

		users, err := svc.ListUsers(r.Context(), clinicID)
		if err != nil {
			respondServiceError(w, err)
			return
		}

		resp := ListResponse[UserResponse]{Total: len(users)}
		for i := range users {
			resp.Items = append(resp.Items, toUserResponse(&users[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listClinicsHandler(svc *identity.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinics, err := svc.ListClinics(r.Context())
		if err != nil {
			respondServiceError(w, err)
			return
		}

		type clinicResponse struct {
			ID      uuid.UUID `json:"id"`
			Name    string    `json:"name"`
			Address string    `json:"address"`
			Phone   string    `json:"phone"`
		}

		resp := ListResponse[clinicResponse]{Total: len(clinics)}
		for _, c := range clinics {
			resp.Items = append(resp.Items, clinicResponse{
				ID:      c.ID,
				Name:    c.Name,
				Address: c.Address,
				Phone:   c.Phone,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
