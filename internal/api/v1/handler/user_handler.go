package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"matchday/internal/api/v1/dto"
	"matchday/internal/middleware"
	"matchday/internal/model"
	"matchday/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type UserHandler struct {
	userService service.UserService
	validate    *validator.Validate
	logger      zerolog.Logger
}

func NewUserHandler(userService service.UserService, v *validator.Validate, logger zerolog.Logger) *UserHandler {
	return &UserHandler{userService: userService, validate: v, logger: logger.With().Str("handler", "UserHandler").Logger()}
}

// RegisterRoutes mounts v1 user routes
func (h *UserHandler) RegisterRoutes(mux *http.ServeMux, authMw, jsonBodyMw func(http.Handler) http.Handler) {
	mux.Handle("POST /users/me", jsonBodyMw(authMw(http.HandlerFunc(h.createUser))))
	mux.Handle("GET /users/me", authMw(http.HandlerFunc(h.getUser)))
}

func (h *UserHandler) createUser(w http.ResponseWriter, r *http.Request) {
	// 1. Extract UserID from context
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "user id not found in context", Reason: service.ReasonUnauthorized})
		return
	}

	// 2. Decode and validate the body
	var req dto.UserCreateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid JSON payload: " + err.Error(), Reason: "invalid_body"})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "validation failed: " + err.Error(), Reason: "invalid_body"})
		return
	}
	// The token's email claim fills in a missing address.
	if req.Email == "" {
		req.Email = middleware.EmailFromContext(r.Context())
	}

	// 3. Create the profile and its subscription row
	user, err := h.userService.Create(r.Context(), &model.User{
		UserID: userID,
		Name:   req.Name,
		Email:  req.Email,
	})
	status := http.StatusCreated
	switch {
	case errors.Is(err, service.ErrUserExists):
		status = http.StatusOK
	case err != nil:
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, status, toUserResponse(user))
}

func (h *UserHandler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.Get(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func toUserResponse(u *model.User) dto.UserResponseDTO {
	return dto.UserResponseDTO{
		UserID:    u.UserID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
