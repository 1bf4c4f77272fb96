package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/putto11262002/relay/core"
	"github.com/putto11262002/relay/pkg/router"
)

type AuthHandler struct {
	users core.UserStore
	auth  core.AuthStore
}

func NewAuthHandler(users core.UserStore, auth core.AuthStore) *AuthHandler {
	return &AuthHandler{users: users, auth: auth}
}

type CredentialsPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	Success  bool   `json:"success"`
	Username string `json:"username"`
}

func (h *AuthHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) error {
	var payload CredentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return fmt.Errorf("Decode: %w", err)
	}
	defer r.Body.Close()

	user := core.User{Username: payload.Username, Password: payload.Password}
	if err := user.Validate(); err != nil {
		return router.NewJsonError(http.StatusBadRequest, "username and password required")
	}

	if err := h.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, core.ErrConflictedUser) {
			return router.NewJsonError(http.StatusBadRequest, "username already taken")
		}
		return err
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(RegisterResponse{Success: true, Username: payload.Username}); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}

func (h *AuthHandler) LoginHandler(w http.ResponseWriter, r *http.Request) error {
	var payload CredentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return fmt.Errorf("Decode: %w", err)
	}
	defer r.Body.Close()

	session, err := h.auth.NewSession(r.Context(), payload.Username, payload.Password)
	if err != nil {
		if errors.Is(err, core.ErrBadCredentials) {
			return router.NewJsonError(http.StatusUnauthorized, err.Error())
		}
		return err
	}

	http.SetCookie(w, core.SessionCookie(*session, true, "/"))

	if err := json.NewEncoder(w).Encode(session); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}
