package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"spendSmartAPI/internal/user"
	"spendSmartAPI/middleware"
	"spendSmartAPI/services"
)

const maxBodyBytes = 64 << 10

var validate = validator.New(validator.WithRequiredStructEnabled())

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithServiceError maps the service error categories onto HTTP
// statuses. Storage details stay in the log.
func respondWithServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrConflict):
		respondWithError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("%s failed: %v", op, err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
// An empty body is allowed when allowEmpty is set.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !(allowEmpty && errors.Is(err, io.EOF)) {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request body"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// currentUser resolves the authenticated Clerk user to the local account,
// writing the error response itself when it cannot.
func currentUser(w http.ResponseWriter, r *http.Request, users *services.UserService) (*user.User, bool) {
	ctx := r.Context()
	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return nil, false
	}

	u, err := users.GetUserByClerkID(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, "resolve user", err)
		return nil, false
	}
	return u, true
}
