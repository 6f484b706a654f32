package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"spendSmartAPI/internal/challenge"
	"spendSmartAPI/services"
)

type ChallengeHandler struct {
	engine      *services.GamificationService
	userService *services.UserService
}

func NewChallengeHandler(engine *services.GamificationService, userService *services.UserService) *ChallengeHandler {
	return &ChallengeHandler{
		engine:      engine,
		userService: userService,
	}
}

func (h *ChallengeHandler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	templates, err := h.engine.ListTemplates(ctx)
	if err != nil {
		respondWithServiceError(w, "list challenges", err)
		return
	}

	respondWithJSON(w, http.StatusOK, templates)
}

func (h *ChallengeHandler) StartChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	r = r.WithContext(ctx)

	u, ok := currentUser(w, r, h.userService)
	if !ok {
		return
	}

	var req challenge.StartChallengeRequest
	if !decodeAndValidate(w, r, &req, false) {
		return
	}
	templateID, err := uuid.Parse(req.ChallengeID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid challenge id")
		return
	}

	inst, err := h.engine.StartChallenge(ctx, u.ID, templateID)
	if err != nil {
		respondWithServiceError(w, "start challenge", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, inst)
}

func (h *ChallengeHandler) EndChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	r = r.WithContext(ctx)

	u, ok := currentUser(w, r, h.userService)
	if !ok {
		return
	}

	instanceID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid challenge instance id")
		return
	}

	var req challenge.EndChallengeRequest
	if !decodeAndValidate(w, r, &req, true) {
		return
	}

	inst, err := h.engine.EndChallenge(ctx, u.ID, instanceID, req.Reason)
	if err != nil {
		respondWithServiceError(w, "end challenge", err)
		return
	}

	respondWithJSON(w, http.StatusOK, inst)
}

func (h *ChallengeHandler) GetActiveChallenge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	r = r.WithContext(ctx)

	u, ok := currentUser(w, r, h.userService)
	if !ok {
		return
	}

	active, err := h.engine.GetActiveChallenge(ctx, u.ID)
	if err != nil {
		respondWithServiceError(w, "get active challenge", err)
		return
	}

	respondWithJSON(w, http.StatusOK, active)
}

func (h *ChallengeHandler) GetChallengeHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	r = r.WithContext(ctx)

	u, ok := currentUser(w, r, h.userService)
	if !ok {
		return
	}

	history, err := h.engine.ChallengeHistory(ctx, u.ID)
	if err != nil {
		respondWithServiceError(w, "challenge history", err)
		return
	}

	respondWithJSON(w, http.StatusOK, history)
}
