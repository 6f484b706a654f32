package handlers

import (
	"context"
	"net/http"
	"time"

	"spendSmartAPI/services"
)

type StreakHandler struct {
	engine      *services.GamificationService
	userService *services.UserService
}

func NewStreakHandler(engine *services.GamificationService, userService *services.UserService) *StreakHandler {
	return &StreakHandler{
		engine:      engine,
		userService: userService,
	}
}

func (h *StreakHandler) GetStreaks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	r = r.WithContext(ctx)

	u, ok := currentUser(w, r, h.userService)
	if !ok {
		return
	}

	streaks, err := h.engine.GetStreak(ctx, u.ID)
	if err != nil {
		respondWithServiceError(w, "get streaks", err)
		return
	}

	respondWithJSON(w, http.StatusOK, streaks)
}

// CheckIn counts today's login towards the login streak.
func (h *StreakHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	r = r.WithContext(ctx)

	u, ok := currentUser(w, r, h.userService)
	if !ok {
		return
	}

	result, err := h.engine.RecordLogin(ctx, u.ID)
	if err != nil {
		respondWithServiceError(w, "record login", err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}
