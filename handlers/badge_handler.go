package handlers

import (
	"context"
	"net/http"
	"time"

	"spendSmartAPI/services"
)

type BadgeHandler struct {
	engine      *services.GamificationService
	userService *services.UserService
}

func NewBadgeHandler(engine *services.GamificationService, userService *services.UserService) *BadgeHandler {
	return &BadgeHandler{
		engine:      engine,
		userService: userService,
	}
}

// GetBadges lists the badge catalog, flagged with what the caller unlocked.
func (h *BadgeHandler) GetBadges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	r = r.WithContext(ctx)

	u, ok := currentUser(w, r, h.userService)
	if !ok {
		return
	}

	badges, err := h.engine.AchievementsWithStatus(ctx, u.ID)
	if err != nil {
		respondWithServiceError(w, "list badges", err)
		return
	}

	respondWithJSON(w, http.StatusOK, badges)
}

func (h *BadgeHandler) GetMyBadges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	r = r.WithContext(ctx)

	u, ok := currentUser(w, r, h.userService)
	if !ok {
		return
	}

	awards, err := h.engine.ListAwards(ctx, u.ID)
	if err != nil {
		respondWithServiceError(w, "list awards", err)
		return
	}

	respondWithJSON(w, http.StatusOK, awards)
}
