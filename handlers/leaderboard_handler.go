package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"spendSmartAPI/internal/leaderboard"
	"spendSmartAPI/services"
)

const (
	defaultLeaderboardSize = 10
	maxLeaderboardSize     = 100
)

// StreakRanking reads the longest-streak leaderboard.
type StreakRanking interface {
	Top(ctx context.Context, limit int64) (*leaderboard.Leaderboard, error)
	Position(ctx context.Context, userID uuid.UUID) (*leaderboard.LeaderboardEntry, error)
}

type LeaderboardHandler struct {
	board       StreakRanking
	userService *services.UserService
}

func NewLeaderboardHandler(board StreakRanking, userService *services.UserService) *LeaderboardHandler {
	return &LeaderboardHandler{
		board:       board,
		userService: userService,
	}
}

func (h *LeaderboardHandler) GetStreakLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	r = r.WithContext(ctx)

	u, ok := currentUser(w, r, h.userService)
	if !ok {
		return
	}

	limit := defaultLeaderboardSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondWithError(w, http.StatusBadRequest, "Query parameter 'limit' must be a positive integer")
			return
		}
		limit = min(n, maxLeaderboardSize)
	}

	board, err := h.board.Top(ctx, int64(limit))
	if err != nil {
		log.Printf("Leaderboard: failed to read top %d: %v", limit, err)
		respondWithError(w, http.StatusServiceUnavailable, "Leaderboard unavailable")
		return
	}

	pos, err := h.board.Position(ctx, u.ID)
	if err != nil {
		log.Printf("Leaderboard: failed to read position for %s: %v", u.ID, err)
	}
	board.UserPosition = pos

	respondWithJSON(w, http.StatusOK, board)
}
