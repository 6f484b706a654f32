package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"spendSmartAPI/internal/expense"
	"spendSmartAPI/services"
)

type ExpenseHandler struct {
	engine      *services.GamificationService
	userService *services.UserService
}

func NewExpenseHandler(engine *services.GamificationService, userService *services.UserService) *ExpenseHandler {
	return &ExpenseHandler{
		engine:      engine,
		userService: userService,
	}
}

// AddExpense records a spending event and reports the challenge progress and
// badges it caused.
func (h *ExpenseHandler) AddExpense(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	r = r.WithContext(ctx)

	u, ok := currentUser(w, r, h.userService)
	if !ok {
		return
	}

	var req expense.CreateExpenseRequest
	if !decodeAndValidate(w, r, &req, false) {
		return
	}

	result, err := h.engine.RecordEvent(ctx, u.ID, &req)
	if err != nil {
		respondWithServiceError(w, "record expense", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}

func (h *ExpenseHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	r = r.WithContext(ctx)

	u, ok := currentUser(w, r, h.userService)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondWithError(w, http.StatusBadRequest, "Query parameter 'limit' must be a positive integer")
			return
		}
		limit = n
	}

	expenses, err := h.engine.ListExpenses(ctx, u.ID, limit)
	if err != nil {
		respondWithServiceError(w, "list expenses", err)
		return
	}

	respondWithJSON(w, http.StatusOK, expenses)
}

// UpdateExpense replaces the amount, mood, category and optionally the date
// of one of the caller's expenses.
func (h *ExpenseHandler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	r = r.WithContext(ctx)

	u, ok := currentUser(w, r, h.userService)
	if !ok {
		return
	}

	expenseID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid expense id")
		return
	}

	var req expense.UpdateExpenseRequest
	if !decodeAndValidate(w, r, &req, false) {
		return
	}

	updated, err := h.engine.UpdateExpense(ctx, u.ID, expenseID, &req)
	if err != nil {
		respondWithServiceError(w, "update expense", err)
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *ExpenseHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	r = r.WithContext(ctx)

	u, ok := currentUser(w, r, h.userService)
	if !ok {
		return
	}

	expenseID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid expense id")
		return
	}

	if err := h.engine.DeleteExpense(ctx, u.ID, expenseID); err != nil {
		respondWithServiceError(w, "delete expense", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Expense deleted successfully"})
}
