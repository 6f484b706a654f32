package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"spendSmartAPI/internal/user"
	"spendSmartAPI/services"
)

const webhookTolerance = 5 * time.Minute

type WebhookHandler struct {
	userService *services.UserService
	engine      *services.GamificationService
	secret      string
	now         func() time.Time
}

// NewWebhookHandler verifies Svix signatures with secret. An empty secret
// skips verification, which is only meant for local development.
func NewWebhookHandler(userService *services.UserService, engine *services.GamificationService, secret string) *WebhookHandler {
	return &WebhookHandler{
		userService: userService,
		engine:      engine,
		secret:      secret,
		now:         time.Now,
	}
}

func (h *WebhookHandler) HandleClerkWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Printf("Error reading webhook body: %v", err)
		http.Error(w, "Error reading body", http.StatusBadRequest)
		return
	}

	if !h.verifyWebhookSignature(r.Header, body) {
		log.Println("Invalid webhook signature")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event user.ClerkWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("Error parsing webhook: %v", err)
		http.Error(w, "Error parsing webhook", http.StatusBadRequest)
		return
	}

	log.Printf("Received webhook event: %s", event.Type)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var handle func(context.Context, json.RawMessage) error
	switch event.Type {
	case "user.created":
		handle = h.handleUserCreated
	case "user.updated":
		handle = h.handleUserUpdated
	case "user.deleted":
		handle = h.handleUserDeleted
	case "session.created":
		handle = h.handleSessionCreated
	default:
		log.Printf("Unhandled webhook event type: %s", event.Type)
	}

	if handle != nil {
		if err := handle(ctx, event.Data); err != nil {
			log.Printf("Error handling %s: %v", event.Type, err)
			if errors.Is(err, services.ErrValidation) {
				http.Error(w, "Invalid webhook payload", http.StatusBadRequest)
				return
			}
			http.Error(w, "Error processing webhook", http.StatusInternalServerError)
			return
		}
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func createRequestFrom(data user.ClerkUserData) *user.CreateUserRequest {
	req := &user.CreateUserRequest{
		ClerkID:   data.ID,
		Username:  data.Username,
		FirstName: data.FirstName,
		LastName:  data.LastName,
		ImageURL:  data.ImageURL,
	}
	if req.Username == "" {
		req.Username = data.FirstName + data.LastName
	}
	if req.ImageURL == "" {
		req.ImageURL = data.ProfileImageURL
	}
	if email, ok := data.PrimaryEmail(); ok {
		req.Email = email.EmailAddress
		req.EmailVerified = email.Verification.Status == "verified"
	}
	return req
}

func (h *WebhookHandler) handleUserCreated(ctx context.Context, data json.RawMessage) error {
	var userData user.ClerkUserData
	if err := json.Unmarshal(data, &userData); err != nil {
		return fmt.Errorf("failed to unmarshal user data: %w", err)
	}

	u, err := h.userService.CreateUser(ctx, createRequestFrom(userData))
	if err != nil {
		return fmt.Errorf("failed to create user in database: %w", err)
	}

	log.Printf("Successfully created user: %s (Clerk ID: %s)", u.Email, u.ClerkID)
	return nil
}

// handleUserUpdated refreshes identity fields. An update for a user we never
// saw provisions it instead.
func (h *WebhookHandler) handleUserUpdated(ctx context.Context, data json.RawMessage) error {
	var userData user.ClerkUserData
	if err := json.Unmarshal(data, &userData); err != nil {
		return fmt.Errorf("failed to unmarshal user data: %w", err)
	}

	req := createRequestFrom(userData)
	_, err := h.userService.UpdateProfileByClerkID(ctx, userData.ID, &user.UpdateProfileRequest{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		ImageURL:  req.ImageURL,
	})
	if errors.Is(err, services.ErrUserNotFound) {
		_, err = h.userService.CreateUser(ctx, req)
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	log.Printf("Successfully updated user: Clerk ID: %s", userData.ID)
	return nil
}

func (h *WebhookHandler) handleUserDeleted(ctx context.Context, data json.RawMessage) error {
	var userData struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &userData); err != nil {
		return fmt.Errorf("failed to unmarshal user data: %w", err)
	}

	err := h.userService.DeleteUserByClerkID(ctx, userData.ID)
	if errors.Is(err, services.ErrUserNotFound) {
		log.Printf("Delete for unknown user ignored: Clerk ID: %s", userData.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	log.Printf("Successfully deleted user: Clerk ID: %s", userData.ID)
	return nil
}

// handleSessionCreated counts a sign-in towards the login streak.
func (h *WebhookHandler) handleSessionCreated(ctx context.Context, data json.RawMessage) error {
	var session user.ClerkSessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return fmt.Errorf("failed to unmarshal session data: %w", err)
	}

	u, err := h.userService.GetUserByClerkID(ctx, session.UserID)
	if errors.Is(err, services.ErrUserNotFound) {
		log.Printf("Session for unknown user ignored: Clerk ID: %s", session.UserID)
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := h.engine.RecordLogin(ctx, u.ID); err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// verifyWebhookSignature checks the Svix v1 signature over
// "<svix-id>.<svix-timestamp>.<body>".
func (h *WebhookHandler) verifyWebhookSignature(header http.Header, body []byte) bool {
	if h.secret == "" {
		log.Println("CLERK_WEBHOOK_SECRET not set, skipping signature verification")
		return true
	}

	svixID := header.Get("svix-id")
	svixTimestamp := header.Get("svix-timestamp")
	svixSignature := header.Get("svix-signature")

	if svixID == "" || svixTimestamp == "" || svixSignature == "" {
		log.Println("Missing webhook signature headers")
		return false
	}

	ts, err := strconv.ParseInt(svixTimestamp, 10, 64)
	if err != nil {
		return false
	}
	sent := time.Unix(ts, 0)
	if d := h.now().Sub(sent); d > webhookTolerance || d < -webhookTolerance {
		log.Printf("Webhook timestamp outside tolerance: %s", sent)
		return false
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(h.secret, "whsec_"))
	if err != nil {
		log.Printf("CLERK_WEBHOOK_SECRET is not valid base64: %v", err)
		return false
	}

	expected := signWebhook(key, svixID, svixTimestamp, body)

	// the header may carry several space separated signatures
	for _, candidate := range strings.Fields(svixSignature) {
		version, sig, ok := strings.Cut(candidate, ",")
		if !ok || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return true
		}
	}
	return false
}

func signWebhook(key []byte, id, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id + "." + timestamp + "."))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
