package webhook_handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"archie-shopify-session-store/internal/domain"
	"archie-shopify-session-store/internal/ports"

	"github.com/rs/zerolog"
)

// scopesUpdatePayload is the body of an app/scopes_update delivery
type scopesUpdatePayload struct {
	Current  []string `json:"current"`
	Previous []string `json:"previous"`
}

// ScopesUpdateHandler keeps the stored offline session's scope in step with
// the scopes the merchant granted
type ScopesUpdateHandler struct {
	logger  zerolog.Logger
	storage ports.SessionStorage
}

// NewScopesUpdateHandler creates a new scopes update webhook handler
func NewScopesUpdateHandler(logger zerolog.Logger, storage ports.SessionStorage) *ScopesUpdateHandler {
	return &ScopesUpdateHandler{
		logger:  logger,
		storage: storage,
	}
}

// CanHandle returns true if this handler can process the given topic
func (h *ScopesUpdateHandler) CanHandle(topic string) bool {
	return topic == domain.TopicAppScopesUpdate
}

// Handle re-stores the shop's offline session with the current scopes
func (h *ScopesUpdateHandler) Handle(ctx context.Context, event *domain.WebhookEvent) error {
	var payload scopesUpdatePayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to parse scopes update webhook payload: %w", err)
	}

	session := h.storage.LoadSession(ctx, domain.OfflineSessionID(event.Shop))
	if session == nil {
		h.logger.Info().Str("shop", event.Shop).Msg("Scopes updated for shop without a session")
		return nil
	}

	session.Scope = strings.Join(payload.Current, ",")
	if !h.storage.StoreSession(ctx, session) {
		return fmt.Errorf("failed to store session %s", session.ID)
	}

	h.logger.Info().
		Str("shop", event.Shop).
		Strs("previous", payload.Previous).
		Strs("current", payload.Current).
		Msg("Session scope updated")
	return nil
}
