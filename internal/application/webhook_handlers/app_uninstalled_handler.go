package webhook_handlers

import (
	"context"
	"fmt"

	"archie-shopify-session-store/internal/domain"
	"archie-shopify-session-store/internal/ports"

	"github.com/rs/zerolog"
)

// AppUninstalledHandler removes every session of a shop that uninstalled the app
type AppUninstalledHandler struct {
	logger  zerolog.Logger
	storage ports.SessionStorage
}

// NewAppUninstalledHandler creates a new app uninstalled webhook handler
func NewAppUninstalledHandler(logger zerolog.Logger, storage ports.SessionStorage) *AppUninstalledHandler {
	return &AppUninstalledHandler{
		logger:  logger,
		storage: storage,
	}
}

// CanHandle returns true if this handler can process the given topic
func (h *AppUninstalledHandler) CanHandle(topic string) bool {
	return topic == domain.TopicAppUninstalled
}

// Handle processes an app uninstalled webhook event. The webhook may be
// delivered more than once, so a shop without sessions is not an error.
func (h *AppUninstalledHandler) Handle(ctx context.Context, event *domain.WebhookEvent) error {
	sessions := h.storage.FindSessionsByShop(ctx, event.Shop)
	if len(sessions) == 0 {
		h.logger.Info().Str("shop", event.Shop).Msg("App uninstalled - no sessions to remove")
		return nil
	}

	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	if !h.storage.DeleteSessions(ctx, ids) {
		return fmt.Errorf("failed to delete sessions for shop %s", event.Shop)
	}

	h.logger.Info().
		Str("shop", event.Shop).
		Int("sessions", len(ids)).
		Msg("App uninstalled - sessions removed")
	return nil
}
