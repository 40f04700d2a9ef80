package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"archie-shopify-session-store/internal/application"
	"archie-shopify-session-store/internal/domain"
	securitymiddleware "archie-shopify-session-store/internal/infrastructure/middleware"

	"github.com/rs/zerolog"
)

type handlers struct {
	manager     *application.Manager
	dispatcher  *application.WebhookDispatcher
	healthcheck func(ctx context.Context) error
	logger      zerolog.Logger
}

// health godoc
// @Summary Health check
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	state := h.manager.State().String()
	if h.healthcheck != nil {
		if err := h.healthcheck(r.Context()); err != nil {
			h.logger.Warn().Err(err).Msg("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "manager": state})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "manager": state})
}

// login godoc
// @Summary Start the OAuth handshake for a shop
// @Param shop query string true "Shop domain"
// @Success 302
// @Failure 400 {string} string
// @Router /auth/login [get]
func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	h.manager.Login(w, r)
}

// callback godoc
// @Summary Complete the OAuth handshake
// @Success 302
// @Failure 400 {string} string
// @Router /auth/callback [get]
func (h *handlers) callback(w http.ResponseWriter, r *http.Request) {
	session, err := h.manager.Callback(r.Context(), r.URL)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidHMAC),
			errors.Is(err, domain.ErrInvalidState),
			errors.Is(err, domain.ErrInvalidShop):
			h.logger.Warn().Err(err).Str("shop", r.URL.Query().Get("shop")).Msg("OAuth callback rejected")
			http.Error(w, "Invalid OAuth callback", http.StatusBadRequest)
		default:
			h.logger.Error().Err(err).Str("shop", r.URL.Query().Get("shop")).Msg("OAuth callback failed")
			http.Error(w, securitymiddleware.UnexpectedErrorMessage, http.StatusInternalServerError)
		}
		return
	}

	apiKey := h.manager.App().Config().APIKey
	http.Redirect(w, r, embeddedAppURL(session.Shop, apiKey), http.StatusFound)
}

// webhook godoc
// @Summary Receive a webhook delivery
// @Success 200 {object} map[string]string
// @Failure 401 {string} string
// @Router /webhooks [post]
func (h *handlers) webhook(w http.ResponseWriter, r *http.Request) {
	wctx, err := h.manager.Authenticate().Webhook(r)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidHMAC) {
			h.logger.Warn().Err(err).Msg("Webhook signature verification failed")
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}
		h.logger.Warn().Err(err).Msg("Invalid webhook request")
		http.Error(w, "Invalid webhook request", http.StatusBadRequest)
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), wctx.Event); err != nil {
		h.logger.Error().
			Err(err).
			Str("topic", wctx.Event.Topic).
			Str("shop", wctx.Event.Shop).
			Msg("Failed to dispatch webhook event")

		// 500 makes the platform retry the delivery
		http.Error(w, "Failed to process webhook event", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"received": "true"})
}

// app serves the embedded app entry. Unauthenticated requests for a valid
// shop are sent through the login flow.
func (h *handlers) app(w http.ResponseWriter, r *http.Request) {
	h.manager.AddDocumentResponseHeaders(w, r)

	admin, err := h.manager.Authenticate().Admin(r)
	if err != nil {
		h.redirectToLogin(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"shop":  admin.Session.Shop,
		"scope": admin.Session.Scope,
	})
}

// sessions godoc
// @Summary List the sessions of the authenticated shop
// @Security BearerAuth
// @Success 200 {array} domain.Session
// @Failure 401 {object} map[string]string
// @Router /api/sessions [get]
func (h *handlers) sessions(w http.ResponseWriter, r *http.Request) {
	admin, err := h.manager.Authenticate().Admin(r)
	if err != nil {
		h.logger.Debug().Err(err).Msg("Session listing unauthenticated")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	sessions := h.manager.SessionStorage().FindSessionsByShop(r.Context(), admin.Session.Shop)
	writeJSON(w, http.StatusOK, sessions)
}

func (h *handlers) redirectToLogin(w http.ResponseWriter, r *http.Request, err error) {
	cfg := h.manager.App().Config()
	shop, shopErr := domain.SanitizeShop(r.URL.Query().Get("shop"), cfg.CustomShopDomains)
	if shopErr != nil {
		h.logger.Debug().Err(err).Msg("Unauthenticated request without a valid shop")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, cfg.AuthPathPrefix+"/login?shop="+url.QueryEscape(shop), http.StatusFound)
}

func embeddedAppURL(shop, apiKey string) string {
	return fmt.Sprintf("https://%s/admin/apps/%s", shop, url.PathEscape(apiKey))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
