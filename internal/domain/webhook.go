package domain

// Webhook topics the app subscribes to on installation.
const (
	TopicAppUninstalled  = "app/uninstalled"
	TopicAppScopesUpdate = "app/scopes_update"
)

// WebhookEvent represents a verified webhook delivery
type WebhookEvent struct {
	Topic      string `json:"topic"`
	Shop       string `json:"shop"`
	WebhookID  string `json:"webhook_id"`
	APIVersion string `json:"api_version"`
	Payload    []byte `json:"payload"`
}
