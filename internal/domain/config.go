package domain

// AppConfig is the configuration snapshot captured once per process from the
// first environment binding.
type AppConfig struct {
	APIKey            string
	APISecret         string
	Scopes            []string
	AppURL            string
	CustomShopDomains []string
	APIVersion        string
	AuthPathPrefix    string
}
