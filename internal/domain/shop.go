package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var defaultShopDomains = []string{"myshopify.com", "shopify.com", "myshopify.io", "shop.dev"}

var adminStorePattern = regexp.MustCompile(`^admin\.shopify\.com/store/([a-zA-Z0-9][a-zA-Z0-9-_]*)/?$`)

// SanitizeShop normalizes a shop hostname and validates it against the
// platform domains plus any configured custom domains.
func SanitizeShop(shop string, customDomains []string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(shop))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")

	if m := adminStorePattern.FindStringSubmatch(s); m != nil {
		return m[1] + ".myshopify.com", nil
	}
	s = strings.TrimRight(s, "/")

	domains := make([]string, 0, len(defaultShopDomains)+len(customDomains))
	domains = append(domains, defaultShopDomains...)
	for _, d := range customDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}

	for _, d := range domains {
		suffix := "." + d
		if !strings.HasSuffix(s, suffix) {
			continue
		}
		name := strings.TrimSuffix(s, suffix)
		if shopNamePattern.MatchString(name) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidShop, shop)
}

var shopNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-_]*$`)
