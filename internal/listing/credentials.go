package listing

// CredentialSet holds the named credentials the backends need.
type CredentialSet struct {
	DraftingAPIKey         string `json:"draftingApiKey"`
	MarketplaceAppID       string `json:"marketplaceAppId"`
	MarketplaceSecret      string `json:"marketplaceSecret"`
	MarketplaceBearerToken string `json:"marketplaceBearerToken"`
}

// Credential field names, as used by commands and the stored blob.
const (
	CredentialDraftingAPIKey         = "draftingApiKey"
	CredentialMarketplaceAppID       = "marketplaceAppId"
	CredentialMarketplaceSecret      = "marketplaceSecret"
	CredentialMarketplaceBearerToken = "marketplaceBearerToken"
)

// CredentialFields lists the field names in display order.
var CredentialFields = []string{
	CredentialDraftingAPIKey,
	CredentialMarketplaceAppID,
	CredentialMarketplaceSecret,
	CredentialMarketplaceBearerToken,
}

// Get returns the value of a named field and whether the name is known.
func (c CredentialSet) Get(field string) (string, bool) {
	switch field {
	case CredentialDraftingAPIKey:
		return c.DraftingAPIKey, true
	case CredentialMarketplaceAppID:
		return c.MarketplaceAppID, true
	case CredentialMarketplaceSecret:
		return c.MarketplaceSecret, true
	case CredentialMarketplaceBearerToken:
		return c.MarketplaceBearerToken, true
	}
	return "", false
}

// With returns a copy with one named field replaced. Unknown names return
// the set unchanged and false.
func (c CredentialSet) With(field, value string) (CredentialSet, bool) {
	switch field {
	case CredentialDraftingAPIKey:
		c.DraftingAPIKey = value
	case CredentialMarketplaceAppID:
		c.MarketplaceAppID = value
	case CredentialMarketplaceSecret:
		c.MarketplaceSecret = value
	case CredentialMarketplaceBearerToken:
		c.MarketplaceBearerToken = value
	default:
		return c, false
	}
	return c, true
}

// WithDefaults fills empty fields from defaults.
func (c CredentialSet) WithDefaults(defaults CredentialSet) CredentialSet {
	for _, field := range CredentialFields {
		if v, _ := c.Get(field); v == "" {
			d, _ := defaults.Get(field)
			c, _ = c.With(field, d)
		}
	}
	return c
}

// HasMarketplaceAccess reports whether the marketplace can be queried,
// either with a bearer token or with app credentials to obtain one.
func (c CredentialSet) HasMarketplaceAccess() bool {
	return c.MarketplaceBearerToken != "" || (c.MarketplaceAppID != "" && c.MarketplaceSecret != "")
}
