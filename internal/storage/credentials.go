package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/raine/listing-draft-bot/internal/listing"
	"github.com/rs/zerolog/log"
)

const (
	credentialsKeySuffix = "credentials"
	// Older releases stored only the marketplace token under this key.
	legacyTokenKeySuffix = "ebay_token"
)

// legacyFieldNames maps older blob field names onto current ones. When two
// aliases of one field are present, the earlier entry wins.
var legacyFieldNames = []struct {
	name  string
	field string
}{
	{"ebayToken", listing.CredentialMarketplaceBearerToken},
	{"ebayAuthToken", listing.CredentialMarketplaceBearerToken},
	{"geminiApiKey", listing.CredentialDraftingAPIKey},
	{"apiKey", listing.CredentialDraftingAPIKey},
	{"ebayAppId", listing.CredentialMarketplaceAppID},
	{"ebayCertId", listing.CredentialMarketplaceSecret},
}

// CredentialStore persists a CredentialSet per scope, sealed with AES-GCM.
type CredentialStore struct {
	kv  KV
	key []byte
	mu  sync.Mutex
}

// NewCredentialStore creates a store that seals blobs with key. A nil key
// stores plaintext JSON.
func NewCredentialStore(kv KV, key []byte) *CredentialStore {
	return &CredentialStore{kv: kv, key: key}
}

func credentialsKey(scope string) string {
	return scope + ":" + credentialsKeySuffix
}

func legacyTokenKey(scope string) string {
	return scope + ":" + legacyTokenKeySuffix
}

// Load returns the credentials for scope. Unreadable blobs degrade to an
// empty set with a warning; only KV failures are returned as errors.
// Legacy shapes are migrated and re-saved in the current shape.
func (s *CredentialStore) Load(scope string) (listing.CredentialSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var creds listing.CredentialSet
	migrated := false

	raw, ok, err := s.kv.Get(credentialsKey(scope))
	if err != nil {
		return creds, err
	}
	if ok && raw != "" {
		var legacy bool
		creds, legacy, err = s.decode(raw)
		if err != nil {
			log.Warn().Err(err).Str("scope", scope).Msg("failed to read stored credentials, ignoring")
			creds = listing.CredentialSet{}
		}
		migrated = legacy
	}

	token, ok, err := s.kv.Get(legacyTokenKey(scope))
	if err != nil {
		return creds, err
	}
	if ok {
		if creds.MarketplaceBearerToken == "" {
			creds.MarketplaceBearerToken = token
		}
		migrated = true
	}

	if migrated {
		if err := s.save(scope, creds); err != nil {
			return creds, err
		}
		if err := s.kv.Remove(legacyTokenKey(scope)); err != nil {
			return creds, err
		}
		log.Info().Str("scope", scope).Msg("migrated stored credentials to current format")
	}

	return creds, nil
}

// Save stores the credentials for scope.
func (s *CredentialStore) Save(scope string, creds listing.CredentialSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(scope, creds)
}

func (s *CredentialStore) save(scope string, creds listing.CredentialSet) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	value := string(data)
	if s.key != nil {
		value, err = Encrypt(data, s.key)
		if err != nil {
			return fmt.Errorf("failed to seal credentials: %w", err)
		}
	}
	return s.kv.Set(credentialsKey(scope), value)
}

// decode opens a stored blob. Plaintext JSON is accepted so that blobs
// written before sealing was enabled stay readable. legacy reports whether
// the blob needs rewriting.
func (s *CredentialStore) decode(raw string) (creds listing.CredentialSet, legacy bool, err error) {
	data := []byte(raw)
	if !json.Valid(data) {
		if s.key == nil {
			return creds, false, errors.New("credentials are sealed but no key is configured")
		}
		data, err = Decrypt(raw, s.key)
		if err != nil {
			return creds, false, err
		}
	} else if s.key != nil {
		legacy = true
	}

	var raws map[string]json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return creds, false, fmt.Errorf("failed to parse credentials: %w", err)
	}
	// Non-string values (expiry counters and the like) are skipped.
	fields := make(map[string]string, len(raws))
	for name, rawValue := range raws {
		var value string
		if json.Unmarshal(rawValue, &value) == nil {
			fields[name] = value
		}
	}

	// Current names win over legacy aliases of the same field.
	for _, field := range listing.CredentialFields {
		if value, ok := fields[field]; ok {
			creds, _ = creds.With(field, value)
		}
	}
	for _, alias := range legacyFieldNames {
		value, ok := fields[alias.name]
		if !ok {
			continue
		}
		legacy = true
		if existing, _ := creds.Get(alias.field); existing == "" {
			creds, _ = creds.With(alias.field, value)
		}
	}
	return creds, legacy, nil
}
