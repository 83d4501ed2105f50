package storage

import (
	"strings"
	"testing"

	"github.com/raine/listing-draft-bot/internal/listing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := DeriveKey("test-passphrase")
	require.NoError(t, err)
	return key
}

func TestCredentialStore_RoundTripSealed(t *testing.T) {
	kv := NewMemoryKV()
	store := NewCredentialStore(kv, testKey(t))

	creds := listing.CredentialSet{DraftingAPIKey: "gem-key", MarketplaceBearerToken: "tok"}
	require.NoError(t, store.Save("user1", creds))

	raw, ok, _ := kv.Get("user1:credentials")
	require.True(t, ok)
	assert.NotContains(t, raw, "gem-key")

	loaded, err := store.Load("user1")
	require.NoError(t, err)
	assert.Equal(t, creds, loaded)

	empty, err := store.Load("user2")
	require.NoError(t, err)
	assert.Equal(t, listing.CredentialSet{}, empty)
}

func TestCredentialStore_MigratesLegacyShapes(t *testing.T) {
	tests := []struct {
		name string
		blob string
		want listing.CredentialSet
	}{
		{
			name: "renamed fields",
			blob: `{"ebayToken":"old-token","geminiApiKey":"gem"}`,
			want: listing.CredentialSet{MarketplaceBearerToken: "old-token", DraftingAPIKey: "gem"},
		},
		{
			name: "non-string values alongside token",
			blob: `{"ebayToken":"abc","expiresIn":7200,"scopes":["buy"],"refreshable":true}`,
			want: listing.CredentialSet{MarketplaceBearerToken: "abc"},
		},
		{
			name: "non-string value under a known name",
			blob: `{"marketplaceAppId":42,"ebayAppId":"app-1","ebayCertId":"cert-1"}`,
			want: listing.CredentialSet{MarketplaceAppID: "app-1", MarketplaceSecret: "cert-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := NewMemoryKV()
			key := testKey(t)
			require.NoError(t, kv.Set("user1:credentials", tt.blob))

			store := NewCredentialStore(kv, key)
			creds, err := store.Load("user1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, creds)

			raw, _, _ := kv.Get("user1:credentials")
			plain, err := Decrypt(raw, key)
			require.NoError(t, err)
			assert.NotContains(t, string(plain), "ebayToken")
			assert.NotContains(t, string(plain), "expiresIn")

			again, err := store.Load("user1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, again)
		})
	}
}

func TestCredentialStore_LegacyAliasOrderIsFixed(t *testing.T) {
	// Map iteration order must not decide which alias wins.
	for i := 0; i < 20; i++ {
		kv := NewMemoryKV()
		require.NoError(t, kv.Set("u:credentials", `{"apiKey":"second","geminiApiKey":"first","ebayAuthToken":"b","ebayToken":"a"}`))

		creds, err := NewCredentialStore(kv, nil).Load("u")
		require.NoError(t, err)
		assert.Equal(t, "first", creds.DraftingAPIKey)
		assert.Equal(t, "a", creds.MarketplaceBearerToken)
	}
}

func TestCredentialStore_MigratesLegacyTokenKey(t *testing.T) {
	kv := NewMemoryKV()
	require.NoError(t, kv.Set("user1:ebay_token", "raw-token"))

	store := NewCredentialStore(kv, testKey(t))
	creds, err := store.Load("user1")
	require.NoError(t, err)
	assert.Equal(t, "raw-token", creds.MarketplaceBearerToken)

	_, ok, _ := kv.Get("user1:ebay_token")
	assert.False(t, ok)

	again, err := store.Load("user1")
	require.NoError(t, err)
	assert.Equal(t, creds, again)
}

func TestCredentialStore_CurrentNameWinsOverLegacy(t *testing.T) {
	kv := NewMemoryKV()
	require.NoError(t, kv.Set("u:credentials", `{"ebayToken":"old","marketplaceBearerToken":"new"}`))

	creds, err := NewCredentialStore(kv, nil).Load("u")
	require.NoError(t, err)
	assert.Equal(t, "new", creds.MarketplaceBearerToken)
}

func TestCredentialStore_UnreadableBlobDegrades(t *testing.T) {
	kv := NewMemoryKV()
	require.NoError(t, kv.Set("u:credentials", "definitely-not-sealed"))

	creds, err := NewCredentialStore(kv, testKey(t)).Load("u")
	require.NoError(t, err)
	assert.Equal(t, listing.CredentialSet{}, creds)
}

func TestDeriveKey(t *testing.T) {
	a, err := DeriveKey("secret")
	require.NoError(t, err)
	b, err := DeriveKey("secret")
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.Equal(t, a, b)

	_, err = DeriveKey("")
	assert.Error(t, err)
}

func TestEncryptDecrypt(t *testing.T) {
	key := testKey(t)
	sealed, err := Encrypt([]byte("hello"), key)
	require.NoError(t, err)
	assert.False(t, strings.Contains(sealed, "hello"))

	plain, err := Decrypt(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(plain))

	other, _ := DeriveKey("other")
	_, err = Decrypt(sealed, other)
	assert.Error(t, err)
}
