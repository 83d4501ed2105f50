package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/raine/listing-draft-bot/internal/listing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// Flags are package-level and survive between executions
	runDescription, runCategory, runImages, runJSON = "", "", nil, false
	historyLimit = 10

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func clearCredentialEnv(t *testing.T) {
	for _, key := range []string{"GEMINI_API_KEY", "EBAY_APP_ID", "EBAY_CERT_ID", "EBAY_BEARER_TOKEN"} {
		t.Setenv(key, "")
	}
}

func TestRunWithoutCredentialsUsesFallback(t *testing.T) {
	clearCredentialEnv(t)
	db := filepath.Join(t.TempDir(), "cli.db")

	out, err := execute(t, "run", "--db", db, "--json", "-d", "Vintage brass desk lamp", "-c", "Lamps")
	require.NoError(t, err)

	var d listing.ListingDraft
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.NotEmpty(t, d.SuggestedTitle)
	assert.Equal(t, listing.NotAvailable, d.SuggestedPriceRange)
	assert.Equal(t, "Lamps", d.SuggestedCategory)
	assert.Empty(t, d.ExampleSoldListings)

	out, err = execute(t, "history", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, d.SuggestedTitle)

	out, err = execute(t, "clear", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "Draft history cleared.\n", out)

	out, err = execute(t, "history", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "No drafts yet.\n", out)
}

func TestRunRequiresItem(t *testing.T) {
	clearCredentialEnv(t)
	db := filepath.Join(t.TempDir(), "cli.db")

	_, err := execute(t, "run", "--db", db, "-d", "Lamp")
	assert.EqualError(t, err, "--description and --category (or --image) are required")
}

func TestRunImageRequiresKey(t *testing.T) {
	clearCredentialEnv(t)
	db := filepath.Join(t.TempDir(), "cli.db")

	_, err := execute(t, "run", "--db", db, "-i", "photo.jpg")
	assert.EqualError(t, err, "GEMINI_API_KEY is required to identify images")
}
