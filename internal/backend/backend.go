// Package backend builds pipeline collaborators from a credential set.
package backend

import (
	"context"
	"sync"

	"github.com/raine/listing-draft-bot/internal/ebay"
	"github.com/raine/listing-draft-bot/internal/listing"
	"github.com/raine/listing-draft-bot/internal/llm"
	"github.com/raine/listing-draft-bot/internal/market"
	"github.com/raine/listing-draft-bot/internal/pipeline"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Options configures a Factory.
type Options struct {
	// Defaults fill credentials the user has not set.
	Defaults      listing.CredentialSet
	MarketplaceID string
	EbayBaseURL   string
	// Limiter is shared by every marketplace client so that all users
	// together stay within the application's quota.
	Limiter *rate.Limiter
}

// Factory implements pipeline.Backends. Clients are cached per credential
// value so that repeated runs reuse tokens and connections.
type Factory struct {
	opts      Options
	newGemini func(ctx context.Context, apiKey string) (*llm.Gemini, error)

	mu      sync.Mutex
	gemini  map[string]*llm.Gemini
	markets map[listing.CredentialSet]*ebay.Client
}

var _ pipeline.Backends = (*Factory)(nil)

func NewFactory(opts Options) *Factory {
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Limit(2), 4)
	}
	return &Factory{
		opts:      opts,
		newGemini: llm.NewGemini,
		gemini:    make(map[string]*llm.Gemini),
		markets:   make(map[listing.CredentialSet]*ebay.Client),
	}
}

// Credentials returns creds with defaults applied.
func (f *Factory) Credentials(creds listing.CredentialSet) listing.CredentialSet {
	return creds.WithDefaults(f.opts.Defaults)
}

// Gemini returns a client for the drafting key, or nil when there is none
// or the client cannot be created.
func (f *Factory) Gemini(creds listing.CredentialSet) *llm.Gemini {
	g, err := f.geminiClient(creds)
	if err != nil {
		log.Error().Err(err).Msg("failed to create gemini client")
		return nil
	}
	return g
}

// geminiClient returns nil and no error when no drafting key is configured.
func (f *Factory) geminiClient(creds listing.CredentialSet) (*llm.Gemini, error) {
	key := f.Credentials(creds).DraftingAPIKey
	if key == "" {
		return nil, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.gemini[key]; ok {
		return g, nil
	}
	g, err := f.newGemini(context.Background(), key)
	if err != nil {
		return nil, err
	}
	f.gemini[key] = g
	return g, nil
}

// Researcher returns grounded research when a drafting key is present and
// otherwise aggregates marketplace comparables. A key whose client cannot
// be created yields a researcher that reports that error.
func (f *Factory) Researcher(creds listing.CredentialSet) pipeline.Researcher {
	g, err := f.geminiClient(creds)
	switch {
	case err != nil:
		return failedResearcher{err: err}
	case g != nil:
		return g
	}
	return market.NewComparablesResearcher(f.Marketplace(creds))
}

// Marketplace returns an eBay client, or a marketplace with no results
// when no marketplace credentials are configured.
func (f *Factory) Marketplace(creds listing.CredentialSet) pipeline.Marketplace {
	creds = f.Credentials(creds)
	if !creds.HasMarketplaceAccess() {
		return noMarketplace{}
	}
	key := listing.CredentialSet{
		MarketplaceAppID:       creds.MarketplaceAppID,
		MarketplaceSecret:      creds.MarketplaceSecret,
		MarketplaceBearerToken: creds.MarketplaceBearerToken,
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.markets[key]; ok {
		return c
	}
	c := ebay.NewClient(ebay.ClientOpts{
		BaseURL:       f.opts.EbayBaseURL,
		MarketplaceID: f.opts.MarketplaceID,
		BearerToken:   creds.MarketplaceBearerToken,
		AppID:         creds.MarketplaceAppID,
		CertID:        creds.MarketplaceSecret,
		Limiter:       f.opts.Limiter,
	})
	f.markets[key] = c
	return c
}

// Drafter returns the generative drafter, or *pipeline.MissingCredentialError
// when no drafting key is configured. Client construction failures are
// returned as is.
func (f *Factory) Drafter(creds listing.CredentialSet) (pipeline.Drafter, error) {
	g, err := f.geminiClient(creds)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, &pipeline.MissingCredentialError{Credential: listing.CredentialDraftingAPIKey}
	}
	return g, nil
}

type failedResearcher struct {
	err error
}

func (r failedResearcher) Research(ctx context.Context, query string) (*listing.ResearchResult, error) {
	return nil, r.err
}

type noMarketplace struct{}

func (noMarketplace) FindComparables(ctx context.Context, query string, hints listing.MarketData) ([]listing.ComparableItem, error) {
	log.Warn().Str("query", query).Msg("no marketplace credentials configured, skipping comparables search")
	return []listing.ComparableItem{}, nil
}
