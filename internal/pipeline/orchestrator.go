// Package pipeline sequences market research, comparables retrieval and
// draft synthesis for an identified item.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raine/listing-draft-bot/internal/draft"
	"github.com/raine/listing-draft-bot/internal/listing"
	"github.com/raine/listing-draft-bot/internal/market"
	"github.com/rs/zerolog/log"
)

// Researcher performs grounded market research for a query.
type Researcher interface {
	Research(ctx context.Context, query string) (*listing.ResearchResult, error)
}

// Marketplace finds comparable sold items. Zero results is not an error.
type Marketplace interface {
	FindComparables(ctx context.Context, query string, hints listing.MarketData) ([]listing.ComparableItem, error)
}

// Drafter produces a listing draft with a generative backend.
type Drafter interface {
	Draft(ctx context.Context, ident listing.ItemIdentification, md listing.MarketData, comps []listing.ComparableItem) (*listing.ListingDraft, error)
}

// Backends builds collaborator handles from the current credentials.
// Drafter returns *MissingCredentialError when the drafting key is absent.
type Backends interface {
	Researcher(creds listing.CredentialSet) Researcher
	Marketplace(creds listing.CredentialSet) Marketplace
	Drafter(creds listing.CredentialSet) (Drafter, error)
}

// HistoryWriter persists finished drafts.
type HistoryWriter interface {
	Save(d listing.ListingDraft) error
}

// ProgressEvent describes a state transition of one run.
type ProgressEvent struct {
	RunID      string
	Generation uint64
	State      State
	Message    string
	Err        error
}

// ProgressCallback receives progress events. Events from runs that were
// superseded mid-flight may still arrive; compare Generation to filter.
type ProgressCallback func(event ProgressEvent)

// Options configures an Orchestrator.
type Options struct {
	Backends Backends
	History  HistoryWriter
	Fallback draft.Synthesizer

	OnProgress ProgressCallback
	// OnDraft is called once per winning run with the persisted draft.
	OnDraft func(d listing.ListingDraft)
	// OnError is called once per winning run that failed.
	OnError func(err error)
}

// Orchestrator runs the draft pipeline. A new trigger supersedes any run in
// flight: the older run keeps going (its calls are not aborted) but its
// result is dropped at the next resume point, so at most one run wins.
type Orchestrator struct {
	backends Backends
	history  HistoryWriter
	fallback draft.Synthesizer

	onProgress ProgressCallback
	onDraft    func(d listing.ListingDraft)
	onError    func(err error)

	// emitMu serializes completion (persist + emit) across runs.
	// Lock order: emitMu before mu.
	emitMu sync.Mutex

	mu         sync.Mutex
	generation uint64
	ident      *listing.ItemIdentification
	creds      listing.CredentialSet
	state      State
	lastErr    error
	lastDraft  *listing.ListingDraft

	wg sync.WaitGroup
}

// New creates an orchestrator in the Idle state.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		backends:   opts.Backends,
		history:    opts.History,
		fallback:   opts.Fallback,
		onProgress: opts.OnProgress,
		onDraft:    opts.OnDraft,
		onError:    opts.OnError,
		state:      StateIdle,
	}
}

// State returns the state of the most recent run.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Err returns the error of the most recent run if it failed.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// LastDraft returns the draft of the most recent successful run.
func (o *Orchestrator) LastDraft() *listing.ListingDraft {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastDraft
}

// Generation returns the token of the latest trigger. Progress events with
// a different generation belong to superseded runs.
func (o *Orchestrator) Generation() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

// Identification returns the current identification, if any.
func (o *Orchestrator) Identification() (listing.ItemIdentification, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ident == nil {
		return listing.ItemIdentification{}, false
	}
	return *o.ident, true
}

// SetIdentification replaces the current identification and starts a run in
// the background when it is complete. Any run in flight is superseded even if
// the new identification is incomplete. Returns whether a run was started.
func (o *Orchestrator) SetIdentification(ctx context.Context, ident listing.ItemIdentification) bool {
	ident = trimIdentification(ident)
	if !ident.Complete() {
		o.mu.Lock()
		o.generation++
		o.ident = nil
		o.state = StateIdle
		o.mu.Unlock()
		return false
	}
	o.start(ctx, ident)
	return true
}

// SetCredentials replaces the credentials. When an identification is
// present a new run is started with them. Returns whether a run was started.
func (o *Orchestrator) SetCredentials(ctx context.Context, creds listing.CredentialSet) bool {
	o.mu.Lock()
	o.creds = creds
	var ident *listing.ItemIdentification
	if o.ident != nil {
		cp := *o.ident
		ident = &cp
	}
	o.mu.Unlock()

	if ident == nil {
		return false
	}
	o.start(ctx, *ident)
	return true
}

// Wait blocks until every background run has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) start(ctx context.Context, ident listing.ItemIdentification) {
	r := o.begin(ident)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_, _ = o.execute(ctx, r)
	}()
}

// Run executes one pipeline pass synchronously and supersedes any run in
// flight. It returns ErrSuperseded if a newer run starts before it finishes.
func (o *Orchestrator) Run(ctx context.Context, ident listing.ItemIdentification) (*listing.ListingDraft, error) {
	ident = trimIdentification(ident)
	if !ident.Complete() {
		return nil, ErrIncompleteIdentification
	}
	return o.execute(ctx, o.begin(ident))
}

// run carries the per-run token and inputs.
type run struct {
	id    string
	gen   uint64
	ident listing.ItemIdentification
	creds listing.CredentialSet
}

// begin bumps the generation, which supersedes all earlier runs.
func (o *Orchestrator) begin(ident listing.ItemIdentification) run {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.generation++
	cp := ident
	o.ident = &cp
	o.state = StateGrounding
	o.lastErr = nil

	return run{
		id:    uuid.NewString(),
		gen:   o.generation,
		ident: ident,
		creds: o.creds,
	}
}

// advance moves the current run to the next state. Returns false when r has
// been superseded.
func (o *Orchestrator) advance(r run, next State) bool {
	o.mu.Lock()
	if o.generation != r.gen {
		o.mu.Unlock()
		return false
	}
	o.state = next
	o.mu.Unlock()

	log.Info().Str("runId", r.id).Uint64("generation", r.gen).Str("state", next.String()).Msg("pipeline state changed")
	o.progress(r, next, "", nil)
	return true
}

func (o *Orchestrator) progress(r run, state State, msg string, err error) {
	if o.onProgress == nil {
		return
	}
	o.onProgress(ProgressEvent{RunID: r.id, Generation: r.gen, State: state, Message: msg, Err: err})
}

func (o *Orchestrator) superseded(r run, stage State) error {
	log.Debug().Str("runId", r.id).Uint64("generation", r.gen).Str("stage", stage.String()).Msg("discarding superseded pipeline result")
	return ErrSuperseded
}

func (o *Orchestrator) execute(ctx context.Context, r run) (*listing.ListingDraft, error) {
	started := time.Now()
	log.Info().
		Str("runId", r.id).
		Uint64("generation", r.gen).
		Str("description", r.ident.Description).
		Str("category", r.ident.Category).
		Msg("pipeline run started")
	o.progress(r, StateGrounding, "", nil)

	// Grounding
	md, err := o.research(ctx, r)
	if !o.isCurrent(r) {
		return nil, o.superseded(r, StateGrounding)
	}
	if err != nil {
		return nil, o.fail(r, err)
	}
	if !o.advance(r, StateRetrievingComparables) {
		return nil, o.superseded(r, StateGrounding)
	}

	// Comparables
	comps, err := o.comparables(ctx, r, md)
	if !o.isCurrent(r) {
		return nil, o.superseded(r, StateRetrievingComparables)
	}
	if err != nil {
		return nil, o.fail(r, err)
	}
	if !o.advance(r, StateSynthesizing) {
		return nil, o.superseded(r, StateRetrievingComparables)
	}

	// Synthesis
	d, err := o.synthesize(ctx, r, md, comps)
	if !o.isCurrent(r) {
		return nil, o.superseded(r, StateSynthesizing)
	}
	if err != nil {
		return nil, o.fail(r, err)
	}

	if err := o.complete(r, *d); err != nil {
		return nil, err
	}

	log.Info().
		Str("runId", r.id).
		Uint64("generation", r.gen).
		Str("title", d.SuggestedTitle).
		Str("priceRange", d.SuggestedPriceRange).
		Int("comparables", len(d.ExampleSoldListings)).
		Dur("elapsed", time.Since(started)).
		Msg("pipeline run complete")
	return d, nil
}

func (o *Orchestrator) isCurrent(r run) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation == r.gen
}

func (o *Orchestrator) research(ctx context.Context, r run) (listing.MarketData, error) {
	researcher := o.backends.Researcher(r.creds)
	if researcher == nil {
		return listing.MarketData{}, &UpstreamCallError{Stage: StateGrounding, Err: errors.New("no research backend configured")}
	}

	res, err := researcher.Research(ctx, r.ident.Query())
	if err != nil {
		return listing.MarketData{}, &UpstreamCallError{Stage: StateGrounding, Err: err}
	}
	return marketDataFromResearch(res), nil
}

// marketDataFromResearch accepts both structured and free-text research
// results. Unparseable text degrades to sentinel defaults.
func marketDataFromResearch(res *listing.ResearchResult) listing.MarketData {
	if res == nil {
		return listing.EmptyMarketData()
	}

	var md listing.MarketData
	if res.Market != nil {
		md = res.Market.Normalize()
	} else {
		md = market.Extract(res.Text)
	}

	md.Sources = append([]listing.GroundingSource{}, md.Sources...)
	seen := make(map[string]bool, len(md.Sources))
	for _, s := range md.Sources {
		seen[s.URI] = true
	}
	for _, s := range res.Sources {
		if s.URI == "" || seen[s.URI] {
			continue
		}
		seen[s.URI] = true
		md.Sources = append(md.Sources, s)
	}
	return md.Normalize()
}

func (o *Orchestrator) comparables(ctx context.Context, r run, md listing.MarketData) ([]listing.ComparableItem, error) {
	mp := o.backends.Marketplace(r.creds)
	if mp == nil {
		return nil, &UpstreamCallError{Stage: StateRetrievingComparables, Err: errors.New("no marketplace backend configured")}
	}

	items, err := mp.FindComparables(ctx, r.ident.Query(), md)
	if err != nil {
		return nil, &UpstreamCallError{Stage: StateRetrievingComparables, Err: err}
	}
	if items == nil {
		items = []listing.ComparableItem{}
	}
	return items, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, r run, md listing.MarketData, comps []listing.ComparableItem) (*listing.ListingDraft, error) {
	drafter, err := o.backends.Drafter(r.creds)
	var missing *MissingCredentialError
	switch {
	case errors.As(err, &missing):
		log.Info().Str("runId", r.id).Str("credential", missing.Credential).Msg("drafting credential missing, using fallback synthesis")
		d := o.fallback.Synthesize(r.ident, md, comps)
		return &d, nil
	case err != nil:
		return nil, &UpstreamCallError{Stage: StateSynthesizing, Err: err}
	case drafter == nil:
		d := o.fallback.Synthesize(r.ident, md, comps)
		return &d, nil
	}

	d, err := drafter.Draft(ctx, r.ident, md, comps)
	if err != nil {
		var draftErr *listing.DraftingError
		if errors.As(err, &draftErr) {
			return nil, &MalformedResponseError{Stage: StateSynthesizing, Err: err}
		}
		return nil, &UpstreamCallError{Stage: StateSynthesizing, Err: err}
	}
	if d == nil {
		return nil, &MalformedResponseError{Stage: StateSynthesizing, Err: errors.New("empty draft")}
	}

	out := *d
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.GeneratedDate.IsZero() {
		out.GeneratedDate = time.Now()
	}
	if out.SuggestedCategory == "" {
		out.SuggestedCategory = r.ident.Category
	}
	if out.ExampleSoldListings == nil {
		out.ExampleSoldListings = comps
	}
	if out.GroundingSources == nil && len(md.Sources) > 0 {
		out.GroundingSources = append([]listing.GroundingSource{}, md.Sources...)
	}
	if err := out.Validate(); err != nil {
		return nil, &MalformedResponseError{Stage: StateSynthesizing, Err: &listing.DraftingError{Reason: "invalid draft", Err: err}}
	}
	return &out, nil
}

// complete persists and emits the draft if r is still the current run.
func (o *Orchestrator) complete(r run, d listing.ListingDraft) error {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	if o.generation != r.gen {
		o.mu.Unlock()
		return o.superseded(r, StateSynthesizing)
	}
	if o.history != nil {
		if err := o.history.Save(d); err != nil {
			o.state = StateFailed
			o.lastErr = &UpstreamCallError{Stage: StateComplete, Err: err}
			failErr := o.lastErr
			o.mu.Unlock()
			log.Error().Err(err).Str("runId", r.id).Msg("failed to persist draft")
			o.progress(r, StateFailed, failErr.Error(), failErr)
			if o.onError != nil {
				o.onError(failErr)
			}
			return failErr
		}
	}
	o.state = StateComplete
	o.lastDraft = &d
	o.mu.Unlock()

	o.progress(r, StateComplete, d.SuggestedTitle, nil)
	if o.onDraft != nil {
		o.onDraft(d)
	}
	return nil
}

// fail moves the current run to Failed. Superseded runs are not reported.
func (o *Orchestrator) fail(r run, err error) error {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	if o.generation != r.gen {
		o.mu.Unlock()
		return o.superseded(r, StateFailed)
	}
	o.state = StateFailed
	o.lastErr = err
	o.mu.Unlock()

	log.Error().Err(err).Str("runId", r.id).Uint64("generation", r.gen).Msg("pipeline run failed")
	o.progress(r, StateFailed, err.Error(), err)
	if o.onError != nil {
		o.onError(err)
	}
	return err
}

func trimIdentification(ident listing.ItemIdentification) listing.ItemIdentification {
	ident.Description = strings.TrimSpace(ident.Description)
	ident.Category = strings.TrimSpace(ident.Category)
	return ident
}
