package bot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/listing-draft-bot/internal/listing"
	"github.com/raine/listing-draft-bot/internal/pipeline"
	"github.com/raine/listing-draft-bot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type botApiMock struct {
	mock.Mock
}

func (m *botApiMock) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func (m *botApiMock) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	args := m.Called(c)
	return args.Get(0).(*tgbotapi.APIResponse), args.Error(1)
}

func (m *botApiMock) GetFileDirectURL(fileID string) (string, error) {
	args := m.Called(fileID)
	return args.Get(0).(string), args.Error(1)
}

// sentLog records the text of every sent or edited message.
type sentLog struct {
	mu    sync.Mutex
	texts []string
}

func (l *sentLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.texts...)
}

func (l *sentLog) last() string {
	texts := l.all()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

// captureSends accepts every Send and Request and records message texts.
// Edits are prefixed with "edit:".
func captureSends(tg *botApiMock) *sentLog {
	l := &sentLog{}
	tg.On("Send", mock.Anything).Run(func(args mock.Arguments) {
		l.mu.Lock()
		defer l.mu.Unlock()
		switch c := args.Get(0).(type) {
		case tgbotapi.MessageConfig:
			l.texts = append(l.texts, c.Text)
		case tgbotapi.EditMessageTextConfig:
			l.texts = append(l.texts, "edit:"+c.Text)
		}
	}).Return(tgbotapi.Message{MessageID: 42}, nil)
	tg.On("Request", mock.Anything).Return(&tgbotapi.APIResponse{Ok: true}, nil)
	return l
}

type fakeIdentifier struct {
	mu     sync.Mutex
	ident  *listing.ItemIdentification
	err    error
	images [][]byte
}

func (f *fakeIdentifier) Identify(ctx context.Context, images [][]byte) (*listing.ItemIdentification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = images
	return f.ident, f.err
}

type researchFunc func(ctx context.Context, query string) (*listing.ResearchResult, error)

func (f researchFunc) Research(ctx context.Context, query string) (*listing.ResearchResult, error) {
	return f(ctx, query)
}

type staticMarketplace []listing.ComparableItem

func (m staticMarketplace) FindComparables(ctx context.Context, query string, hints listing.MarketData) ([]listing.ComparableItem, error) {
	return m, nil
}

// fakeBackends has no drafting backend, so every run uses fallback synthesis.
type fakeBackends struct {
	researcher  pipeline.Researcher
	marketplace pipeline.Marketplace
}

func (b *fakeBackends) Researcher(creds listing.CredentialSet) pipeline.Researcher {
	return b.researcher
}

func (b *fakeBackends) Marketplace(creds listing.CredentialSet) pipeline.Marketplace {
	return b.marketplace
}

func (b *fakeBackends) Drafter(creds listing.CredentialSet) (pipeline.Drafter, error) {
	return nil, &pipeline.MissingCredentialError{Credential: listing.CredentialDraftingAPIKey}
}

func newFakeBackends() *fakeBackends {
	return &fakeBackends{
		researcher: researchFunc(func(ctx context.Context, query string) (*listing.ResearchResult, error) {
			return &listing.ResearchResult{Market: &listing.MarketData{
				PriceRange:       "$250-$300 USD",
				ConditionSummary: "Used",
			}}, nil
		}),
		marketplace: staticMarketplace{
			{ID: "1", Title: "Nintendo Switch OLED White", Price: "$279.00 USD"},
		},
	}
}

type testEnv struct {
	userId     int64
	tg         *botApiMock
	sent       *sentLog
	bot        *Bot
	session    *UserSession
	kv         *storage.MemoryKV
	identifier *fakeIdentifier
	backends   *fakeBackends
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		userId:     int64(1),
		tg:         new(botApiMock),
		kv:         storage.NewMemoryKV(),
		identifier: &fakeIdentifier{},
		backends:   newFakeBackends(),
	}
	env.sent = captureSends(env.tg)
	env.bot = NewBot(env.tg, Options{
		KV:                 env.kv,
		Credentials:        storage.NewCredentialStore(env.kv, nil),
		Identifier:         env.identifier,
		Backends:           env.backends,
		DefaultCredentials: listing.CredentialSet{DraftingAPIKey: "AIzaDefaultKey1234"},
		AdminID:            env.userId,
	})
	t.Cleanup(env.bot.Shutdown)

	session, err := env.bot.state.getUserSession(env.userId)
	require.NoError(t, err)
	env.session = session
	return env
}

// send dispatches a text message and waits until it is handled.
func (env *testEnv) send(text string) {
	env.bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(env.userId, text))
}

// settle waits for background runs and for their results to be handled.
func (env *testEnv) settle() {
	env.session.orchestrator.Wait()
	env.session.SendSync(SessionMessage{Type: "barrier", Ctx: context.Background()})
}

func makeUpdateWithMessageText(userId int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 7,
			From:      &tgbotapi.User{ID: userId},
			Text:      text,
		},
	}
}

func makeMessage(userId int64, text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(userId, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	return msg
}

func sampleDraft(title, price string) listing.ListingDraft {
	return listing.ListingDraft{
		ID:                  "d-" + title,
		ItemDescription:     "A console",
		SuggestedTitle:      title,
		SuggestedCategory:   "Video Game Consoles",
		SuggestedPriceRange: price,
		SuggestedCondition:  "Used",
		ExampleSoldListings: []listing.ComparableItem{},
		GeneratedDate:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestHandleUpdate_Start(t *testing.T) {
	userId := int64(1)
	tg := new(botApiMock)
	bot := NewBot(tg, Options{AdminID: userId, Backends: newFakeBackends()})
	defer bot.Shutdown()

	tg.On("Send", makeMessage(userId, MsgStartPrompt)).Return(tgbotapi.Message{}, nil).Once()

	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(userId, "/start"))
	tg.AssertExpectations(t)
}

func TestHandleUpdate_UnknownUserIsDropped(t *testing.T) {
	tg := new(botApiMock)
	bot := NewBot(tg, Options{AdminID: 1, Backends: newFakeBackends()})
	defer bot.Shutdown()

	bot.handleUpdateSync(context.Background(), makeUpdateWithMessageText(99999, "/start"))

	tg.AssertNotCalled(t, "Send", mock.Anything)
	assert.Empty(t, bot.state.sessions)
}

func TestHandleUpdate_PhotoToDraft(t *testing.T) {
	env := setup(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("image:" + strings.TrimPrefix(r.URL.Path, "/")))
	}))
	defer ts.Close()
	env.tg.On("GetFileDirectURL", "large").Return(ts.URL+"/large", nil)

	env.identifier.ident = &listing.ItemIdentification{Description: "Nintendo Switch OLED", Category: "Video Game Consoles"}

	update := tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 3,
		From:      &tgbotapi.User{ID: env.userId},
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", Width: 90, Height: 90},
			{FileID: "large", Width: 1280, Height: 1280},
		},
	}}
	env.bot.handleUpdateSync(context.Background(), update)
	env.settle()

	require.Len(t, env.identifier.images, 1)
	assert.Equal(t, []byte("image:large"), env.identifier.images[0])

	texts := env.sent.all()
	require.GreaterOrEqual(t, len(texts), 6)
	assert.Equal(t, "Identified: *Nintendo Switch OLED* (Video Game Consoles)", texts[0])
	assert.Equal(t, MsgStageGrounding, texts[1])
	assert.Equal(t, "edit:"+MsgStageComparables, texts[2])
	assert.Equal(t, "edit:"+MsgStageSynthesizing, texts[3])
	assert.Equal(t, "edit:"+MsgStageComplete, texts[4])
	assert.Contains(t, texts[5], "💰 $250-$300 USD")
	assert.Contains(t, texts[5], "Nintendo Switch OLED White")

	drafts, err := env.session.history.LoadAll()
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	require.NotNil(t, env.session.currentDraft)
	assert.Equal(t, drafts[0].ID, env.session.currentDraft.ID)
}

func TestHandleUpdate_PhotoIdentificationFails(t *testing.T) {
	env := setup(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("img"))
	}))
	defer ts.Close()
	env.tg.On("GetFileDirectURL", "p1").Return(ts.URL+"/p1", nil)
	env.identifier.err = &listing.IdentificationError{Reason: "missing category"}

	update := tgbotapi.Update{Message: &tgbotapi.Message{
		From:  &tgbotapi.User{ID: env.userId},
		Photo: []tgbotapi.PhotoSize{{FileID: "p1"}},
	}}
	env.bot.handleUpdateSync(context.Background(), update)
	env.settle()

	assert.Equal(t, "Could not identify the item: missing category", env.sent.last())
	_, ok := env.session.orchestrator.Identification()
	assert.False(t, ok)
}

func TestHandleUpdate_PhotoWithoutIdentifier(t *testing.T) {
	userId := int64(1)
	tg := new(botApiMock)
	bot := NewBot(tg, Options{AdminID: userId, Backends: newFakeBackends()})
	defer bot.Shutdown()

	tg.On("Send", makeMessage(userId, formatReplyText(MsgVisionNotAvailable))).Return(tgbotapi.Message{}, nil).Once()

	bot.handleUpdateSync(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		From:  &tgbotapi.User{ID: userId},
		Photo: []tgbotapi.PhotoSize{{FileID: "p1"}},
	}})
	tg.AssertExpectations(t)
}

func TestHandleItemCommand(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantFirst string
		wantRun   bool
	}{
		{
			name:      "description and category",
			text:      "/item Lego 75192 Millennium Falcon | Toys",
			wantFirst: "Identified: *Lego 75192 Millennium Falcon* (Toys)",
			wantRun:   true,
		},
		{
			name:      "missing category",
			text:      "/item Lego 75192",
			wantFirst: formatReplyText(MsgItemUsage),
		},
		{
			name:      "empty category",
			text:      "/item Lego 75192 |  ",
			wantFirst: formatReplyText(MsgItemUsage),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t)
			env.send(tt.text)
			env.settle()

			texts := env.sent.all()
			require.NotEmpty(t, texts)
			assert.Equal(t, tt.wantFirst, texts[0])

			drafts, err := env.session.history.LoadAll()
			require.NoError(t, err)
			if tt.wantRun {
				assert.Len(t, drafts, 1)
			} else {
				assert.Empty(t, drafts)
			}
		})
	}
}

func TestHandleCallback_Regenerate(t *testing.T) {
	env := setup(t)
	env.send("/item Nintendo Switch OLED | Video Game Consoles")
	env.settle()

	env.bot.handleUpdateSync(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb1",
		From: &tgbotapi.User{ID: env.userId},
		Data: "draft:regenerate",
	}})
	env.settle()

	drafts, err := env.session.history.LoadAll()
	require.NoError(t, err)
	assert.Len(t, drafts, 2)
	env.tg.AssertCalled(t, "Request", tgbotapi.NewCallback("cb1", ""))
}

func TestHandleCallback_RegenerateWithoutItem(t *testing.T) {
	env := setup(t)

	env.bot.handleUpdateSync(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb1",
		From: &tgbotapi.User{ID: env.userId},
		Data: "draft:regenerate",
	}})

	assert.Equal(t, MsgNothingToRegenerate, env.sent.last())
}

func TestPipelineFailure_EditsStatusMessage(t *testing.T) {
	env := setup(t)
	env.backends.researcher = researchFunc(func(ctx context.Context, query string) (*listing.ResearchResult, error) {
		return nil, errors.New("quota exceeded")
	})

	env.send("/item Nintendo Switch OLED | Video Game Consoles")
	env.settle()

	assert.Equal(t, "edit:❌ market research failed: quota exceeded", env.sent.last())
	assert.Nil(t, env.session.currentDraft)
}

func TestCancelCommand_SupersedesRun(t *testing.T) {
	env := setup(t)
	release := make(chan struct{})
	env.backends.researcher = researchFunc(func(ctx context.Context, query string) (*listing.ResearchResult, error) {
		<-release
		return &listing.ResearchResult{Text: "Price range: $10 - $20"}, nil
	})

	env.send("/item Old lamp | Home")
	env.send("/cancel")
	close(release)
	env.settle()

	drafts, err := env.session.history.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, drafts)
	assert.Equal(t, MsgDraftCancelled, env.sent.last())
}

func TestHistoryCommand(t *testing.T) {
	env := setup(t)

	env.send("/history")
	assert.Equal(t, MsgHistoryEmpty, env.sent.last())

	require.NoError(t, env.session.history.Save(sampleDraft("Switch OLED", "$250-$300 USD")))
	require.NoError(t, env.session.history.Save(sampleDraft("Steam Deck", "$300-$350 USD")))

	env.send("/history")
	got := env.sent.last()
	assert.True(t, strings.HasPrefix(got, "*Latest drafts* (2 drafts)"), got)
	assert.Less(t, strings.Index(got, "Steam Deck"), strings.Index(got, "Switch OLED"))
}

func TestClearCommand(t *testing.T) {
	env := setup(t)
	require.NoError(t, env.session.history.Save(sampleDraft("Switch OLED", "$250-$300 USD")))

	env.send("/clear")

	assert.Equal(t, MsgHistoryCleared, env.sent.last())
	drafts, err := env.session.history.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestEditCommand(t *testing.T) {
	t.Run("no draft", func(t *testing.T) {
		env := setup(t)
		env.send("/edit price $99")
		assert.Equal(t, MsgEditNoDraft, env.sent.last())
	})

	t.Run("usage", func(t *testing.T) {
		env := setup(t)
		env.send("/edit price")
		assert.Equal(t, formatReplyText(MsgEditUsage), env.sent.last())
	})

	t.Run("unknown field", func(t *testing.T) {
		env := setup(t)
		env.send("/edit colour red")
		assert.Equal(t, formatReplyText(MsgEditUnknownField, "colour"), env.sent.last())
	})

	t.Run("edits latest history entry", func(t *testing.T) {
		env := setup(t)
		original := sampleDraft("Switch OLED", "$250-$300 USD")
		require.NoError(t, env.session.history.Save(original))

		env.send("/edit title Nintendo Switch OLED boxed")

		drafts, err := env.session.history.LoadAll()
		require.NoError(t, err)
		require.Len(t, drafts, 2)
		assert.Equal(t, "Nintendo Switch OLED boxed", drafts[0].SuggestedTitle)
		assert.NotEqual(t, original.ID, drafts[0].ID)
		assert.Equal(t, "Switch OLED", drafts[1].SuggestedTitle)
		assert.Contains(t, env.sent.last(), "*Nintendo Switch OLED boxed*")
	})
}

func TestKeyCommand(t *testing.T) {
	env := setup(t)

	env.send("/key draftingApiKey secret-value-9876")

	assert.Equal(t, "✅ Key `draftingApiKey` saved.", env.sent.last())
	env.tg.AssertCalled(t, "Request", tgbotapi.NewDeleteMessage(env.userId, 7))
	assert.Equal(t, "secret-value-9876", env.session.creds.DraftingAPIKey)

	stored, err := env.bot.credentials.Load(env.session.scope())
	require.NoError(t, err)
	assert.Equal(t, "secret-value-9876", stored.DraftingAPIKey)

	env.send("/key draftingApiKey")
	env.send("/key nope value")
	assert.Equal(t, formatReplyText(MsgKeyUnknown, "nope", strings.Join(listing.CredentialFields, ", ")), env.sent.last())
}

func TestKeysCommand_MasksValues(t *testing.T) {
	env := setup(t)
	env.send("/key marketplaceAppId my-app-id-5555")

	env.send("/keys")

	got := env.sent.last()
	assert.Contains(t, got, "`draftingApiKey`: ••••1234 (default)")
	assert.Contains(t, got, "`marketplaceAppId`: ••••5555")
	assert.Contains(t, got, "`marketplaceSecret`: not set")
	assert.NotContains(t, got, "my-app-id")
}

func TestAdminUsersCommand(t *testing.T) {
	env := setup(t)
	store, err := storage.NewSQLiteStore(t.TempDir() + "/test.db")
	require.NoError(t, err)
	defer store.Close()
	env.bot.allowlist = store

	env.send("/admin users add 555")
	assert.Equal(t, "✅ User `555` added.", env.sent.last())
	assert.True(t, env.bot.isAllowed(555))

	env.send("/admin users list")
	assert.Contains(t, env.sent.last(), "`555`")

	env.send("/admin users add abc")
	assert.Equal(t, MsgAdminUserInvalidID, env.sent.last())

	env.send("/admin users remove 555")
	assert.False(t, env.bot.isAllowed(555))
}
