package bot

import (
	"context"
	"sync"

	"github.com/raine/listing-draft-bot/internal/listing"
	"github.com/raine/listing-draft-bot/internal/pipeline"
	"github.com/raine/listing-draft-bot/internal/storage"
	"github.com/rs/zerolog/log"
)

type BotState struct {
	bot      *Bot
	mu       sync.Mutex
	sessions map[int64]*UserSession
}

func (bs *BotState) newUserSession(userId int64) (*UserSession, error) {
	ctx, cancel := context.WithCancel(context.Background())
	session := &UserSession{
		userId: userId,
		sender: bs.bot.tg,
		inbox:  make(chan SessionMessage, 10), // Buffered to avoid blocking
		ctx:    ctx,
		cancel: cancel,
	}
	session.history = storage.NewHistory(bs.bot.kv, session.scope()+":history")

	if bs.bot.credentials != nil {
		creds, err := bs.bot.credentials.Load(session.scope())
		if err != nil {
			cancel()
			return nil, err
		}
		session.creds = creds
	}

	session.orchestrator = pipeline.New(pipeline.Options{
		Backends: bs.bot.backends,
		History:  session.history,
		OnProgress: func(event pipeline.ProgressEvent) {
			session.Send(SessionMessage{Type: "progress", Ctx: ctx, Progress: &event})
		},
		OnDraft: func(d listing.ListingDraft) {
			session.Send(SessionMessage{Type: "draft_ready", Ctx: ctx, Draft: &d})
		},
		OnError: func(err error) {
			session.Send(SessionMessage{Type: "draft_failed", Ctx: ctx, Err: err})
		},
	})
	session.orchestrator.SetCredentials(ctx, session.creds)

	log.Info().Int64("userId", userId).Msg("new user session created")
	return session, nil
}

func (bs *BotState) getUserSession(userId int64) (*UserSession, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if session, ok := bs.sessions[userId]; ok {
		return session, nil
	}
	session, err := bs.newUserSession(userId)
	if err != nil {
		return nil, err
	}
	// Set the bot as the message handler and start the worker
	session.SetHandler(bs.bot)
	session.StartWorker()
	bs.sessions[userId] = session
	return session, nil
}

func (b *Bot) NewBotState() BotState {
	return BotState{
		bot:      b,
		sessions: make(map[int64]*UserSession),
	}
}

// Shutdown stops all session workers gracefully.
func (bs *BotState) Shutdown() {
	bs.mu.Lock()
	sessions := make([]*UserSession, 0, len(bs.sessions))
	for _, session := range bs.sessions {
		sessions = append(sessions, session)
	}
	bs.mu.Unlock()

	// Stop outside the lock to avoid blocking new lookups
	for _, session := range sessions {
		session.Stop()
	}
	log.Info().Int("count", len(sessions)).Msg("stopped all session workers")
}
