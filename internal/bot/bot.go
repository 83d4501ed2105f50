package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/listing-draft-bot/internal/listing"
	"github.com/raine/listing-draft-bot/internal/llm"
	"github.com/raine/listing-draft-bot/internal/pipeline"
	"github.com/raine/listing-draft-bot/internal/storage"
	"github.com/rs/zerolog/log"
)

// historyPageSize is how many drafts /history shows.
const historyPageSize = 5

// BotAPI defines the interface for Telegram bot API operations.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Options holds the bot's collaborators.
type Options struct {
	// KV stores per-user draft history.
	KV          storage.KV
	Credentials *storage.CredentialStore
	// Allowlist lists users besides the admin who may use the bot. A nil
	// allowlist admits only the admin.
	Allowlist  storage.UserAllowlist
	Identifier llm.Identifier
	Backends   pipeline.Backends
	// DefaultCredentials are shown by /keys for fields the user has not set.
	DefaultCredentials listing.CredentialSet
	AdminID            int64
}

// Bot is the main Telegram bot handler.
type Bot struct {
	tg          BotAPI
	state       BotState
	kv          storage.KV
	credentials *storage.CredentialStore
	allowlist   storage.UserAllowlist
	identifier  llm.Identifier
	backends    pipeline.Backends
	defaults    listing.CredentialSet
	adminID     int64
}

// NewBot creates a new Bot instance.
func NewBot(tg BotAPI, opts Options) *Bot {
	kv := opts.KV
	if kv == nil {
		kv = storage.NewMemoryKV()
	}
	bot := &Bot{
		tg:          tg,
		kv:          kv,
		credentials: opts.Credentials,
		allowlist:   opts.Allowlist,
		identifier:  opts.Identifier,
		backends:    opts.Backends,
		defaults:    opts.DefaultCredentials,
		adminID:     opts.AdminID,
	}
	bot.state = bot.NewBotState()
	return bot
}

// Shutdown stops every session worker.
func (b *Bot) Shutdown() {
	b.state.Shutdown()
}

// HandleUpdate is the main message router.
// It dispatches messages to the appropriate session worker for sequential processing.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, false)
}

// handleUpdateSync is like HandleUpdate but waits for message processing to complete.
// Used in tests where we need synchronous behavior.
func (b *Bot) handleUpdateSync(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, true)
}

func (b *Bot) isAllowed(userId int64) bool {
	if userId == b.adminID {
		return true
	}
	if b.allowlist == nil {
		return false
	}
	allowed, err := b.allowlist.IsUserAllowed(userId)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userId).Msg("allowlist check failed")
		return false // Fail closed
	}
	return allowed
}

// dispatchUpdate routes updates to the appropriate session worker.
// If sync is true, it waits for message processing to complete.
func (b *Bot) dispatchUpdate(ctx context.Context, update tgbotapi.Update, sync bool) {
	var userId int64
	switch {
	case update.CallbackQuery != nil:
		userId = update.CallbackQuery.From.ID
	case update.Message != nil && update.Message.From != nil:
		userId = update.Message.From.ID
	default:
		return
	}

	// Must run before getUserSession so random user IDs cannot allocate sessions
	if !b.isAllowed(userId) {
		return // Silent drop
	}

	session, err := b.state.getUserSession(userId)
	if err != nil {
		log.Error().Err(err).Int64("userId", userId).Msg("failed to create user session")
		return
	}

	send := func(msg SessionMessage) {
		if sync {
			session.SendSync(msg)
		} else {
			session.Send(msg)
		}
	}

	if update.CallbackQuery != nil {
		send(SessionMessage{Type: "callback", Ctx: ctx, CallbackQuery: update.CallbackQuery})
		return
	}

	log.Info().Int64("userId", userId).Bool("photo", len(update.Message.Photo) > 0).Msg("got message")
	if len(update.Message.Photo) > 0 {
		send(SessionMessage{Type: "photo", Ctx: ctx, Message: update.Message})
	} else {
		send(SessionMessage{Type: "text", Ctx: ctx, Message: update.Message})
	}
}

// HandleSessionMessage implements MessageHandler. It is called by the
// session worker goroutine, so session state needs no locking here.
func (b *Bot) HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage) {
	switch msg.Type {
	case "callback":
		b.handleCallbackQuery(session, msg.CallbackQuery)
	case "photo":
		b.handlePhotoMessage(ctx, session, msg.Message)
	case "text":
		b.handleTextMessage(ctx, session, msg.Message)
	case "album_timeout":
		if fileIDs := session.takeAlbum(msg.AlbumBuffer); len(fileIDs) > 0 {
			b.identifyAndDraft(ctx, session, fileIDs)
		}
	case "progress":
		b.handleProgress(session, *msg.Progress)
	case "draft_ready":
		b.handleDraftReady(session, *msg.Draft)
	case "draft_failed":
		b.handleDraftFailed(session, msg.Err)
	}
}

func (b *Bot) handlePhotoMessage(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	if b.identifier == nil {
		session.reply(MsgVisionNotAvailable)
		return
	}

	// Telegram sends several sizes; the last one is the largest
	largest := message.Photo[len(message.Photo)-1]

	if message.MediaGroupID == "" {
		b.identifyAndDraft(ctx, session, []string{largest.FileID})
		return
	}

	session.bufferAlbumPhoto(largest.FileID, message.MediaGroupID,
		func(fileIDs []string) {
			b.identifyAndDraft(ctx, session, fileIDs)
		},
		func(buffer *AlbumBuffer) {
			session.Send(SessionMessage{Type: "album_timeout", Ctx: session.ctx, AlbumBuffer: buffer})
		})
}

// identifyAndDraft downloads the photos, identifies the item and hands the
// identification to the pipeline.
func (b *Bot) identifyAndDraft(ctx context.Context, session *UserSession, fileIDs []string) {
	typingCtx, stopTyping := context.WithCancel(ctx)
	defer stopTyping()
	go session.startTypingLoop(typingCtx)

	images := make([][]byte, 0, len(fileIDs))
	for _, id := range fileIDs {
		data, err := downloadFileID(b.tg.GetFileDirectURL, id)
		if err != nil {
			log.Error().Err(err).Str("fileID", id).Msg("photo download failed")
			session.reply(MsgDownloadFailed, escapeMarkdown(err.Error()))
			return
		}
		images = append(images, data)
	}

	ident, err := b.identifier.Identify(ctx, images)
	if err != nil {
		var identErr *listing.IdentificationError
		if errors.As(err, &identErr) {
			session.reply(MsgIdentifyFailed, escapeMarkdown(identErr.Reason))
			return
		}
		session.replyWithError(err)
		return
	}

	stopTyping()
	b.startDraft(session, *ident)
}

func (b *Bot) startDraft(session *UserSession, ident listing.ItemIdentification) {
	session.reply(MsgIdentified, escapeMarkdown(ident.Description), escapeMarkdown(ident.Category))
	session.currentDraft = nil
	session.status = StatusMessage{}
	// Runs outlive the update, so they use the session context
	if !session.orchestrator.SetIdentification(session.ctx, ident) {
		session.reply(MsgItemUsage)
	}
}

func (b *Bot) handleTextMessage(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	if strings.HasPrefix(message.Text, "/") {
		b.handleCommand(ctx, session, message)
		return
	}
	session.reply(MsgStartPrompt)
}

func (b *Bot) handleCommand(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	command, args := parseCommand(message.Text)
	switch command {
	case "/start":
		session.reply(MsgStartPrompt)
	case "/help":
		session.reply(MsgHelp)
	case "/item":
		b.handleItemCommand(session, commandArgs(message.Text))
	case "/cancel":
		session.reset()
		session.currentDraft = nil
		session.reply(MsgDraftCancelled)
	case "/history":
		b.handleHistoryCommand(session)
	case "/clear":
		b.handleClearCommand(session)
	case "/edit":
		b.handleEditCommand(session, args)
	case "/key":
		b.handleKeyCommand(session, message, args)
	case "/keys":
		b.handleKeysCommand(session)
	case "/admin":
		b.handleAdminCommand(session, args)
	case "/version":
		session.reply(MsgVersionInfo, Version, BuildTime)
	default:
		session.reply(MsgStartPrompt)
	}
}

// handleCallbackQuery handles inline keyboard button presses.
func (b *Bot) handleCallbackQuery(session *UserSession, query *tgbotapi.CallbackQuery) {
	// Answer the callback to remove the loading state
	b.tg.Request(tgbotapi.NewCallback(query.ID, ""))

	switch query.Data {
	case "draft:regenerate":
		ident, ok := session.orchestrator.Identification()
		if !ok {
			session.reply(MsgNothingToRegenerate)
			return
		}
		session.orchestrator.SetIdentification(session.ctx, ident)
	}
}

// --- Identification ---

// handleItemCommand handles "/item <description> | <category>".
func (b *Bot) handleItemCommand(session *UserSession, args string) {
	description, category, ok := strings.Cut(args, "|")
	ident := listing.ItemIdentification{
		Description: strings.TrimSpace(description),
		Category:    strings.TrimSpace(category),
	}
	if !ok || !ident.Complete() {
		session.reply(MsgItemUsage)
		return
	}
	b.startDraft(session, ident)
}

// --- Pipeline results ---

func (b *Bot) handleProgress(session *UserSession, event pipeline.ProgressEvent) {
	// Events of superseded runs may still arrive
	if event.Generation != session.orchestrator.Generation() {
		return
	}
	text := stageMessage(event.State)
	if text == "" {
		return
	}

	if event.Generation > session.status.Generation || session.status.MessageID == 0 {
		sent := session.reply(text)
		session.status = StatusMessage{MessageID: sent.MessageID, Generation: event.Generation}
		return
	}
	session.editMessage(session.status.MessageID, text)
}

func (b *Bot) handleDraftReady(session *UserSession, d listing.ListingDraft) {
	session.currentDraft = &d
	b.sendDraft(session, d)
}

func (b *Bot) sendDraft(session *UserSession, d listing.ListingDraft) {
	msg := tgbotapi.NewMessage(session.userId, formatDraft(d))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = draftKeyboard()
	session.replyWithMessage(msg)
}

func (b *Bot) handleDraftFailed(session *UserSession, err error) {
	text := formatReplyText(MsgStageFailed, escapeMarkdown(err.Error()))
	if session.status.MessageID != 0 {
		session.editMessage(session.status.MessageID, text)
		return
	}
	session._reply(text, false)
}

// --- History ---

func (b *Bot) handleHistoryCommand(session *UserSession) {
	drafts, err := session.history.Latest(historyPageSize)
	if err != nil {
		session.replyWithError(err)
		return
	}
	if len(drafts) == 0 {
		session.reply(MsgHistoryEmpty)
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(MsgHistoryHeader, pluralize("draft", "drafts", len(drafts))))
	for _, d := range drafts {
		sb.WriteString(formatHistoryEntry(d))
		sb.WriteString("\n")
	}
	session.reply(strings.ReplaceAll(sb.String(), "%", "%%"))
}

func (b *Bot) handleClearCommand(session *UserSession) {
	if err := session.history.Clear(); err != nil {
		session.replyWithError(err)
		return
	}
	session.currentDraft = nil
	session.reply(MsgHistoryCleared)
}

// --- Edit ---

func parseDraftEdit(field, value string) (listing.DraftEdit, bool) {
	var e listing.DraftEdit
	switch field {
	case "title":
		e.Title = &value
	case "description":
		e.Description = &value
	case "price":
		e.PriceRange = &value
	case "condition":
		e.Condition = &value
	case "category":
		e.Category = &value
	default:
		return e, false
	}
	return e, true
}

// handleEditCommand applies "/edit <field> <value>" to the current draft and
// saves the result as a new history entry.
func (b *Bot) handleEditCommand(session *UserSession, args []string) {
	if len(args) < 2 {
		session.reply(MsgEditUsage)
		return
	}
	field := strings.ToLower(args[0])
	value := strings.Join(args[1:], " ")

	edit, ok := parseDraftEdit(field, value)
	if !ok {
		session.reply(MsgEditUnknownField, escapeMarkdown(field))
		return
	}

	base := session.currentDraft
	if base == nil {
		latest, err := session.history.Latest(1)
		if err != nil {
			session.replyWithError(err)
			return
		}
		if len(latest) == 0 {
			session.reply(MsgEditNoDraft)
			return
		}
		base = &latest[0]
	}

	edited := base.Edit(edit)
	if err := session.history.Save(edited); err != nil {
		session.replyWithError(err)
		return
	}
	session.currentDraft = &edited

	log.Info().Int64("userId", session.userId).Str("field", field).Str("draftId", edited.ID).Msg("draft edited")
	session.reply(MsgEditSaved)
	b.sendDraft(session, edited)
}

// --- Credentials ---

func (b *Bot) handleKeyCommand(session *UserSession, message *tgbotapi.Message, args []string) {
	names := strings.Join(listing.CredentialFields, ", ")
	if b.credentials == nil {
		session.reply(MsgKeyNotAvailable)
		return
	}
	if len(args) == 0 {
		session.reply(MsgKeyUsage, names)
		return
	}
	// The message may contain a secret
	if len(args) > 1 {
		session.deleteMessage(message.MessageID)
	}

	field := args[0]
	value := strings.Join(args[1:], " ")
	creds, ok := session.creds.With(field, value)
	if !ok {
		session.reply(MsgKeyUnknown, escapeMarkdown(field), names)
		return
	}
	if err := b.credentials.Save(session.scope(), creds); err != nil {
		session.replyWithError(err)
		return
	}
	session.creds = creds

	if value == "" {
		session.reply(MsgKeyCleared, field)
	} else {
		session.reply(MsgKeySaved, field)
	}
	// Reruns the pipeline when an item is already identified
	session.orchestrator.SetCredentials(session.ctx, creds)
}

func (b *Bot) handleKeysCommand(session *UserSession) {
	var sb strings.Builder
	sb.WriteString(MsgKeysHeader)
	for _, field := range listing.CredentialFields {
		own, _ := session.creds.Get(field)
		def, _ := b.defaults.Get(field)
		var shown string
		switch {
		case own != "":
			shown = maskSecret(own)
		case def != "":
			shown = fmt.Sprintf(MsgKeyFromEnv, maskSecret(def))
		default:
			shown = MsgKeyNotSet
		}
		sb.WriteString(fmt.Sprintf("• `%s`: %s\n", field, shown))
	}
	session.reply(strings.ReplaceAll(sb.String(), "%", "%%"))
}

// --- Admin ---

// handleAdminCommand handles /admin command with subcommands.
func (b *Bot) handleAdminCommand(session *UserSession, args []string) {
	// Verify caller is admin even though the allowlist check passed
	if session.userId != b.adminID || b.allowlist == nil {
		return
	}
	if len(args) < 2 || args[0] != "users" {
		session.reply(MsgAdminUsage)
		return
	}
	b.handleAdminUsersCommand(session, args[1], args[2:])
}

func (b *Bot) handleAdminUsersCommand(session *UserSession, action string, args []string) {
	switch action {
	case "add", "remove":
		if len(args) < 1 {
			if action == "add" {
				session.reply(MsgAdminUserAddUsage)
			} else {
				session.reply(MsgAdminUserRemoveUsage)
			}
			return
		}
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			session.reply(MsgAdminUserInvalidID)
			return
		}
		if action == "add" {
			if err := b.allowlist.AddAllowedUser(userID, session.userId); err != nil {
				session.replyWithError(err)
				return
			}
			session.reply(MsgAdminUserAdded, userID)
			return
		}
		if err := b.allowlist.RemoveAllowedUser(userID); err != nil {
			session.replyWithError(err)
			return
		}
		session.reply(MsgAdminUserRemoved, userID)

	case "list":
		users, err := b.allowlist.GetAllowedUsers()
		if err != nil {
			session.replyWithError(err)
			return
		}
		if len(users) == 0 {
			session.reply(MsgAdminNoUsers)
			return
		}
		var sb strings.Builder
		sb.WriteString(MsgAdminAllowedUsers)
		for _, u := range users {
			sb.WriteString(fmt.Sprintf("• `%d` (added %s)\n", u.TelegramID, u.AddedAt.Format("2006-01-02")))
		}
		session.reply(sb.String())

	default:
		session.reply(MsgAdminUsage)
	}
}
