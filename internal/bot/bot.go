package bot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"keyword_bot/internal/bulk"
	"keyword_bot/internal/config"
	"keyword_bot/internal/metrics"
	"keyword_bot/internal/model"
	"keyword_bot/internal/relation"
	"keyword_bot/internal/storage"
	"keyword_bot/internal/worker"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Queue accepts units of work without blocking.
type Queue interface {
	TrySubmit(name string, fn worker.Func) (*worker.Future, error)
}

// MessageTasks builds the unit of work that processes one group message.
type MessageTasks interface {
	Task(msg model.InboundMessage) worker.Func
}

// Deps are the collaborators the bot dispatches to.
type Deps struct {
	Store    storage.Storage
	Registry *relation.Registry
	Bulk     *bulk.Runner
	Queue    Queue
	Messages MessageTasks
	Metrics  *metrics.Metrics
}

// Bot receives Telegram updates: group messages are queued for matching,
// membership events provision chats, private commands manage subscriptions.
type Bot struct {
	api      telegramAPI
	selfID   int64
	store    storage.Storage
	registry *relation.Registry
	bulk     *bulk.Runner
	queue    Queue
	messages MessageTasks
	metrics  *metrics.Metrics
	cfg      *config.Config
	log      *slog.Logger
}

// New creates a Bot on top of an authorised API client.
func New(api *tgbotapi.BotAPI, deps Deps, cfg *config.Config, log *slog.Logger) *Bot {
	return &Bot{
		api:      api,
		selfID:   api.Self.ID,
		store:    deps.Store,
		registry: deps.Registry,
		bulk:     deps.Bulk,
		queue:    deps.Queue,
		messages: deps.Messages,
		metrics:  deps.Metrics,
		cfg:      cfg,
		log:      log,
	}
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if cb := update.CallbackQuery; cb != nil {
		if !b.cfg.IsUserAllowed(cb.From.ID) {
			b.answer(cb.ID, "Access denied.")
			return
		}
		b.handleCallback(ctx, cb)
		return
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}

	switch {
	case msg.Chat.IsGroup() || msg.Chat.IsSuperGroup():
		if b.handleMembership(ctx, msg) {
			return
		}
		b.ingest(msg)
	case msg.Chat.IsPrivate() && msg.IsCommand() && msg.From != nil:
		if !b.cfg.IsUserAllowed(msg.From.ID) {
			b.reply(msg.Chat.ID, "Access denied.")
			return
		}
		b.handleCommand(ctx, msg)
	}
}

// ingest queues a group message for matching. Captions stand in for text on
// media messages. A full queue drops the message so updates keep flowing.
func (b *Bot) ingest(msg *tgbotapi.Message) {
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		return
	}

	in := model.InboundMessage{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Text:      text,
		SourceID:  sourceID(msg),
		SentAt:    msg.Time(),
	}
	if _, err := b.queue.TrySubmit("message", b.messages.Task(in)); err != nil {
		if errors.Is(err, worker.ErrQueueFull) {
			b.metrics.MessagesDropped.Inc()
			b.log.Warn("queue full, message dropped", "chat_id", in.ChatID, "message_id", in.MessageID)
			return
		}
		b.log.Error("queue message", "chat_id", in.ChatID, "message_id", in.MessageID, "error", err)
		return
	}
	b.metrics.MessagesReceived.Inc()
}

func sourceID(msg *tgbotapi.Message) string {
	switch {
	case msg.From != nil:
		return strconv.FormatInt(msg.From.ID, 10)
	case msg.SenderChat != nil:
		return "chat:" + strconv.FormatInt(msg.SenderChat.ID, 10)
	default:
		return ""
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	userID := msg.From.ID

	b.log.Debug("command", "cmd", cmd, "user_id", userID)

	if cmd == "start" {
		b.handleStart(ctx, msg.From)
		return
	}
	if cmd == "help" {
		b.handleHelp(userID)
		return
	}
	if _, err := b.store.GetUser(ctx, userID); err != nil {
		b.reply(userID, "Use /start first.")
		return
	}

	switch cmd {
	case "add":
		b.handleAdd(ctx, userID, args)
	case "addneg":
		b.handleAddNegative(ctx, userID, args)
	case "keys":
		b.handleKeys(ctx, userID)
	case "negkeys":
		b.handleNegativeKeys(ctx, userID)
	case "rm":
		b.handleRemove(ctx, userID, args)
	case "rmneg":
		b.handleRemoveNegative(ctx, userID, args)
	case "pin":
		b.handlePin(ctx, userID, args, true)
	case "unpin":
		b.handlePin(ctx, userID, args, false)
	case "pinall":
		b.handlePinAll(ctx, userID, args, true)
	case "unpinall":
		b.handlePinAll(ctx, userID, args, false)
	case "link":
		b.handleLink(ctx, userID, args)
	case "unlink":
		b.handleUnlink(ctx, userID, args)
	case "linkall":
		b.handleLinkAll(ctx, userID, args)
	case "unlinkall":
		b.handleUnlinkAll(ctx, userID, args)
	case "group":
		b.handleGroupCreate(ctx, userID, args)
	case "groups":
		b.handleGroups(ctx, userID)
	case "groupadd":
		b.handleGroupMember(ctx, userID, args, true)
	case "groupdel":
		b.handleGroupMember(ctx, userID, args, false)
	case "switch":
		b.handleSwitch(ctx, userID, args)
	case cmdChats:
		b.handleChats(ctx, userID)
	default:
		b.reply(userID, "Unknown command. Use /help for a list of commands.")
	}
}
