// Package telegram adapts a telego bot to the platform interfaces.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"

	"peterbot/internal/logging"
	"peterbot/internal/platform"
	"peterbot/internal/types"
)

const defaultPollTimeout = 30

// Adapter implements platform.Adapter on Telegram via long polling.
type Adapter struct {
	bot         *telego.Bot
	pollTimeout int

	mu   sync.RWMutex
	self types.User
}

var _ platform.Adapter = (*Adapter)(nil)

// New creates an adapter. pollTimeout is in seconds.
func New(token string, pollTimeout int, opts ...telego.BotOption) (*Adapter, error) {
	if token == "" {
		return nil, errors.New("telegram token is required")
	}
	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	return &Adapter{bot: bot, pollTimeout: pollTimeout}, nil
}

// Self implements platform.Platform. It is empty until Run has identified the bot.
func (a *Adapter) Self() types.User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.self
}

// Identify asks Telegram who the bot is.
func (a *Adapter) Identify(ctx context.Context) (types.User, error) {
	me, err := a.bot.GetMe(ctx)
	if err != nil {
		return types.User{}, fmt.Errorf("telegram getMe: %w", err)
	}
	u := convertUser(me)
	a.mu.Lock()
	a.self = u
	a.mu.Unlock()
	return u, nil
}

// Run implements platform.Source.
func (a *Adapter) Run(ctx context.Context, h platform.Handler) error {
	self, err := a.Identify(ctx)
	if err != nil {
		return err
	}

	updates, err := a.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{Timeout: a.pollTimeout})
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	bh, err := th.NewBotHandler(a.bot, updates)
	if err != nil {
		return fmt.Errorf("failed to create bot handler: %w", err)
	}

	bh.HandleMessage(func(_ *th.Context, message telego.Message) error {
		trigger := ToTrigger(ctx, &message, self, a.resolveFile)
		go h(ctx, trigger)
		return nil
	}, th.AnyMessage())

	logging.Platform("telegram bot connected as @%s", self.Username)
	go bh.Start()

	<-ctx.Done()
	bh.Stop()
	return nil
}

// FetchMessage implements platform.Platform. The Bot API has no lookup by
// id; replied-to messages arrive inline with the update instead.
func (a *Adapter) FetchMessage(ctx context.Context, channelID, messageID string) (*types.Message, error) {
	return nil, platform.ErrFetchUnsupported
}

// Reply implements platform.Platform.
func (a *Adapter) Reply(ctx context.Context, to types.Message, content string) (types.MessageHandle, error) {
	chatID, err := parseChatID(to.ChannelID)
	if err != nil {
		return types.MessageHandle{}, err
	}
	params := tu.Message(tu.ID(chatID), content)
	if replyTo, err := strconv.Atoi(to.ID); err == nil {
		params.ReplyParameters = &telego.ReplyParameters{MessageID: replyTo, AllowSendingWithoutReply: true}
	}

	sent, err := a.bot.SendMessage(ctx, params)
	if err != nil {
		return types.MessageHandle{}, err
	}
	return types.MessageHandle{ID: strconv.Itoa(sent.MessageID), ChannelID: to.ChannelID}, nil
}

// Edit implements platform.Platform.
func (a *Adapter) Edit(ctx context.Context, h types.MessageHandle, content string) error {
	chatID, err := parseChatID(h.ChannelID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(h.ID)
	if err != nil {
		return fmt.Errorf("invalid message id %q: %w", h.ID, err)
	}
	_, err = a.bot.EditMessageText(ctx, &telego.EditMessageTextParams{ChatID: tu.ID(chatID), MessageID: msgID, Text: content})
	return err
}

// SendTyping implements platform.Platform.
func (a *Adapter) SendTyping(ctx context.Context, channelID string) error {
	chatID, err := parseChatID(channelID)
	if err != nil {
		return err
	}
	return a.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping))
}

// resolveFile turns a file id into a download URL.
func (a *Adapter) resolveFile(ctx context.Context, fileID string) (string, error) {
	file, err := a.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return "", err
	}
	if file.FilePath == "" {
		return "", errors.New("file has no download path")
	}
	return a.bot.FileDownloadURL(file.FilePath), nil
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", s, err)
	}
	return id, nil
}
