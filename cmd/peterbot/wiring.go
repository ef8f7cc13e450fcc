package main

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"peterbot/internal/config"
	"peterbot/internal/dispatch"
	"peterbot/internal/history"
	"peterbot/internal/logging"
	"peterbot/internal/platform"
	"peterbot/internal/platform/discord"
	"peterbot/internal/platform/telegram"
)

// openHistory opens the configured conversation store.
func openHistory(c *config.Config) (history.Store, error) {
	opts := []history.StoreOption{
		history.WithTTL(c.GetHistoryTTL()),
		history.WithKeyPrefix(c.History.KeyPrefix),
	}
	driver := history.StoreType(c.History.Driver)
	switch driver {
	case history.StoreTypeRedis:
		opts = append(opts, history.WithRedisURL(c.History.RedisURL))
	case history.StoreTypePebble, history.StoreTypeSQLite:
		opts = append(opts, history.WithPath(c.History.Path))
	}

	store, err := history.NewStore(driver, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s history store: %w", driver, err)
	}
	logging.Boot("history store: driver=%s ttl=%v max_turns=%d", driver, c.GetHistoryTTL(), c.History.MaxTurns)
	return store, nil
}

// openPlatform creates the configured chat adapter.
func openPlatform(c *config.Config) (platform.Adapter, int, error) {
	switch c.Platform {
	case "discord":
		a, err := discord.New(c.Discord.Token)
		return a, platform.DiscordMaxContent, err
	case "telegram":
		a, err := telegram.New(c.Telegram.Token, c.Telegram.PollTimeout)
		return a, platform.TelegramMaxContent, err
	default:
		return nil, 0, fmt.Errorf("unsupported platform: %s", c.Platform)
	}
}

// dispatchOptions maps configuration onto dispatcher options.
func dispatchOptions(c *config.Config, maxContent int) dispatch.Options {
	return dispatch.Options{
		MaxContent:         maxContent,
		ReplyProbability:   c.Behavior.ReplyProbability,
		FlushInterval:      c.GetFlushInterval(),
		TypingInterval:     c.GetTypingInterval(),
		HistoryTTL:         c.GetHistoryTTL(),
		MaxTurns:           c.History.MaxTurns,
		OverloadedMessage:  c.Behavior.Messages.Overloaded,
		MalfunctionMessage: c.Behavior.Messages.Malfunction,
		EmptyMessage:       c.Behavior.Messages.Empty,
	}
}

// bootBanner logs the effective settings once at startup.
func bootBanner(c *config.Config) {
	logging.Boot("%s %s starting: platform=%s provider=%s flush=%v reply_probability=%.2f max_image=%s",
		c.Name, version, c.Platform, c.LLM.Provider, c.GetFlushInterval(),
		c.Behavior.ReplyProbability, humanize.Bytes(uint64(c.GetMaxImageBytes())))
}
