package telegram

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/mymmrac/telego"

	"peterbot/internal/logging"
	"peterbot/internal/types"
)

// fileResolver maps a Telegram file id to a download URL.
type fileResolver func(ctx context.Context, fileID string) (string, error)

// ToTrigger converts an update message into a trigger for the bot self.
// Private chats always address the bot.
func ToTrigger(ctx context.Context, m *telego.Message, self types.User, resolve fileResolver) types.Trigger {
	msg := convertMessage(ctx, m, self, resolve)
	if m.ReplyToMessage != nil {
		reply := convertMessage(ctx, m.ReplyToMessage, self, resolve)
		msg.Reference = &types.Reference{
			MessageID: reply.ID,
			ChannelID: reply.ChannelID,
			Message:   &reply,
		}
	}
	return types.Trigger{
		Message:     msg,
		MentionsBot: m.Chat.Type == "private" || (self.ID != "" && msg.MentionsUser(self.ID)),
	}
}

func convertUser(u *telego.User) types.User {
	if u == nil {
		return types.User{}
	}
	return types.User{ID: strconv.FormatInt(u.ID, 10), Username: u.Username, Bot: u.IsBot}
}

func convertMessage(ctx context.Context, m *telego.Message, self types.User, resolve fileResolver) types.Message {
	text := m.Text
	entities := m.Entities
	if text == "" {
		text = m.Caption
		entities = m.CaptionEntities
	}

	out := types.Message{
		ID:        strconv.Itoa(m.MessageID),
		ChannelID: strconv.FormatInt(m.Chat.ID, 10),
		Author:    convertUser(m.From),
		Content:   text,
		Mentions:  mentions(text, entities, self),
		CreatedAt: time.Unix(m.Date, 0).UTC(),
	}

	if len(m.Photo) > 0 {
		// Sizes are ordered smallest first.
		largest := m.Photo[len(m.Photo)-1]
		if att, ok := attachment(ctx, resolve, largest.FileID, "image/jpeg", ""); ok {
			out.Attachments = append(out.Attachments, att)
		}
	}
	if d := m.Document; d != nil && strings.HasPrefix(d.MimeType, "image/") {
		if att, ok := attachment(ctx, resolve, d.FileID, d.MimeType, d.FileName); ok {
			out.Attachments = append(out.Attachments, att)
		}
	}
	return out
}

func attachment(ctx context.Context, resolve fileResolver, fileID, contentType, name string) (types.Attachment, bool) {
	if resolve == nil {
		return types.Attachment{}, false
	}
	url, err := resolve(ctx, fileID)
	if err != nil {
		logging.PlatformWarn("telegram: cannot resolve file %s: %v", fileID, err)
		return types.Attachment{}, false
	}
	return types.Attachment{URL: url, ContentType: contentType, Filename: name}, true
}

// mentions extracts mentioned users. "@username" entities only resolve for
// the bot itself since the Bot API does not carry their ids.
func mentions(text string, entities []telego.MessageEntity, self types.User) []types.User {
	var out []types.User
	units := utf16.Encode([]rune(text))
	for _, e := range entities {
		switch e.Type {
		case "text_mention":
			if e.User != nil {
				out = append(out, convertUser(e.User))
			}
		case "mention":
			if e.Offset < 0 || e.Offset+e.Length > len(units) {
				continue
			}
			name := string(utf16.Decode(units[e.Offset : e.Offset+e.Length]))
			if self.Username != "" && strings.EqualFold(strings.TrimPrefix(name, "@"), self.Username) {
				out = append(out, self)
			} else {
				out = append(out, types.User{Username: strings.TrimPrefix(name, "@")})
			}
		}
	}
	return out
}
