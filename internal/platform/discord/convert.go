package discord

import (
	"github.com/bwmarrin/discordgo"

	"peterbot/internal/types"
)

// ToTrigger converts a gateway message into a trigger for the bot self.
func ToTrigger(m *discordgo.Message, self types.User) types.Trigger {
	msg := convertMessage(m)
	return types.Trigger{
		Message:     msg,
		MentionsBot: self.ID != "" && msg.MentionsUser(self.ID),
	}
}

func convertUser(u *discordgo.User) types.User {
	if u == nil {
		return types.User{}
	}
	return types.User{ID: u.ID, Username: u.Username, Bot: u.Bot}
}

func convertMessage(m *discordgo.Message) types.Message {
	out := types.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Author:    convertUser(m.Author),
		Content:   m.Content,
		CreatedAt: m.Timestamp,
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		out.Attachments = append(out.Attachments, types.Attachment{
			URL:         a.URL,
			ContentType: a.ContentType,
			Filename:    a.Filename,
		})
	}
	for _, u := range m.Mentions {
		if u != nil {
			out.Mentions = append(out.Mentions, convertUser(u))
		}
	}

	if ref := m.MessageReference; ref != nil && ref.MessageID != "" {
		r := &types.Reference{MessageID: ref.MessageID, ChannelID: ref.ChannelID}
		if r.ChannelID == "" {
			r.ChannelID = m.ChannelID
		}
		// The gateway nests the replied-to message one level deep.
		if m.ReferencedMessage != nil {
			nested := *m.ReferencedMessage
			nested.ReferencedMessage = nil
			rm := convertMessage(&nested)
			r.Message = &rm
		}
		out.Reference = r
	}
	return out
}
