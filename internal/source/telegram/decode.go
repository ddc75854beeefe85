package telegram

import (
	tele "gopkg.in/telebot.v4"

	"telerelay/internal/relay"
)

// decodeBatch maps wire updates onto the relay's tagged variants, preserving
// the order the upstream returned. Every update contributes to the highest
// position, including shapes we don't relay, so the cursor can move past
// service events instead of refetching them forever.
func decodeBatch(updates []tele.Update, cursor int64) ([]relay.RawUpdate, int64) {
	highest := cursor
	out := make([]relay.RawUpdate, 0, len(updates))

	for _, u := range updates {
		pos := int64(u.ID)
		if pos > highest {
			highest = pos
		}

		ru := relay.RawUpdate{Position: pos}
		switch {
		case isGroupMessage(u.Message):
			m := u.Message
			g := &relay.GroupMessage{
				ChatTitle: m.Chat.Title,
				Text:      m.Text,
				Caption:   m.Caption,
			}
			if m.Sender != nil {
				g.FirstName = m.Sender.FirstName
				g.LastName = m.Sender.LastName
			}
			ru.Group = g
		case u.ChannelPost != nil && u.ChannelPost.Chat != nil:
			p := u.ChannelPost
			ru.Channel = &relay.ChannelPost{
				ChatTitle: p.Chat.Title,
				Signature: p.Signature,
				Text:      p.Text,
			}
		}
		// Unmatched shapes keep their position but no payload; the
		// normalizer drops them.
		out = append(out, ru)
	}

	return out, highest
}

func isGroupMessage(m *tele.Message) bool {
	if m == nil || m.Chat == nil {
		return false
	}
	return m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup
}
