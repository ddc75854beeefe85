package relay

import "strings"

const (
	// mediaMarker prefixes a media caption so readers can tell the attachment
	// itself was not relayed.
	mediaMarker = "[media] "

	// labelSep joins the author name (or channel signature) with the chat title.
	labelSep = " | "
)

// Normalize converts one raw update into its canonical form, or nil when the
// update carries nothing displayable. Malformed or unsupported shapes are
// expected traffic and never produce an error.
func Normalize(u RawUpdate) *CanonicalMessage {
	switch {
	case u.Group != nil:
		return normalizeGroup(u.Group)
	case u.Channel != nil:
		return normalizeChannel(u.Channel)
	default:
		return nil
	}
}

func normalizeGroup(g *GroupMessage) *CanonicalMessage {
	var b strings.Builder
	if g.Caption != "" {
		b.WriteString(mediaMarker)
		b.WriteString(g.Caption)
		b.WriteString("\n")
	}
	b.WriteString(g.Text)
	body := strings.TrimSuffix(b.String(), "\n")
	if body == "" {
		return nil
	}

	author := g.ChatTitle
	if name := strings.TrimSpace(strings.TrimSpace(g.FirstName) + " " + strings.TrimSpace(g.LastName)); name != "" {
		author = name + labelSep + g.ChatTitle
	}

	return &CanonicalMessage{
		ChatTitle: g.ChatTitle,
		Author:    author,
		Body:      body,
		Kind:      KindGroup,
	}
}

func normalizeChannel(p *ChannelPost) *CanonicalMessage {
	if p.Text == "" {
		return nil
	}
	author := p.ChatTitle
	if sig := strings.TrimSpace(p.Signature); sig != "" {
		author = sig + labelSep + p.ChatTitle
	}
	return &CanonicalMessage{
		ChatTitle: p.ChatTitle,
		Author:    author,
		Body:      p.Text,
		Kind:      KindChannel,
	}
}

// Render is the delivery format: author label on top, body below.
func (m *CanonicalMessage) Render() string {
	return "**" + m.Author + "**\n" + m.Body
}
