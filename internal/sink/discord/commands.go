package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"telerelay/internal/commands"
	logx "telerelay/pkg/logx"
)

// Commands exposes the tenant operations as Discord slash commands
// (/telelink, /telestop, /telechats, /telesub, /teleinfo). All replies are
// ephemeral: link state is the invoking server's business only.
type Commands struct {
	log logx.Logger
	s   *discordgo.Session
	svc *commands.Service

	// synced latches successful registration so the one-shot startup task is
	// idempotent no matter how often it is retried.
	mu     sync.Mutex
	synced bool
}

func NewCommands(s *discordgo.Session, svc *commands.Service, log logx.Logger) *Commands {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Commands{log: log, s: s, svc: svc}
	s.AddHandler(c.handleInteraction)
	return c
}

var commandDefs = []*discordgo.ApplicationCommand{
	{
		Name:        "telelink",
		Description: "Links a Telegram bot account to this server",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "token",
				Description: "Telegram bot token",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionChannel,
				Name:        "channel",
				Description: "Channel that relayed messages are posted to",
				Required:    true,
			},
		},
	},
	{
		Name:        "telestop",
		Description: "Removes the linked Telegram bot account",
	},
	{
		Name:        "telechats",
		Description: "Lists subscribed and available Telegram chats",
	},
	{
		Name:        "telesub",
		Description: "Toggles relaying for a Telegram chat",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "chat",
				Description: "Chat title as shown by /telechats",
				Required:    true,
			},
		},
	},
	{
		Name:        "teleinfo",
		Description: "Shows the current Telegram link",
	},
}

// Sync registers the slash commands once. Safe to retry until it succeeds;
// after the first success every call is a no-op.
func (c *Commands) Sync(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.synced {
		return nil
	}

	if c.s.State == nil || c.s.State.User == nil {
		return errors.New("session not ready")
	}
	appID := c.s.State.User.ID

	_, err := c.s.ApplicationCommandBulkOverwrite(appID, "", commandDefs, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("register commands: %w", err)
	}

	c.synced = true
	c.log.Info("slash commands registered", logx.Int("count", len(commandDefs)))
	return nil
}

func (c *Commands) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()

	if i.GuildID == "" {
		c.respond(i, "This command only works inside a server.")
		return
	}

	// Discord expects an answer within a few seconds; bound the upstream calls.
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	var reply string
	switch data.Name {
	case "telelink":
		reply = c.link(ctx, i.GuildID, data)
	case "telestop":
		reply = c.unlink(ctx, i.GuildID)
	case "telechats":
		reply = c.listChats(ctx, i.GuildID)
	case "telesub":
		reply = c.toggle(ctx, i.GuildID, data)
	case "teleinfo":
		reply = c.info(ctx, i.GuildID)
	default:
		return
	}
	c.respond(i, reply)
}

func (c *Commands) link(ctx context.Context, guildID string, data discordgo.ApplicationCommandInteractionData) string {
	var token, channelID string
	for _, opt := range data.Options {
		switch opt.Name {
		case "token":
			token = opt.StringValue()
		case "channel":
			if ch := opt.ChannelValue(nil); ch != nil {
				channelID = ch.ID
			}
		}
	}
	if token == "" || channelID == "" {
		return "Both a token and a target channel are required."
	}

	id, err := c.svc.Link(ctx, guildID, token, channelID)
	switch {
	case errors.Is(err, commands.ErrAlreadyLinked):
		return "Telegram already connected. Use /telestop to remove the configuration."
	case errors.Is(err, commands.ErrInvalidToken):
		return "Invalid token, please provide a valid Telegram token."
	case err != nil:
		c.log.Warn("link failed", logx.String("tenant", guildID), logx.Err(err))
		return "There was an error talking to Telegram: " + err.Error()
	}
	return "Telegram linked successfully: **@" + id.Username + "** relays to <#" + channelID + ">."
}

func (c *Commands) unlink(ctx context.Context, guildID string) string {
	err := c.svc.Unlink(ctx, guildID)
	switch {
	case errors.Is(err, commands.ErrNotLinked):
		return "Telegram bot account not linked."
	case err != nil:
		c.log.Warn("unlink failed", logx.String("tenant", guildID), logx.Err(err))
		return "Could not unlink: " + err.Error()
	}
	return "Telegram bot account unlinked."
}

func (c *Commands) listChats(ctx context.Context, guildID string) string {
	list, err := c.svc.ListChats(ctx, guildID)
	switch {
	case errors.Is(err, commands.ErrNotLinked):
		return "Telegram bot account not linked."
	case err != nil:
		return "Could not list chats: " + err.Error()
	}

	if len(list.Subscribed) == 0 && len(list.Available) == 0 {
		return "No chats discovered yet. Chats appear here after the linked bot sees a message in them."
	}

	var b strings.Builder
	b.WriteString("Subscribed:")
	writeChatLines(&b, list.Subscribed)
	b.WriteString("\nAvailable:")
	writeChatLines(&b, list.Available)
	b.WriteString("\nUse /telesub to toggle a chat.")
	return b.String()
}

func writeChatLines(b *strings.Builder, chats []string) {
	if len(chats) == 0 {
		b.WriteString(" (none)\n")
		return
	}
	b.WriteString("\n")
	for _, c := range chats {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteString("\n")
	}
}

func (c *Commands) toggle(ctx context.Context, guildID string, data discordgo.ApplicationCommandInteractionData) string {
	var chat string
	for _, opt := range data.Options {
		if opt.Name == "chat" {
			chat = opt.StringValue()
		}
	}
	if strings.TrimSpace(chat) == "" {
		return "A chat title is required."
	}

	subscribed, err := c.svc.ToggleSubscription(ctx, guildID, chat)
	switch {
	case errors.Is(err, commands.ErrNotLinked):
		return "Telegram bot account not linked."
	case err != nil:
		return "Could not toggle subscription: " + err.Error()
	}
	if subscribed {
		return "Now relaying **" + chat + "**."
	}
	return "Stopped relaying **" + chat + "**."
}

func (c *Commands) info(ctx context.Context, guildID string) string {
	info, err := c.svc.Info(ctx, guildID)
	switch {
	case errors.Is(err, commands.ErrNotLinked):
		return "Telegram bot account not linked."
	case err != nil:
		return "There was an error talking to Telegram: " + err.Error()
	}

	var b strings.Builder
	if info.Identity.Username != "" {
		b.WriteString("Linked to Telegram bot account **@")
		b.WriteString(info.Identity.Username)
		b.WriteString("**")
	} else {
		b.WriteString("Linked to a Telegram bot account")
	}
	b.WriteString(", relaying to <#")
	b.WriteString(info.Target)
	b.WriteString(">.")
	if info.CredentialIssue != "" {
		b.WriteString("\n⚠ The token is currently rejected by Telegram: ")
		b.WriteString(info.CredentialIssue)
		b.WriteString("\nRelaying is paused until it is corrected (/telestop, then /telelink).")
	}
	return b.String()
}

func (c *Commands) respond(i *discordgo.InteractionCreate, text string) {
	err := c.s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: text,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		c.log.Warn("interaction respond failed", logx.Err(err))
	}
}
