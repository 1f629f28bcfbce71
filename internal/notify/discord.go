package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/bwmarrin/discordgo"
)

// discordAPI is the subset of *discordgo.Session the sink calls.
type discordAPI interface {
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSink sends through the Discord REST API. A scope is a guild id and a
// destination is a text channel name.
type DiscordSink struct {
	api discordAPI

	mu       sync.Mutex
	channels map[string]string
}

// NewDiscordSink opens a REST-only session for a bot token.
func NewDiscordSink(token string) (*DiscordSink, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return newDiscordSink(session), nil
}

func newDiscordSink(api discordAPI) *DiscordSink {
	return &DiscordSink{api: api, channels: map[string]string{}}
}

func (d *DiscordSink) SendToDestination(ctx context.Context, scope, destination string, msg Message) error {
	channelID, err := d.resolveChannel(ctx, scope, destination)
	if err != nil {
		return err
	}
	_, err = d.api.ChannelMessageSendComplex(channelID, discordMessage(msg), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord send to %s/%s: %w", scope, destination, err)
	}
	return nil
}

func (d *DiscordSink) SendDirect(ctx context.Context, userID string, msg Message) error {
	ch, err := d.api.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord dm channel for %s: %w", userID, err)
	}
	if _, err := d.api.ChannelMessageSendComplex(ch.ID, discordMessage(msg), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord dm to %s: %w", userID, err)
	}
	return nil
}

func (d *DiscordSink) resolveChannel(ctx context.Context, scope, destination string) (string, error) {
	key := scope + "|" + strings.ToLower(destination)
	d.mu.Lock()
	id, ok := d.channels[key]
	d.mu.Unlock()
	if ok {
		return id, nil
	}

	if destination == "" {
		guild, err := d.api.Guild(scope, discordgo.WithContext(ctx))
		if err != nil {
			return "", fmt.Errorf("discord guild %s: %w", scope, err)
		}
		if guild.SystemChannelID == "" {
			return "", fmt.Errorf("guild %s has no system channel: %w", scope, ErrDestinationNotFound)
		}
		id = guild.SystemChannelID
	} else {
		channels, err := d.api.GuildChannels(scope, discordgo.WithContext(ctx))
		if err != nil {
			return "", fmt.Errorf("discord channels for %s: %w", scope, err)
		}
		want := channelKey(destination)
		for _, ch := range channels {
			if ch.Type == discordgo.ChannelTypeGuildText && channelKey(ch.Name) == want {
				id = ch.ID
				break
			}
		}
		if id == "" {
			return "", fmt.Errorf("channel %q in %s: %w", destination, scope, ErrDestinationNotFound)
		}
	}

	d.mu.Lock()
	d.channels[key] = id
	d.mu.Unlock()
	return id, nil
}

// channelKey strips decoration around a channel name, so "『stream-tracker』"
// matches "stream-tracker".
func channelKey(name string) string {
	return strings.ToLower(strings.TrimFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))
}

func discordMessage(msg Message) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Body,
		Color:       msg.Color,
	}
	if msg.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: msg.Footer}
	}
	if !msg.Timestamp.IsZero() {
		embed.Timestamp = msg.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	send := &discordgo.MessageSend{
		Embeds:          []*discordgo.MessageEmbed{embed},
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}, Users: msg.Mentions},
	}
	if len(msg.Mentions) > 0 {
		parts := make([]string, len(msg.Mentions))
		for i, id := range msg.Mentions {
			parts[i] = mention(id)
		}
		send.Content = strings.Join(parts, " ")
	}
	return send
}
