package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// Embed colours by notification kind.
const (
	discordGreen = 0x2ecc71
	discordRed   = 0xe74c3c
)

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Footer      *discordFooter `json:"footer,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

type discordFooter struct {
	Text string `json:"text"`
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

// DiscordSender posts notifications to a Discord webhook, one embed each.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: newHTTPClient()}
}

func (d *DiscordSender) Send(ctx context.Context, n domain.Notification) error {
	return postJSON(ctx, d.client, d.Name(), d.webhookURL, discordPayload{
		Username: "papertrade",
		Embeds:   []discordEmbed{discordEmbedFor(n)},
	})
}

func discordEmbedFor(n domain.Notification) discordEmbed {
	e := discordEmbed{
		Title:       n.Title,
		Description: n.Message,
		Color:       discordGreen,
	}
	if n.Kind == domain.NotificationError {
		e.Color = discordRed
	}
	if n.Symbol != "" {
		e.Fields = append(e.Fields, discordField{Name: "Symbol", Value: n.Symbol, Inline: true})
	}
	if n.Event != "" {
		e.Footer = &discordFooter{Text: n.Event}
	}
	if !n.CreatedAt.IsZero() {
		e.Timestamp = n.CreatedAt.UTC().Format(time.RFC3339)
	}
	return e
}

func (d *DiscordSender) Name() string {
	return "discord"
}
