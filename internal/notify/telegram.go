package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender posts notifications to one chat through the Bot API.
type TelegramSender struct {
	apiURL string
	token  string
	chatID string
	client *http.Client
}

func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		apiURL: telegramAPI,
		token:  token,
		chatID: chatID,
		client: newHTTPClient(),
	}
}

func (t *TelegramSender) Send(ctx context.Context, n domain.Notification) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)
	return postJSON(ctx, t.client, t.Name(), url, map[string]any{
		"chat_id":                  t.chatID,
		"text":                     telegramText(n),
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
}

// telegramText renders n as Bot API HTML: a bold title, the message and a
// symbol hashtag for filtering in the chat.
func telegramText(n domain.Notification) string {
	title := n.Title
	if n.Kind == domain.NotificationError {
		title = "Failed: " + title
	}
	var b strings.Builder
	b.WriteString("<b>" + html.EscapeString(title) + "</b>")
	if n.Message != "" {
		b.WriteString("\n" + html.EscapeString(n.Message))
	}
	if n.Symbol != "" {
		b.WriteString("\n#" + n.Symbol)
	}
	return b.String()
}

func (t *TelegramSender) Name() string {
	return "telegram"
}
