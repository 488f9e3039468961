package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
	"unicode/utf8"
)

const ChannelTelegram = "telegram"

// telegram rejects captions longer than this
const captionLimit = 1024

// Telegram sends the PDF with sendDocument. Message.Recipient is the chat id.
type Telegram struct {
	BaseURL  string
	BotToken string
	HTTP     *http.Client
}

func NewTelegram(baseURL, token string, client *http.Client) *Telegram {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Telegram{BaseURL: baseURL, BotToken: token, HTTP: client}
}

func (t *Telegram) Channel() string { return ChannelTelegram }

func (t *Telegram) Send(ctx context.Context, msg Message) error {
	if t.BotToken == "" {
		return transportErr(ChannelTelegram, errors.New("telegram bot token is not configured"))
	}
	base := strings.TrimRight(t.BaseURL, "/")
	urlStr := fmt.Sprintf("%s/bot%s/sendDocument", base, t.BotToken)

	body, contentType := buildDocumentMultipart(msg.Recipient, caption(msg), msg.AttachmentName, "application/pdf", msg.Attachment)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, body)
	if err != nil {
		return transportErr(ChannelTelegram, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.HTTP.Do(req)
	if err != nil {
		return transportErr(ChannelTelegram, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classify(ChannelTelegram, resp)
	}
	return nil
}

func caption(msg Message) string {
	c := strings.TrimSpace(msg.Subject)
	if b := strings.TrimSpace(msg.Body); b != "" {
		if c != "" {
			c += "\n\n"
		}
		c += b
	}
	if utf8.RuneCountInString(c) > captionLimit {
		c = string([]rune(c)[:captionLimit-1]) + "…"
	}
	return c
}

func buildDocumentMultipart(chatID, caption, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if chatID != "" {
		_ = writer.WriteField("chat_id", chatID)
	}
	if caption != "" {
		_ = writer.WriteField("caption", caption)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if filename == "" {
		filename = "Cotizacion.pdf"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="document"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, _ := writer.CreatePart(header)
	_, _ = part.Write(data)
	_ = writer.Close()
	return body, writer.FormDataContentType()
}
