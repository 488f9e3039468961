package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

const ChannelEmailJS = "emailjs"

type EmailJS struct {
	URL        string
	ServiceID  string
	TemplateID string
	PublicKey  string
	PrivateKey string
	HTTP       *http.Client
}

func NewEmailJS(url, serviceID, templateID, publicKey, privateKey string, client *http.Client) *EmailJS {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &EmailJS{
		URL:        url,
		ServiceID:  serviceID,
		TemplateID: templateID,
		PublicKey:  publicKey,
		PrivateKey: privateKey,
		HTTP:       client,
	}
}

func (e *EmailJS) Channel() string { return ChannelEmailJS }

type emailJSRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	AccessToken    string            `json:"accessToken,omitempty"`
	TemplateParams map[string]string `json:"template_params"`
}

func (e *EmailJS) Send(ctx context.Context, msg Message) error {
	if e.ServiceID == "" || e.TemplateID == "" || e.PublicKey == "" {
		return transportErr(ChannelEmailJS, errors.New("emailjs is not configured"))
	}
	payload := emailJSRequest{
		ServiceID:   e.ServiceID,
		TemplateID:  e.TemplateID,
		UserID:      e.PublicKey,
		AccessToken: e.PrivateKey,
		TemplateParams: map[string]string{
			"to_email": msg.Recipient,
			"subject":  msg.Subject,
			"message":  msg.Body,
			"name":     msg.Name,
			"title":    msg.Title,
			"filename": msg.AttachmentName,
			"content":  base64.StdEncoding.EncodeToString(msg.Attachment),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return transportErr(ChannelEmailJS, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(body))
	if err != nil {
		return transportErr(ChannelEmailJS, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTP.Do(req)
	if err != nil {
		return transportErr(ChannelEmailJS, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classify(ChannelEmailJS, resp)
	}
	return nil
}
