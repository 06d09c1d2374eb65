package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"
)

// EmailConfig 描述 SMTP 投递参数。
type EmailConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	To            []string
	SubjectPrefix string
}

type smtpSender struct {
	cfg EmailConfig
}

// NewEmailNotifier 构造基于 SMTP 的邮件通知器。
func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	return &EmailNotifier{
		Sender:        &smtpSender{cfg: cfg},
		To:            cfg.To,
		SubjectPrefix: cfg.SubjectPrefix,
	}
}

func (s *smtpSender) Send(_ context.Context, subject, content string, to []string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.cfg.From, strings.Join(to, ", "), subject, content)
	return smtp.SendMail(addr, auth, s.cfg.From, to, []byte(msg))
}

// webhookClient 封装对告警 webhook 的 JSON POST。
type webhookClient struct {
	url    string
	client *http.Client
}

func newWebhookClient(url string) *webhookClient {
	return &webhookClient{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

func (c *webhookClient) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

type dingTalkWebhook struct {
	*webhookClient
}

// NewDingTalkNotifier 构造指向钉钉机器人 webhook 的通知器。
func NewDingTalkNotifier(webhookURL string) *DingTalkNotifier {
	return &DingTalkNotifier{Sender: &dingTalkWebhook{newWebhookClient(webhookURL)}}
}

func (w *dingTalkWebhook) Send(ctx context.Context, content string) error {
	return w.post(ctx, map[string]any{
		"msgtype": "text",
		"text":    map[string]string{"content": content},
	})
}

type slackWebhook struct {
	*webhookClient
}

// NewSlackNotifier 构造指向 Slack incoming webhook 的通知器。
func NewSlackNotifier(webhookURL, channelID string) *SlackNotifier {
	return &SlackNotifier{Sender: &slackWebhook{newWebhookClient(webhookURL)}, ChannelID: channelID}
}

func (w *slackWebhook) Send(ctx context.Context, channel, content string) error {
	return w.post(ctx, map[string]string{
		"channel": channel,
		"text":    content,
	})
}
