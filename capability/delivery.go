package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"strings"
	"time"
)

// defaultDeliveryTimeout bounds one outbound delivery request when the
// step config does not set one.
const defaultDeliveryTimeout = 30 * time.Second

// SMTPSender sends a single email. net/smtp backs the default; tests
// substitute a recorder.
type SMTPSender func(addr string, from string, to []string, msg []byte) error

// Delivery sends step input to an external destination: an HTTP
// webhook, an email recipient list, or a chat webhook.
type Delivery struct {
	client HTTPClient
	send   SMTPSender
}

// NewDelivery creates the delivery capability. A nil client falls back
// to http.DefaultClient; a nil sender falls back to net/smtp.
func NewDelivery(client HTTPClient, send SMTPSender) *Delivery {
	if client == nil {
		client = http.DefaultClient
	}
	if send == nil {
		send = func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		}
	}
	return &Delivery{client: client, send: send}
}

// Execute delivers the input to the configured destination. The output
// is a receipt map describing what was sent where.
func (d *Delivery) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	destination := cfgString(config, "destination")
	switch destination {
	case "webhook":
		return d.deliverWebhook(ctx, config, input)
	case "email":
		return d.deliverEmail(ctx, config, input)
	case "chat":
		return d.deliverChat(ctx, config, input)
	case "":
		return nil, fmt.Errorf("delivery: destination is required")
	default:
		return nil, fmt.Errorf("delivery: unknown destination %q", destination)
	}
}

func (d *Delivery) deliverWebhook(ctx context.Context, config map[string]any, input any) (any, error) {
	rawURL := cfgString(config, "url")
	if rawURL == "" {
		return nil, fmt.Errorf("delivery: webhook url is required")
	}

	method := strings.ToUpper(cfgString(config, "method"))
	if method == "" {
		method = http.MethodPost
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("delivery: marshal payload: %w", err)
	}

	status, respBody, err := d.post(ctx, config, method, rawURL, body)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"destination": "webhook",
		"url":         rawURL,
		"method":      method,
		"status_code": status,
		"response":    string(respBody),
	}, nil
}

func (d *Delivery) deliverChat(ctx context.Context, config map[string]any, input any) (any, error) {
	webhookURL := cfgString(config, "webhook_url")
	if webhookURL == "" {
		return nil, fmt.Errorf("delivery: chat webhook_url is required")
	}

	// Chat webhooks (Slack-style) expect a text payload.
	body, err := json.Marshal(map[string]any{"text": toString(input)})
	if err != nil {
		return nil, fmt.Errorf("delivery: marshal payload: %w", err)
	}

	status, _, err := d.post(ctx, config, http.MethodPost, webhookURL, body)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"destination": "chat",
		"webhook_url": webhookURL,
		"status_code": status,
	}, nil
}

func (d *Delivery) deliverEmail(ctx context.Context, config map[string]any, input any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	recipients, _ := cfgStringSlice(config, "recipients")
	if len(recipients) == 0 {
		return nil, fmt.Errorf("delivery: email recipients are required")
	}

	host := cfgString(config, "smtp_host")
	if host == "" {
		return nil, fmt.Errorf("delivery: email smtp_host is required")
	}
	port := "25"
	if p, ok := cfgNumber(config, "smtp_port"); ok && p > 0 {
		port = fmt.Sprintf("%d", int(p))
	}

	from := cfgString(config, "from")
	if from == "" {
		from = "workflow@localhost"
	}
	subject := cfgString(config, "subject")
	if subject == "" {
		subject = "Workflow result"
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(toString(input))

	addr := host + ":" + port
	if err := d.send(addr, from, recipients, msg.Bytes()); err != nil {
		return nil, fmt.Errorf("delivery: send email: %w", err)
	}

	return map[string]any{
		"destination": "email",
		"recipients":  recipients,
		"subject":     subject,
	}, nil
}

// post performs one outbound JSON request and enforces a 2xx response.
func (d *Delivery) post(ctx context.Context, config map[string]any, method, url string, body []byte) (int, []byte, error) {
	timeout := cfgDuration(config, "timeout")
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	requestCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("delivery: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range cfgHeaders(config, "headers") {
		req.Header.Set(key, value)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("delivery: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("delivery: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, respBody, fmt.Errorf("delivery: unexpected status code: %d", resp.StatusCode)
	}
	return resp.StatusCode, respBody, nil
}
