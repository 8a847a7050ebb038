package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Email represents an email to be sent
type Email struct {
	To          []string
	Subject     string
	HTMLContent string
	TextContent string
}

// Client wraps the SendGrid API client
type Client struct {
	apiKey    string
	fromEmail string
	fromName  string
	host      string
}

// NewClient creates a new SendGrid client
func NewClient(apiKey, fromEmail, fromName string) *Client {
	return &Client{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		fromName:  fromName,
		host:      "https://api.sendgrid.com",
	}
}

// WithHost points the client at a different API host
func (c *Client) WithHost(host string) *Client {
	c.host = host
	return c
}

// Send sends an email via SendGrid and returns the message ID. All
// recipients share one personalization, so they see each other.
func (c *Client) Send(ctx context.Context, email Email) (string, error) {
	if len(email.To) == 0 {
		return "", fmt.Errorf("email has no recipients")
	}

	p := mail.NewPersonalization()
	for _, addr := range email.To {
		p.AddTos(mail.NewEmail("", addr))
	}

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(c.fromName, c.fromEmail))
	message.Subject = email.Subject
	message.AddPersonalizations(p)
	// text/plain must come before text/html
	if email.TextContent != "" {
		message.AddContent(mail.NewContent("text/plain", email.TextContent))
	}
	if email.HTMLContent != "" {
		message.AddContent(mail.NewContent("text/html", email.HTMLContent))
	}

	request := sendgrid.GetRequest(c.apiKey, "/v3/mail/send", c.host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(message)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	// SendGrid returns 2xx status codes for success
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}

	// Extract message ID from response headers
	messageID := ""
	if ids, ok := response.Headers["X-Message-Id"]; ok && len(ids) > 0 {
		messageID = ids[0]
	}

	return messageID, nil
}

// DryRunClient logs emails instead of sending them
type DryRunClient struct {
	fromEmail string
	fromName  string
}

// NewDryRunClient creates a client that logs instead of sending
func NewDryRunClient(fromEmail, fromName string) *DryRunClient {
	return &DryRunClient{
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

// Send logs the email and returns a fake message ID
func (c *DryRunClient) Send(ctx context.Context, email Email) (string, error) {
	slog.Info("Dry run: not sending email",
		"from", c.fromEmail,
		"to", email.To,
		"subject", email.Subject,
		"text_bytes", len(email.TextContent),
		"html_bytes", len(email.HTMLContent))
	return "dry-run-message-id", nil
}

// Sender is the interface for sending emails
type Sender interface {
	Send(ctx context.Context, email Email) (string, error)
}
