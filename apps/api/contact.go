package main

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Ailurotech/ailurowander/libs/notifier"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gin-gonic/gin"
)

type contactPayload struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (p contactPayload) trimmed() contactPayload {
	return contactPayload{
		Name:    strings.TrimSpace(p.Name),
		Email:   strings.TrimSpace(p.Email),
		Subject: strings.TrimSpace(p.Subject),
		Message: strings.TrimSpace(p.Message),
	}
}

func validateContactPayload(p contactPayload) error {
	if p.Name == "" || p.Email == "" || p.Subject == "" || p.Message == "" {
		return &apiError{Status: http.StatusBadRequest, Message: "All fields are required"}
	}
	if !emailPattern.MatchString(p.Email) {
		return &apiError{Status: http.StatusBadRequest, Message: "Invalid email format"}
	}
	return nil
}

// newNotificationProvider prefers SNS, then Resend, then logging only.
func newNotificationProvider(ctx context.Context, cfg *Config, logger *slog.Logger) (notifier.Provider, error) {
	switch {
	case cfg.SNSTopicARN != "":
		awsCfg, err := loadAWSConfig(ctx, cfg.SNSRegion, cfg.SNSAccessKeyID, cfg.SNSSecretAccessKey)
		if err != nil {
			return nil, err
		}
		return notifier.NewSNSProvider(sns.NewFromConfig(awsCfg), cfg.SNSTopicARN), nil
	case cfg.ResendAPIKey != "":
		return notifier.NewResendProvider(cfg.ResendAPIKey), nil
	default:
		return notifier.NewLogProvider(logger), nil
	}
}

func buildContactMessage(p contactPayload, to string) notifier.Message {
	text := fmt.Sprintf(`New Contact Form Submission

Name: %s
Email: %s
Subject: %s

Message:
%s

This message was sent from the AiluroWander contact form.
`, p.Name, p.Email, p.Subject, p.Message)

	body := fmt.Sprintf(`
<h2>New Contact Form Submission</h2>
<p><strong>Name:</strong> %s<br>
<strong>Email:</strong> %s<br>
<strong>Subject:</strong> %s</p>
<p>%s</p>
<p>This message was sent from the AiluroWander contact form.</p>
`,
		html.EscapeString(p.Name),
		html.EscapeString(p.Email),
		html.EscapeString(p.Subject),
		strings.ReplaceAll(html.EscapeString(p.Message), "\n", "<br>"),
	)

	return notifier.Message{
		To:      []string{to},
		Subject: "New Contact Form Submission: " + p.Subject,
		HTML:    body,
		Text:    text,
		Attributes: map[string]string{
			"email":   to,
			"replyTo": p.Email,
		},
	}
}

func (a *App) contactHandler(c *gin.Context) {
	var payload contactPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Message: "Invalid JSON body"})
		return
	}
	payload = payload.trimmed()
	if err := validateContactPayload(payload); err != nil {
		writeAPIError(c, err)
		return
	}

	if !a.checkRateLimit("contact:"+c.ClientIP(), contactRateLimitRequests, contactRateLimitWindow, a.now().UTC()) {
		writeAPIError(c, &apiError{Status: http.StatusTooManyRequests, Message: "Too many messages. Please retry later."})
		return
	}

	result, err := a.notifier.Send(c.Request.Context(), buildContactMessage(payload, a.cfg.ContactEmailTo))
	if err != nil {
		a.log.Error("contact notification failed", "provider", a.notifier.ProviderName(), "err", err)
		a.metrics.contactMessage(false)
		writeAPIError(c, &apiError{Status: http.StatusInternalServerError, Message: "Failed to send message"})
		return
	}
	a.metrics.contactMessage(true)
	a.log.Info("contact message sent", "provider", a.notifier.ProviderName(), "message_id", result.ProviderMessageID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
