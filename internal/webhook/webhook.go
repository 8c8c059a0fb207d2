package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/praxisboard/board-api/internal/model"
	"github.com/praxisboard/board-api/pkg/logger"
)

// Message is the dispatch contract of the configured webhook.
type Message struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	EmailText string `json:"emailText"`
}

// RenderTemplate substitutes the record's fields into an email template.
func RenderTemplate(template string, rec *model.PatientRecord) string {
	firstName := ""
	if rec.FirstName != nil {
		firstName = *rec.FirstName
	}
	email := ""
	if rec.Email != nil {
		email = *rec.Email
	}

	return strings.NewReplacer(
		"{{firstName}}", firstName,
		"{{lastName}}", rec.LastName,
		"{{email}}", email,
	).Replace(template)
}

// Dispatcher fires templated messages at the configured webhook. Send is
// synchronous; retrying a failed dispatch is the caller's choice.
type Dispatcher struct {
	client *http.Client
	logger *logger.Logger
}

func NewDispatcher(log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		client: &http.Client{Timeout: 15 * time.Second},
		logger: log,
	}
}

func (d *Dispatcher) Send(ctx context.Context, url string, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	d.logger.Debug("webhook dispatched", "status", resp.StatusCode)
	return nil
}
