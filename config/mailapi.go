package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var (
	mailAPIURL      = os.Getenv("MAIL_API_URL")
	mailAPIKey      = os.Getenv("MAIL_API_KEY")
	mailAPIFromAddr = os.Getenv("MAIL_API_FROM")

	mailAPIClient = &http.Client{Timeout: 15 * time.Second}
)

// MailAPIResponse is the provider's envelope. Success=false with a 2xx status
// is a business failure (bad recipient, suppressed address, quota) and the
// caller is expected to fall back to SMTP.
type MailAPIResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type mailAPIRequest struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
	FromName string `json:"from_name"`
	FromAddr string `json:"from_addr,omitempty"`
}

// SendMailViaAPI delivers an HTML message through the third-party mail API.
// This is the primary notification channel.
func SendMailViaAPI(to, subject, html, fromName string) (*MailAPIResponse, error) {
	if mailAPIURL == "" || mailAPIKey == "" {
		return nil, fmt.Errorf("mail api not configured (MAIL_API_URL/MAIL_API_KEY)")
	}

	payload, err := json.Marshal(mailAPIRequest{
		To:       to,
		Subject:  subject,
		HTMLBody: html,
		FromName: fromName,
		FromAddr: mailAPIFromAddr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode mail api request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, mailAPIURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build mail api request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+mailAPIKey)

	resp, err := mailAPIClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mail api request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read mail api response: %w", err)
	}

	var out MailAPIResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode mail api response (status %d): %w", resp.StatusCode, err)
	}

	// Non-2xx statuses are reported through the envelope, not as an error,
	// so the dispatcher treats them as a business failure.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		out.Success = false
		if out.Message == "" {
			out.Message = fmt.Sprintf("mail api returned status %d", resp.StatusCode)
		}
	}

	return &out, nil
}
