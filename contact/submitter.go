// nexor/contact/submitter.go
package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"nexor/config"
	"nexor/models"
	"nexor/utils"
)

// Delivery tells where a submission ended up.
type Delivery string

const (
	DeliveredRemote   Delivery = "remote"
	DeliveredFallback Delivery = "fallback"
)

// Result is what the caller learns about a submission. The visitor is told
// it succeeded either way.
type Result struct {
	Delivery Delivery           `json:"delivery"`
	Record   models.ContactForm `json:"-"`
}

// Submitter posts contact forms to a fixed endpoint and keeps them in a
// FallbackStore when delivery fails. Token is sent in the intake header so
// the receiving endpoint can tell the submitter apart from other callers.
type Submitter struct {
	Endpoint string
	Token    string
	Client   *http.Client
	Fallback *FallbackStore
	logger   *slog.Logger
}

func NewSubmitter(endpoint, token string, timeout time.Duration, fallback *FallbackStore, logger *slog.Logger) *Submitter {
	return &Submitter{
		Endpoint: endpoint,
		Token:    token,
		Client:   &http.Client{Timeout: timeout},
		Fallback: fallback,
		logger:   logger.With("component", "contact.Submitter"),
	}
}

// Submit stamps the form as a pending submission and delivers it once. A
// transport error or a non-2xx answer sends the same record to the
// fallback store. An error is only returned when the fallback write fails.
func (s *Submitter) Submit(ctx context.Context, form models.ContactForm) (Result, error) {
	form.ID = ""
	form.Timestamp = utils.ISOTimestamp(utils.GetTime())
	form.Status = "pending"

	err := s.post(ctx, form)
	if err == nil {
		return Result{Delivery: DeliveredRemote, Record: form}, nil
	}

	s.logger.Warn("Storing contact locally", "reason", err, "email", form.Email)
	stored, ferr := s.Fallback.Append(form)
	if ferr != nil {
		s.logger.Error("Failed to store contact in fallback", "error", ferr)
		return Result{}, fmt.Errorf("contact delivery failed (%v) and fallback failed: %w", err, ferr)
	}
	return Result{Delivery: DeliveredFallback, Record: stored}, nil
}

func (s *Submitter) post(ctx context.Context, form models.ContactForm) error {
	body, err := json.Marshal(form)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Token != "" {
		req.Header.Set(config.IntakeTokenHeader, s.Token)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			s.logger.Debug("Failed to drain contact response", "error", err)
		}
		if err := resp.Body.Close(); err != nil {
			s.logger.Error("Failed to close contact response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("contact endpoint returned %s", resp.Status)
	}
	return nil
}
