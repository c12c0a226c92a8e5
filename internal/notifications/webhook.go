package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjannette/finagg-backend/internal/httputil"
	"github.com/kjannette/finagg-backend/internal/logging"
	"github.com/kjannette/finagg-backend/internal/models"
)

const DefaultAppName = "FinancialAggregator"

type Sender struct {
	webhookURL string
	appName    string
	httpClient *http.Client
	retry      httputil.RetryConfig
	log        *zap.SugaredLogger
}

func NewSender(webhookURL, appName string, log *zap.SugaredLogger) *Sender {
	if appName == "" {
		appName = DefaultAppName
	}
	log = logging.OrNop(log)
	return &Sender{
		webhookURL: webhookURL,
		appName:    appName,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
			Log:         log,
		},
		log: log,
	}
}

// Send logs msg and, when a webhook is configured, posts it. Delivery
// failures are logged and never returned.
func (s *Sender) Send(ctx context.Context, msg string) {
	formatted := fmt.Sprintf("[%s] %s", s.appName, msg)
	s.log.Info(formatted)

	if s.webhookURL == "" {
		return
	}

	body, err := json.Marshal(s.formatPayload(formatted))
	if err != nil {
		s.log.Errorw("marshal notification", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := httputil.Do(ctx, s.httpClient, s.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		s.log.Errorw("failed to send notification after retries", "error", err)
		return
	}
	resp.Body.Close()
}

// ImportFinished reports the outcome of one import run.
func (s *Sender) ImportFinished(ctx context.Context, sum *models.ImportSummary) {
	s.Send(ctx, FormatSummary(sum))
}

func FormatSummary(sum *models.ImportSummary) string {
	took := sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond)
	if sum.Failed() {
		return fmt.Sprintf("Data import from %s failed after %d points in %d batches (%s): %s",
			sum.Source, sum.Imported, sum.Batches, took, sum.Error)
	}
	return fmt.Sprintf("Data import completed successfully: %s, %d imported, %d skipped, %d missing fields (%s)",
		sum.Source, sum.Imported, sum.Skipped, sum.MissingFields, took)
}

func (s *Sender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  msg,
			"username": s.appName,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("`%s`", msg),
		"username": s.appName,
	}
}

func (s *Sender) Enabled() bool {
	return s.webhookURL != ""
}
