package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chata-intake/common/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrSubmissionFailed the spreadsheet did not accept the record
var ErrSubmissionFailed = errors.New("submission failed")

var errRateLimited = errors.New("rate limited")

// SheetyConfig endpoint is <BaseURL>/<Project>/<Sheet>
type SheetyConfig struct {
	BaseURL string
	Project string
	Sheet   string
	Token   string
	Timeout time.Duration
	Retry   config.RetryConfig
	// RateLimit requests per second across all submissions; 0 disables
	RateLimit float64
	Burst     int
}

// SheetyResult row created by Sheety
type SheetyResult struct {
	RowID    int
	Attempts int
}

// SheetyClient posts rows to a Sheety project
type SheetyClient struct {
	httpClient  *resty.Client
	path        string
	sheet       string
	maxAttempts int
	limiter     *rate.Limiter
	logger      *zap.Logger
}

func NewSheetyClient(cfg SheetyConfig, logger *zap.Logger) *SheetyClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.WaitTime <= 0 {
		cfg.Retry.WaitTime = time.Second
	}
	if cfg.Retry.MaxWaitTime < cfg.Retry.WaitTime {
		cfg.Retry.MaxWaitTime = 8 * cfg.Retry.WaitTime
	}
	if cfg.Sheet == "" {
		cfg.Sheet = DefaultSheet
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retry.MaxAttempts - 1).
		SetRetryWaitTime(cfg.Retry.WaitTime).
		SetRetryMaxWaitTime(cfg.Retry.MaxWaitTime).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(retryable)
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	c := &SheetyClient{
		httpClient:  client,
		path:        "/" + strings.Trim(cfg.Project, "/") + "/" + cfg.Sheet,
		sheet:       cfg.Sheet,
		maxAttempts: cfg.Retry.MaxAttempts,
		logger:      logger,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
		// runs before every attempt, retries included
		client.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			if err := c.limiter.Wait(r.Context()); err != nil {
				return fmt.Errorf("%w: %v", errRateLimited, err)
			}
			return nil
		})
	}
	client.AddRetryHook(func(resp *resty.Response, err error) {
		fields := []zap.Field{zap.String("path", c.path)}
		if resp != nil {
			fields = append(fields, zap.Int("status_code", resp.StatusCode()), zap.Int("attempt", resp.Request.Attempt))
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		c.logger.Warn("Sheety request failed, retrying", fields...)
	})
	return c
}

// Sheet payload wrapper name
func (c *SheetyClient) Sheet() string {
	return c.sheet
}

// retryable transport errors, 429 and 5xx
func retryable(resp *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, errRateLimited) &&
			!errors.Is(err, context.Canceled) &&
			!errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return false
	}
	code := resp.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// Post sends one row. Errors wrap ErrSubmissionFailed with the last cause.
func (c *SheetyClient) Post(ctx context.Context, rec Record) (*SheetyResult, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(Payload(c.sheet, rec)).
		Post(c.path)

	attempts := 1
	if resp != nil && resp.Request != nil && resp.Request.Attempt > 0 {
		attempts = resp.Request.Attempt
	}

	if err != nil {
		c.logger.Error("Sheety API call failed",
			zap.Error(err),
			zap.Int("attempts", attempts),
		)
		return nil, fmt.Errorf("%w after %d attempt(s): %w", ErrSubmissionFailed, attempts, err)
	}
	if resp.IsError() {
		c.logger.Error("Sheety API returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.Int("attempts", attempts),
			zap.String("body", Truncate(resp.String(), 512)),
		)
		return nil, fmt.Errorf("%w after %d attempt(s): status %d", ErrSubmissionFailed, attempts, resp.StatusCode())
	}

	result := &SheetyResult{Attempts: attempts}
	var body map[string]struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		result.RowID = body[c.sheet].ID
	}

	c.logger.Info("Row submitted to Sheety",
		zap.String("chata_id", fmt.Sprint(rec["chataId"])),
		zap.Int("row_id", result.RowID),
		zap.Int("attempts", attempts),
	)
	return result, nil
}
