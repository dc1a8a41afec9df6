package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// quotaReasons are Google API error reasons that mean "stop for today"
var quotaReasons = map[string]bool{
	"dailyLimitExceeded":    true,
	"quotaExceeded":         true,
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"RATE_LIMIT_EXCEEDED":   true,
	"RESOURCE_EXHAUSTED":    true,
}

// APIError is a non-quota error returned by the search API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("search api: status %d: %s", e.StatusCode, e.Message)
}

// Google queries the Custom Search JSON API
type Google struct {
	apiKey     string
	engineID   string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGoogle creates a Google client. baseURL may be empty for the public endpoint.
func NewGoogle(apiKey, engineID, baseURL string, timeout time.Duration, transport http.RoundTripper, logger *slog.Logger) *Google {
	if baseURL == "" {
		baseURL = "https://customsearch.googleapis.com/customsearch/v1"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Google{
		apiKey:   apiKey,
		engineID: engineID,
		baseURL:  baseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger,
	}
}

type googleResponse struct {
	Items []struct {
		Link string `json:"link"`
	} `json:"items"`
}

type googleError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
		Details []struct {
			Reason string `json:"reason"`
		} `json:"details"`
	} `json:"error"`
}

// Search runs one API request
func (g *Google) Search(ctx context.Context, q Query) ([]string, error) {
	limit := q.Limit
	if limit <= 0 || limit > PageSize {
		limit = PageSize
	}

	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.engineID)
	params.Set("q", q.Text)
	params.Set("num", strconv.Itoa(limit))
	if q.Offset > 0 {
		params.Set("start", strconv.Itoa(q.Offset+1))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		// *url.Error embeds the request URL, which carries the API key
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyError(resp.StatusCode, body)
	}

	var parsed googleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	urls := make([]string, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link != "" {
			urls = append(urls, item.Link)
		}
	}
	g.logger.Debug("search page", "query", q.Text, "offset", q.Offset, "results", len(urls))
	return urls, nil
}

func classifyError(status int, body []byte) error {
	if status == http.StatusTooManyRequests {
		return fmt.Errorf("status %d: %w", status, ErrQuotaExceeded)
	}

	var ge googleError
	_ = json.Unmarshal(body, &ge)
	if status == http.StatusForbidden {
		if quotaReasons[ge.Error.Status] {
			return fmt.Errorf("status %d %s: %w", status, ge.Error.Status, ErrQuotaExceeded)
		}
		for _, e := range ge.Error.Errors {
			if quotaReasons[e.Reason] {
				return fmt.Errorf("status %d %s: %w", status, e.Reason, ErrQuotaExceeded)
			}
		}
		for _, d := range ge.Error.Details {
			if quotaReasons[d.Reason] {
				return fmt.Errorf("status %d %s: %w", status, d.Reason, ErrQuotaExceeded)
			}
		}
	}

	msg := ge.Error.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: msg}
}
