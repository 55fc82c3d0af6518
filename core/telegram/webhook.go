package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/projectnox/bookingbot/core/logger"
	"github.com/projectnox/bookingbot/core/telegram/netutil"
	tgsender "github.com/projectnox/bookingbot/core/telegram/sender"
)

const (
	defaultAPIBase          = "https://api.telegram.org"
	defaultRegisterAttempts = 5
	defaultRegisterBackoff  = 1 * time.Second
)

// ErrRegistrationExhausted reports that the setWebhook retry budget ran out.
var ErrRegistrationExhausted = errors.New("telegram: webhook registration attempts exhausted")

// RegistrationOptions configures RegisterWebhook.
type RegistrationOptions struct {
	Token string
	URL   string
	// APIBase overrides the Telegram API origin, for tests.
	APIBase string
	// MaxAttempts bounds the total number of setWebhook calls; 0 -> 5.
	MaxAttempts int
	// Backoff is the initial delay before a retry, doubled each time; 0 -> 1s.
	Backoff time.Duration
	Client  *http.Client
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// RegisterWebhook registers the public callback URL with the Telegram API.
//
// Rate-limit responses are honored by waiting the provider-specified
// interval before the next attempt. Transient network errors and 5xx
// responses retry with exponential backoff. Any other provider rejection
// (bad token, malformed URL) aborts immediately. When the attempt budget is
// exhausted the returned error wraps ErrRegistrationExhausted; callers must
// treat that as a fatal startup failure.
func RegisterWebhook(ctx context.Context, opts RegistrationOptions) error {
	if strings.TrimSpace(opts.Token) == "" {
		return fmt.Errorf("telegram: empty token")
	}
	if strings.TrimSpace(opts.URL) == "" {
		return fmt.Errorf("telegram: empty webhook url")
	}

	apiBase := strings.TrimRight(opts.APIBase, "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = defaultRegisterAttempts
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = defaultRegisterBackoff
	}
	client := opts.Client
	if client == nil {
		client = BuildHTTPClient()
	}

	endpoint := fmt.Sprintf("%s/bot%s/setWebhook", apiBase, opts.Token)
	form := url.Values{"url": {opts.URL}}.Encode()

	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := postForm(ctx, client, endpoint, form)
		if err != nil {
			lastErr = fmt.Errorf("setWebhook: %s", tgsender.SanitizeErrorMessage(err))
			if !netutil.ShouldRetry(err) || attempt == attempts {
				break
			}
			logger.Warn(ctx, "tg", "webhook.register.retry",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
				slog.String("err", tgsender.SanitizeErrorMessage(err)),
			)
			if err := waitFor(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
			continue
		}

		switch {
		case resp.OK:
			logger.Info(ctx, "tg", "webhook.register",
				slog.String("public_url", opts.URL),
				slog.Int("attempts", attempt),
				slog.Duration("duration", logger.Took(start)),
			)
			return nil

		case resp.ErrorCode == http.StatusTooManyRequests:
			wait := time.Duration(resp.Parameters.RetryAfter) * time.Second
			if wait <= 0 {
				wait = backoff
			}
			lastErr = fmt.Errorf("setWebhook rate limited (retry after %s)", wait)
			if attempt == attempts {
				break
			}
			logger.Warn(ctx, "tg", "webhook.register.rate_limit",
				slog.Int("attempt", attempt),
				slog.Int("retry_after_s", resp.Parameters.RetryAfter),
			)
			// The mandated wait replaces the backoff step without advancing it.
			if err := waitFor(ctx, wait); err != nil {
				return err
			}
			continue

		case resp.ErrorCode >= http.StatusInternalServerError:
			lastErr = fmt.Errorf("setWebhook server error %d: %s", resp.ErrorCode, resp.Description)
			if attempt == attempts {
				break
			}
			logger.Warn(ctx, "tg", "webhook.register.retry",
				slog.Int("attempt", attempt),
				slog.Int("http_code", resp.ErrorCode),
				slog.Duration("backoff", backoff),
			)
			if err := waitFor(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
			continue

		default:
			return fmt.Errorf("setWebhook rejected (%d): %s", resp.ErrorCode, resp.Description)
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no attempts made")
	}
	return fmt.Errorf("%w (%d attempts): %w", ErrRegistrationExhausted, attempts, lastErr)
}

func postForm(ctx context.Context, client *http.Client, endpoint, form string) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, err
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		// Non-JSON bodies come from proxies; map them onto the HTTP status.
		parsed = apiResponse{ErrorCode: resp.StatusCode, Description: strings.TrimSpace(string(body))}
	}
	if parsed.ErrorCode == 0 && !parsed.OK {
		parsed.ErrorCode = resp.StatusCode
	}
	return &parsed, nil
}

func waitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// deleteWebhook removes a previously registered webhook so long polling can
// receive updates again.
func deleteWebhook(ctx context.Context, token string, dropPending bool) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("empty token")
	}
	endpoint := fmt.Sprintf("%s/bot%s/deleteWebhook", defaultAPIBase, token)
	body := "drop_pending_updates=false"
	if dropPending {
		body = "drop_pending_updates=true"
	}
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deleteWebhook status: %s", resp.Status)
	}
	return nil
}
