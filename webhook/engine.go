package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/AltairaLabs/agentgw/clock"
	"github.com/AltairaLabs/agentgw/events"
	"github.com/AltairaLabs/agentgw/internal/gwlog"
	gwerrors "github.com/AltairaLabs/agentgw/pkg/errors"
	"github.com/AltairaLabs/agentgw/pkg/httputil"
)

// Engine delivers signed webhook payloads with retry (spec §4.K).
type Engine struct {
	Client      *http.Client
	Bus         *events.EventBus
	Clk         clock.Clock
	MaxAttempts int
	RetryBaseMs int
}

// NewEngine creates an Engine with the package defaults.
func NewEngine(bus *events.EventBus) *Engine {
	return &Engine{
		Client:      httputil.NewHTTPClient(httputil.DefaultWebhookTimeout),
		Bus:         bus,
		Clk:         clock.Real{},
		MaxAttempts: DefaultMaxAttempts,
		RetryBaseMs: DefaultRetryBaseMs,
	}
}

func (e *Engine) client() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return httputil.NewHTTPClient(httputil.DefaultWebhookTimeout)
}

func (e *Engine) clock() clock.Clock {
	if e.Clk != nil {
		return e.Clk
	}
	return clock.Real{}
}

func (e *Engine) maxAttempts() int {
	if e.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return e.MaxAttempts
}

func (e *Engine) retryBase() time.Duration {
	if e.RetryBaseMs <= 0 {
		return DefaultRetryBaseMs * time.Millisecond
	}
	return time.Duration(e.RetryBaseMs) * time.Millisecond
}

func (e *Engine) publish(evt *events.Event) {
	if e.Bus == nil {
		return
	}
	evt.Timestamp = e.clock().Now()
	e.Bus.Publish(evt)
}

// envelope is the outbound body shape (spec §4.K.2): payload is wrapped
// under a single top-level key.
type envelope struct {
	StreamResponse any `json:"streamResponse"`
}

// DeliverAll fans payload out to every config, spawning one independent
// delivery goroutine per config so a slow or failing webhook never blocks
// the others or the caller (spec §4.K: "Deliveries never block the
// broadcast").
func (e *Engine) DeliverAll(ctx context.Context, payload any, configs []Config) {
	for _, cfg := range configs {
		cfg := cfg
		go func() {
			if err := e.Deliver(ctx, payload, cfg); err != nil {
				gwlog.Warn("webhook: delivery failed", "url", cfg.URL, "error", err)
			}
		}()
	}
}

// Deliver sends payload to cfg's webhook endpoint, signing it per cfg's
// configured scheme and retrying 5xx/transport failures with exponential
// backoff (spec §4.K). 4xx responses are not retried.
func (e *Engine) Deliver(ctx context.Context, payload any, cfg Config) error {
	taskID := cfg.TaskID
	if taskID == "" {
		taskID = extractTaskID(payload)
	}

	if cfg.URL == "" {
		return gwerrors.New("webhook", "deliver", gwerrors.KindNoURL, nil)
	}

	body, err := json.Marshal(envelope{StreamResponse: payload})
	if err != nil {
		return gwerrors.New("webhook", "deliver", gwerrors.KindInvalid, err)
	}

	e.publish(&events.Event{Type: events.EventPushStart, TaskID: taskID, Data: &events.PushAttemptData{URL: cfg.URL}})

	maxInterval := time.Duration(int64(e.retryBase()) * int64(1<<uint(e.maxAttempts())))
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(e.retryBase()),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(maxInterval),
	)

	attempt := 0
	permanent := false
	lastStatus := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		status, attemptErr := e.attempt(ctx, cfg, body, taskID, attempt)
		lastStatus = status
		if attemptErr == nil {
			return struct{}{}, nil
		}
		if status >= 400 && status < 500 {
			permanent = true
			return struct{}{}, backoff.Permanent(attemptErr)
		}
		return struct{}{}, attemptErr
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(e.maxAttempts())))

	if err == nil {
		return nil
	}

	if permanent {
		// A 4xx ends delivery at once. The failure event carries the status
		// and no error, which the metrics listener counts as client_error.
		e.publish(&events.Event{Type: events.EventPushFailure, TaskID: taskID, Data: &events.PushAttemptData{URL: cfg.URL, Attempt: attempt, StatusCode: lastStatus}})
		return gwerrors.New("webhook", "deliver", gwerrors.KindRemote, err)
	}
	e.publish(&events.Event{Type: events.EventPushFailure, TaskID: taskID, Data: &events.PushAttemptData{URL: cfg.URL, Attempt: attempt, Error: err}})
	return gwerrors.New("webhook", "deliver", gwerrors.KindUnreachable, err)
}

// attempt performs a single POST and returns the HTTP status observed (0 if
// the request never completed) and an error if the attempt did not succeed.
func (e *Engine) attempt(ctx context.Context, cfg Config, body []byte, taskID string, attemptNum int) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	if err := e.sign(req, cfg, body); err != nil {
		return 0, err
	}

	resp, err := e.client().Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		e.publish(&events.Event{Type: events.EventPushSuccess, TaskID: taskID, Data: &events.PushAttemptData{URL: cfg.URL, Attempt: attemptNum, StatusCode: resp.StatusCode}})
		return resp.StatusCode, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		gwlog.Warn("webhook: client error response, not retrying", "url", cfg.URL, "status", resp.StatusCode)
		return resp.StatusCode, fmt.Errorf("webhook: client error %d", resp.StatusCode)
	default:
		return resp.StatusCode, fmt.Errorf("webhook: server error %d", resp.StatusCode)
	}
}

// sign builds the request's headers in the order spec §4.K.3 specifies:
// content-type, then bearer token, then HMAC, then JWT. A Config may
// trigger more than one scheme; each adds its own headers.
func (e *Engine) sign(req *http.Request, cfg Config, body []byte) error {
	req.Header.Set("content-type", "application/json")

	if cfg.Token != "" {
		req.Header.Set("x-a2a-token", cfg.Token)
	}

	if cfg.HMACSecret != "" {
		ts := fmt.Sprintf("%d", e.clock().Now().Unix())
		mac := hmac.New(sha256.New, []byte(cfg.HMACSecret))
		mac.Write([]byte(ts + "." + string(body)))
		sig := hex.EncodeToString(mac.Sum(nil))
		req.Header.Set("x-a2a-signature", sig)
		req.Header.Set("x-a2a-timestamp", ts)
	}

	if cfg.JWTSecret != "" {
		token, err := e.signJWT(cfg, body)
		if err != nil {
			return err
		}
		req.Header.Set("authorization", "Bearer "+token)
	}

	return nil
}

func (e *Engine) signJWT(cfg Config, body []byte) (string, error) {
	now := e.clock().Now()
	hash := sha256.Sum256(body)

	claims := jwt.MapClaims{
		"iat":  now.Unix(),
		"exp":  now.Add(time.Duration(cfg.jwtTTL()) * time.Second).Unix(),
		"nbf":  now.Add(-time.Duration(cfg.jwtSkew()) * time.Second).Unix(),
		"hash": hex.EncodeToString(hash[:]),
	}
	if cfg.JWTIssuer != "" {
		claims["iss"] = cfg.JWTIssuer
	}
	if cfg.JWTAudience != "" {
		claims["aud"] = cfg.JWTAudience
	}
	if cfg.TaskID != "" {
		claims["taskId"] = cfg.TaskID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if cfg.JWTKeyID != "" {
		token.Header["kid"] = cfg.JWTKeyID
	}

	return token.SignedString([]byte(cfg.JWTSecret))
}

// extractTaskID pulls a task id out of a payload shaped like the store's
// broadcast content (spec §4.K: "payload.task.id, else
// payload.statusUpdate.taskId, else payload.artifactUpdate.taskId, else
// nil").
func extractTaskID(payload any) string {
	m, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	if task, ok := m["task"].(map[string]any); ok {
		if id, ok := task["id"].(string); ok {
			return id
		}
	}
	if su, ok := m["statusUpdate"].(map[string]any); ok {
		if id, ok := su["taskId"].(string); ok {
			return id
		}
	}
	if au, ok := m["artifactUpdate"].(map[string]any); ok {
		if id, ok := au["taskId"].(string); ok {
			return id
		}
	}
	return ""
}
