package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// pushTokenKeyPrefix is the Redis key prefix for a user's device token set.
const pushTokenKeyPrefix = "push_tokens:"

// TokenStore maps users to their registered device tokens.
type TokenStore interface {
	Tokens(ctx context.Context, userID int64) ([]string, error)
	Add(ctx context.Context, userID int64, token string) error
	Remove(ctx context.Context, userID int64, token string) error
}

// redisTokenStore keeps one Redis set of device tokens per user.
type redisTokenStore struct {
	redis *redis.Client
}

// NewRedisTokenStore creates a token store on the shared Redis client.
func NewRedisTokenStore(rdb *redis.Client) TokenStore {
	return &redisTokenStore{redis: rdb}
}

func tokenKey(userID int64) string {
	return pushTokenKeyPrefix + strconv.FormatInt(userID, 10)
}

// Tokens returns the user's tokens sorted, so delivery order is stable.
func (s *redisTokenStore) Tokens(ctx context.Context, userID int64) ([]string, error) {
	tokens, err := s.redis.SMembers(ctx, tokenKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading push tokens: %w", err)
	}
	sort.Strings(tokens)
	return tokens, nil
}

// Add registers a device token for the user.
func (s *redisTokenStore) Add(ctx context.Context, userID int64, token string) error {
	if err := s.redis.SAdd(ctx, tokenKey(userID), token).Err(); err != nil {
		return fmt.Errorf("adding push token: %w", err)
	}
	return nil
}

// Remove unregisters a device token.
func (s *redisTokenStore) Remove(ctx context.Context, userID int64, token string) error {
	if err := s.redis.SRem(ctx, tokenKey(userID), token).Err(); err != nil {
		return fmt.Errorf("removing push token: %w", err)
	}
	return nil
}

// PushAdapter sends one gateway request per device token of each listed
// user. A failed token is logged and the batch continues.
type PushAdapter struct {
	gatewayURL string
	apiKey     string
	tokens     TokenStore
	client     *http.Client
}

// NewPushAdapter creates the push adapter. timeout bounds each gateway call.
func NewPushAdapter(gatewayURL, apiKey string, tokens TokenStore, timeout time.Duration) *PushAdapter {
	return &PushAdapter{
		gatewayURL: strings.TrimSuffix(gatewayURL, "/"),
		apiKey:     apiKey,
		tokens:     tokens,
		client:     &http.Client{Timeout: timeout},
	}
}

// pushMessage is the gateway request body.
type pushMessage struct {
	To       string            `json:"to"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Priority string            `json:"priority"`
	Data     map[string]string `json:"data"`
}

// Name implements Adapter.
func (a *PushAdapter) Name() string { return "push" }

// Fields implements Adapter.
func (a *PushAdapter) Fields() []Field {
	return []Field{
		{Name: "users", Title: "Users", Type: "user_ids", Required: true, Help: "Comma-separated user IDs"},
		{Name: "subject", Title: "Title", Type: "text", Required: true},
		{Name: "message", Title: "Message", Type: "textarea", Required: true},
	}
}

// Send delivers to every token of every listed user.
func (a *PushAdapter) Send(ctx context.Context, alert Alert) error {
	if a.gatewayURL == "" || a.apiKey == "" {
		return &AdapterError{Adapter: a.Name(), Err: errors.New("push gateway credentials are missing")}
	}

	var tokens []string
	for _, raw := range splitParam(alert.Params["users"]) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			slog.Warn("push alert: invalid user id", slog.String("user", raw))
			continue
		}
		userTokens, err := a.tokens.Tokens(ctx, id)
		if err != nil {
			return &AdapterError{Adapter: a.Name(), Err: err}
		}
		tokens = append(tokens, userTokens...)
	}
	if len(tokens) == 0 {
		slog.Debug("push alert: no device tokens", slog.String("rule_id", alert.RuleID))
		return nil
	}

	failed := 0
	for _, token := range tokens {
		msg := pushMessage{
			To:       token,
			Title:    alert.Params["subject"],
			Body:     alert.Params["message"],
			Priority: "normal",
			Data: map[string]string{
				"rule_id":   alert.RuleID,
				"record_id": strconv.FormatInt(alert.Record.ID, 10),
			},
		}
		if err := a.post(ctx, msg); err != nil {
			failed++
			slog.Warn("push delivery failed",
				slog.String("rule_id", alert.RuleID),
				slog.String("token", redactToken(token)),
				slog.Any("error", err),
			)
		}
	}

	if failed > 0 {
		return &AdapterError{Adapter: a.Name(), Err: fmt.Errorf("%d of %d push deliveries failed", failed, len(tokens))}
	}
	return nil
}

func (a *PushAdapter) post(ctx context.Context, msg pushMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.gatewayURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+a.apiKey)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway returned %s", resp.Status)
	}
	return nil
}

// redactToken keeps only the tail of a device token for logs.
func redactToken(token string) string {
	if len(token) <= 6 {
		return "***"
	}
	return "***" + token[len(token)-6:]
}

var _ Adapter = (*PushAdapter)(nil)
