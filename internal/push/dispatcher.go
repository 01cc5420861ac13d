package push

import (
	"context"
	"encoding/json"
	"fmt"

	"marketplace-chat/internal/observability"
	"marketplace-chat/internal/repository"
	"marketplace-chat/pkg/logger"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
)

// MaxBatchSize is the FCM multicast limit.
const MaxBatchSize = 500

// Messenger is the part of *messaging.Client the dispatcher uses.
type Messenger interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Message struct {
	Title string
	Body  string
	Data  map[string]interface{}
}

type Result struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
}

func (r *Result) add(o Result) {
	r.SuccessCount += o.SuccessCount
	r.FailureCount += o.FailureCount
	r.InvalidTokens = append(r.InvalidTokens, o.InvalidTokens...)
}

// Dispatcher delivers best-effort push notifications. It never returns
// delivery errors; failures are logged, counted, and tokens the provider
// rejects as invalid are deleted.
type Dispatcher struct {
	messenger      Messenger
	tokens         repository.UserTokenRepository
	logger         *logger.Logger
	metrics        *observability.Metrics
	isInvalidToken func(error) bool
}

type Option func(*Dispatcher)

// WithInvalidTokenClassifier replaces the FCM error classification.
func WithInvalidTokenClassifier(fn func(error) bool) Option {
	return func(d *Dispatcher) {
		d.isInvalidToken = fn
	}
}

// NewDispatcher builds a dispatcher. A nil messenger disables delivery.
func NewDispatcher(m Messenger, tokens repository.UserTokenRepository, l *logger.Logger, metrics *observability.Metrics, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		messenger:      m,
		tokens:         tokens,
		logger:         l.Named("push"),
		metrics:        metrics,
		isInvalidToken: IsInvalidTokenError,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Enabled() bool {
	return d != nil && d.messenger != nil
}

// IsInvalidTokenError reports FCM errors that mean the token will never work
// again.
func IsInvalidTokenError(err error) bool {
	return messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err)
}

func (d *Dispatcher) SendToToken(ctx context.Context, token string, msg Message) Result {
	return d.SendToTokens(ctx, []string{token}, msg)
}

func (d *Dispatcher) SendToTokens(ctx context.Context, tokens []string, msg Message) Result {
	tokens = uniqueTokens(tokens)
	if len(tokens) == 0 {
		return Result{}
	}
	if !d.Enabled() {
		d.logger.Warn("push disabled, dropping notification", zap.Int("tokens", len(tokens)))
		return Result{}
	}

	var total Result
	for start := 0; start < len(tokens); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		total.add(d.sendBatch(ctx, tokens[start:end], msg))
	}

	if len(total.InvalidTokens) > 0 {
		removed, err := d.tokens.DeleteTokens(ctx, total.InvalidTokens)
		if err != nil {
			d.logger.Warn("invalid token cleanup failed", zap.Error(err))
		} else {
			d.logger.Info("removed invalid push tokens", zap.Int64("count", removed))
		}
	}

	d.metrics.PushDelivered(total.SuccessCount, total.FailureCount)
	return total
}

func (d *Dispatcher) SendToUser(ctx context.Context, userID uint, msg Message) Result {
	tokens, err := d.tokens.ListTokensByUser(ctx, userID)
	if err != nil {
		d.logger.Warn("load push tokens failed", zap.Uint("user_id", userID), zap.Error(err))
		return Result{}
	}
	if len(tokens) == 0 {
		return Result{}
	}
	return d.SendToTokens(ctx, tokens, msg)
}

// SendToAllUsers pushes to every device bound to a user, skipping the
// excluded users.
func (d *Dispatcher) SendToAllUsers(ctx context.Context, msg Message, excludeUserIDs []uint) Result {
	tokens, err := d.tokens.ListTokensExcept(ctx, excludeUserIDs)
	if err != nil {
		d.logger.Warn("load push tokens failed", zap.Error(err))
		return Result{}
	}
	return d.SendToTokens(ctx, tokens, msg)
}

func (d *Dispatcher) sendBatch(ctx context.Context, batch []string, msg Message) Result {
	resp, err := d.messenger.SendEachForMulticast(ctx, buildMulticast(batch, msg))
	if err != nil {
		d.logger.Warn("multicast send failed", zap.Int("tokens", len(batch)), zap.Error(err))
		return Result{FailureCount: len(batch)}
	}

	res := Result{SuccessCount: resp.SuccessCount, FailureCount: resp.FailureCount}
	for i, r := range resp.Responses {
		if r == nil || r.Success || i >= len(batch) {
			continue
		}
		if d.isInvalidToken(r.Error) {
			res.InvalidTokens = append(res.InvalidTokens, batch[i])
		}
	}
	return res
}

func buildMulticast(tokens []string, msg Message) *messaging.MulticastMessage {
	badge := 1
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: StringifyData(msg.Data),
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
					Badge: &badge,
				},
			},
		},
	}
}

// StringifyData converts arbitrary values into the string map FCM requires.
// Strings pass through, scalars are formatted and everything else is JSON.
func StringifyData(data map[string]interface{}) map[string]string {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
			out[k] = fmt.Sprint(val)
		default:
			raw, err := json.Marshal(val)
			if err != nil {
				out[k] = fmt.Sprint(val)
				continue
			}
			out[k] = string(raw)
		}
	}
	return out
}

func uniqueTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
