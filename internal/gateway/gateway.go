// Package gateway is the outbound SMS transport. It knows nothing about
// signups or templates: it normalizes the destination, posts the text and
// returns the provider's message id.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mathemusician/church-volunteers/internal/util"
	"go.uber.org/zap"
)

var ErrCircuitOpen = errors.New("gateway circuit open")

// Gateway sends one text and returns the provider message id.
type Gateway interface {
	Send(ctx context.Context, to, body string) (providerID string, err error)
}

// SendError is a failure reported by the provider itself (success=false).
type SendError struct {
	Provider string
	Reason   string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("provider=%s: %s", e.Provider, e.Reason)
}

type Options struct {
	Name            string
	BaseURL         string
	SendPath        string
	APIKey          string
	ReplyWebhookURL string
	TimeoutMs       int
	FailThreshold   int
	OpenForMs       int
}

type HTTPGateway struct {
	name     string
	url      string
	apiKey   string
	replyURL string
	client   *http.Client
	br       *Breaker
}

func NewHTTPGateway(o Options) *HTTPGateway {
	if o.TimeoutMs <= 0 {
		o.TimeoutMs = 5000
	}

	if o.FailThreshold <= 0 {
		o.FailThreshold = 5
	}

	if o.OpenForMs <= 0 {
		o.OpenForMs = 30000
	}

	if o.SendPath == "" {
		o.SendPath = "/text"
	}

	return &HTTPGateway{
		name:     o.Name,
		url:      strings.TrimRight(o.BaseURL, "/") + o.SendPath,
		apiKey:   o.APIKey,
		replyURL: o.ReplyWebhookURL,
		client:   &http.Client{Timeout: time.Duration(o.TimeoutMs) * time.Millisecond},
		br:       NewBreaker(o.FailThreshold, time.Duration(o.OpenForMs)*time.Millisecond),
	}
}

type sendRequest struct {
	Phone           string `json:"phone"`
	Message         string `json:"message"`
	Key             string `json:"key"`
	ReplyWebhookURL string `json:"replyWebhookUrl,omitempty"`
}

type sendResponse struct {
	Success        bool   `json:"success"`
	TextID         string `json:"textId"`
	QuotaRemaining int    `json:"quotaRemaining"`
	Error          string `json:"error"`
}

// Send rejects numbers that do not normalize without touching the network.
func (g *HTTPGateway) Send(ctx context.Context, to, body string) (string, error) {
	phone, err := util.NormalizePhone(to)
	if err != nil {
		return "", err
	}

	if !g.br.Allow() {
		return "", ErrCircuitOpen
	}

	id, err := g.post(ctx, phone, body)
	// a provider-side rejection says nothing about provider health
	var se *SendError
	g.br.Record(err == nil || errors.As(err, &se))
	if err != nil {
		return "", err
	}
	return id, nil
}

func (g *HTTPGateway) post(ctx context.Context, phone, body string) (string, error) {
	b, _ := json.Marshal(sendRequest{Phone: phone, Message: body, Key: g.apiKey, ReplyWebhookURL: g.replyURL})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")

	res, err := g.client.Do(req)
	if err != nil {
		return "", err
	}

	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return "", fmt.Errorf("provider=%s status=%d", g.name, res.StatusCode)
	}

	var out sendResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("provider=%s decode: %w", g.name, err)
	}
	if !out.Success {
		reason := out.Error
		if reason == "" {
			reason = "send rejected"
		}
		return "", &SendError{Provider: g.name, Reason: reason}
	}
	if out.TextID == "" {
		return "", &SendError{Provider: g.name, Reason: "missing text id"}
	}

	return out.TextID, nil
}

// LogGateway logs instead of sending; used when the network is disabled.
type LogGateway struct {
	Log *zap.Logger
}

func (g LogGateway) Send(_ context.Context, to, body string) (string, error) {
	phone, err := util.NormalizePhone(to)
	if err != nil {
		return "", err
	}
	id := "log-" + util.NewID()
	g.Log.Info("sms not sent (network disabled)",
		zap.String("phone", util.MaskPhone(phone)),
		zap.Int("len", len(body)),
		zap.String("provider_id", id),
	)
	return id, nil
}
