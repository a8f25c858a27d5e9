// Package push delivers device notifications through the Expo push API.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/javery-app/javery-backend/pkg/config"
	pkgerrors "github.com/javery-app/javery-backend/pkg/errors"
)

const (
	DefaultEndpoint             = "https://exp.host/--/api/v2/push/send"
	defaultTimeout              = 10 * time.Second
	defaultSound                = "default"
	responseBodyReadLimit int64 = 1024
)

// ErrDeliveryFailed marks every failed delivery attempt. Callers treat it as
// best-effort and never retry.
var ErrDeliveryFailed = errors.New("push delivery failed")

var uuidTokenPattern = regexp.MustCompile(`^[a-zA-Z0-9]{8}-[a-zA-Z0-9]{4}-[a-zA-Z0-9]{4}-[a-zA-Z0-9]{4}-[a-zA-Z0-9]{12}$`)

// IsExpoPushToken reports whether token is syntactically an Expo device token.
func IsExpoPushToken(token string) bool {
	if (strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")) &&
		strings.HasSuffix(token, "]") {
		return true
	}
	return uuidTokenPattern.MatchString(token)
}

// Message is one notification for one device.
type Message struct {
	To    string
	Title string
	Body  string
	Data  map[string]string
}

type wireMessage struct {
	To    string            `json:"to"`
	Sound string            `json:"sound"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Sender is the surface the notification dispatcher depends on.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Client posts messages to the push gateway.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	accessToken string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds a push client from config. Endpoint and timeout fall back
// to the public Expo defaults.
func NewClient(cfg config.PushConfig, opts ...Option) *Client {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		httpClient:  &http.Client{Timeout: timeout},
		endpoint:    endpoint,
		accessToken: strings.TrimSpace(cfg.AccessToken),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// Send makes exactly one delivery attempt. The response body is not
// interpreted beyond the HTTP status.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if c == nil {
		return deliveryError(errors.New("push client not configured"), "push client not configured")
	}
	if strings.TrimSpace(msg.To) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "push token is required")
	}

	payload, err := json.Marshal(wireMessage{
		To:    msg.To,
		Sound: defaultSound,
		Title: msg.Title,
		Body:  msg.Body,
		Data:  msg.Data,
	})
	if err != nil {
		return deliveryError(err, "marshal push message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return deliveryError(err, "build push request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return deliveryError(err, "execute push request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return deliveryError(fmt.Errorf("status %d: %s", resp.StatusCode, readErrorBody(resp)), "push request rejected")
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, responseBodyReadLimit))
	return nil
}

// readErrorBody returns the start of a rejected response as text. The
// request asks for gzip or deflate explicitly, so net/http leaves decoding
// to us.
func readErrorBody(resp *http.Response) string {
	var body io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "undecodable gzip body"
		}
		defer zr.Close()
		body = zr
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return "undecodable deflate body"
		}
		defer zr.Close()
		body = zr
	}
	msg, _ := io.ReadAll(io.LimitReader(body, responseBodyReadLimit))
	return strings.TrimSpace(string(msg))
}

func deliveryError(cause error, message string) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("%w: %w", ErrDeliveryFailed, cause), message)
}
