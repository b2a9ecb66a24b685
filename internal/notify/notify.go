// Package notify доставляет уведомления апортёрам через внешний шлюз.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Kind описывает тип уведомления.
type Kind string

const (
	KindSale              Kind = "sale"
	KindCascade           Kind = "cascade"
	KindBadge             Kind = "badge"
	KindChallengeComplete Kind = "challenge"
)

// Message: уведомление для одного получателя.
type Message struct {
	Kind  Kind   `json:"kind"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Notifier отправляет уведомление получателю.
type Notifier interface {
	Notify(ctx context.Context, recipientID int64, msg Message) error
}

// ErrRateLimited возвращается, когда шлюз просит повторить запрос позже.
var ErrRateLimited = errors.New("notification gateway rate limited")

// RateLimitError содержит рекомендованную шлюзом паузу.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// Client инкапсулирует HTTP-взаимодействие со шлюзом уведомлений.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт HTTP-клиент шлюза уведомлений по указанному адресу.
func NewClient(baseURL string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type notificationRequest struct {
	RecipientID int64 `json:"recipient_id"`
	Message
}

// Notify отправляет уведомление POST-запросом на /api/notifications.
func (c *Client) Notify(ctx context.Context, recipientID int64, msg Message) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("notification client not configured")
	}

	payload, err := json.Marshal(notificationRequest{RecipientID: recipientID, Message: msg})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/notifications", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return &RateLimitError{RetryAfter: retryAfter}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}

// LogNotifier пишет уведомления в лог. Используется, когда шлюз не настроен.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier создаёт уведомитель, пишущий в переданный логгер.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify записывает уведомление в лог и никогда не возвращает ошибку.
func (n *LogNotifier) Notify(_ context.Context, recipientID int64, msg Message) error {
	n.logger.Info("notification",
		zap.Int64("recipientID", recipientID),
		zap.String("kind", string(msg.Kind)),
		zap.String("title", msg.Title),
	)
	return nil
}
