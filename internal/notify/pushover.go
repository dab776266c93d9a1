package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cvp-knife/internal/retry"
)

const pushoverAPI = "https://api.pushover.net/1/messages.json"

// Priority levels for Pushover
const (
	PriorityLowest    = -2
	PriorityLow       = -1
	PriorityNormal    = 0
	PriorityHigh      = 1
	PriorityEmergency = 2
)

// Notifier sends push notifications
type Notifier struct {
	appToken string
	userKey  string
	enabled  bool
	endpoint string
	client   *http.Client
	breaker  *retry.CircuitBreaker
}

// New creates a new Pushover notifier
// If appToken or userKey is empty, notifications are disabled
func New(appToken, userKey string) *Notifier {
	return &Notifier{
		appToken: appToken,
		userKey:  userKey,
		enabled:  appToken != "" && userKey != "",
		endpoint: pushoverAPI,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		// Stop hammering Pushover after repeated failures
		breaker: retry.NewCircuitBreaker(5, 5*time.Minute),
	}
}

// WithEndpoint points the notifier at another API URL
func (n *Notifier) WithEndpoint(endpoint string) *Notifier {
	n.endpoint = endpoint
	return n
}

// IsEnabled returns whether notifications are enabled
func (n *Notifier) IsEnabled() bool {
	return n.enabled
}

// Send sends a notification with normal priority
func (n *Notifier) Send(ctx context.Context, title, message string) error {
	return n.SendWithPriority(ctx, title, message, PriorityNormal)
}

// SendWithPriority sends a notification with specified priority
func (n *Notifier) SendWithPriority(ctx context.Context, title, message string, priority int) error {
	if !n.enabled {
		return nil
	}

	data := url.Values{}
	data.Set("token", n.appToken)
	data.Set("user", n.userKey)
	data.Set("title", title)
	data.Set("message", message)
	data.Set("priority", fmt.Sprintf("%d", priority))

	// Emergency priority requires retry and expire parameters
	if priority == PriorityEmergency {
		data.Set("retry", "60")
		data.Set("expire", "3600")
	}

	return n.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := n.client.Do(req)
		if err != nil {
			return fmt.Errorf("pushover request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("pushover returned status %d", resp.StatusCode)
		}
		return nil
	})
}

// NotifyKeyRecovered sends a high-priority notification for key recovery
func (n *Notifier) NotifyKeyRecovered(ctx context.Context, address, method string, sigCount int) error {
	title := "🔑 Private Key Recovered!"
	message := fmt.Sprintf("Address: %s\nMethod: %s\nSignatures: %d",
		shortenAddress(address), method, sigCount)
	return n.SendWithPriority(ctx, title, message, PriorityHigh)
}

// NotifySystemSolved sends a low-priority notification when a queued system is solved
func (n *Notifier) NotifySystemSolved(ctx context.Context, name, fingerprint string, traced int) error {
	title := "✅ System Solved"
	message := fmt.Sprintf("Name: %s\nFingerprint: %s\nTraced values: %d",
		name, shortenHash(fingerprint), traced)
	return n.SendWithPriority(ctx, title, message, PriorityLow)
}

// NotifySystemFailed sends a notification when a queued system cannot be solved
func (n *Notifier) NotifySystemFailed(ctx context.Context, name, fingerprint, reason string) error {
	title := "⚠️ System Failed"
	message := fmt.Sprintf("Name: %s\nFingerprint: %s\nReason: %s",
		name, shortenHash(fingerprint), reason)
	return n.Send(ctx, title, message)
}

// shortenAddress returns a shortened address (0x1234...5678)
func shortenAddress(addr string) string {
	addr = strings.ToLower(addr)
	if len(addr) > 14 {
		return addr[:8] + "..." + addr[len(addr)-6:]
	}
	return addr
}

// shortenHash returns a shortened hash
func shortenHash(hash string) string {
	if len(hash) > 18 {
		return hash[:18] + "..."
	}
	return hash
}
