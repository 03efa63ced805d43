package observability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// LokiConfig holds Grafana Loki push credentials. Empty fields disable shipping.
type LokiConfig struct {
	URL      string
	User     string
	APIKey   string
	AppName  string
	Instance string
}

type LokiClient struct {
	client   *resty.Client
	enabled  bool
	appName  string
	instance string
}

// Loki Push API format
type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

var defaultClient *LokiClient

func Init(cfg LokiConfig) {
	appName := cfg.AppName
	if appName == "" {
		appName = "gmbdash-dev"
	}
	instance := cfg.Instance
	if instance == "" {
		instance, _ = os.Hostname()
	}

	if cfg.URL == "" || cfg.User == "" || cfg.APIKey == "" {
		log.Println("[observability] Loki not configured, event shipping disabled")
		defaultClient = &LokiClient{appName: appName, instance: instance}
		return
	}

	defaultClient = &LokiClient{
		client: resty.New().
			SetBaseURL(cfg.URL).
			SetBasicAuth(cfg.User, cfg.APIKey).
			SetTimeout(5 * time.Second),
		enabled:  true,
		appName:  appName,
		instance: instance,
	}
	log.Println("[observability] Loki client initialized")
}

// Push ships one event asynchronously. It never blocks the caller.
func Push(labels map[string]string, data map[string]any) {
	if defaultClient == nil || !defaultClient.enabled {
		return
	}
	go defaultClient.push(labels, data)
}

func (c *LokiClient) push(labels map[string]string, data map[string]any) {
	if err := c.send(labels, data); err != nil {
		log.Printf("[observability] Loki push failed: %v", err)
	}
}

func (c *LokiClient) send(labels map[string]string, data map[string]any) error {
	stream := map[string]string{"app": c.appName, "instance": c.instance}
	for k, v := range labels {
		stream[k] = v
	}

	line, err := jsonLine(data)
	if err != nil {
		return err
	}
	req := lokiPushRequest{Streams: []lokiStream{{
		Stream: stream,
		Values: [][]string{{strconv.FormatInt(time.Now().UnixNano(), 10), line}},
	}}}

	resp, err := c.client.R().SetBody(req).Post("/loki/api/v1/push")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}
	return nil
}

// LogRequest records a served API request.
func LogRequest(requestID, method, route string, statusCode int, duration time.Duration) {
	level := "info"
	if statusCode >= 500 {
		level = "error"
	}
	Push(map[string]string{
		"type":   "request",
		"method": method,
		"level":  level,
	}, map[string]any{
		"request_id":  requestID,
		"route":       route,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	})
}

// LogError records an unexpected failure with where it happened.
func LogError(where string, err error) {
	Push(map[string]string{"type": "error", "level": "error"}, map[string]any{
		"context": where,
		"error":   fmt.Sprintf("%v", err),
	})
}

// LogSecurityEvent records auth failures, throttling and panics.
func LogSecurityEvent(requestID, userID, event string, details map[string]any) {
	data := map[string]any{
		"request_id": requestID,
		"user_id":    userID,
		"event":      event,
	}
	for k, v := range details {
		data[k] = v
	}
	Push(map[string]string{"type": "security", "level": "warn"}, data)
}

// LogSync records the outcome of one account sync.
func LogSync(userID, accountID string, counts map[string]int, errs []string, duration time.Duration) {
	status, level := "ok", "info"
	if len(errs) > 0 {
		status, level = "partial", "warn"
	}
	data := map[string]any{
		"user_id":     userID,
		"account_id":  accountID,
		"duration_ms": duration.Milliseconds(),
		"errors":      errs,
	}
	for k, v := range counts {
		data[k] = v
	}
	Push(map[string]string{"type": "sync", "status": status, "level": level}, data)
}

// LogOAuthEvent records connect, callback and disconnect steps.
func LogOAuthEvent(userID, provider, event string, err error) {
	level := "info"
	data := map[string]any{"user_id": userID, "provider": provider, "event": event}
	if err != nil {
		level = "warn"
		data["error"] = err.Error()
	}
	Push(map[string]string{"type": "oauth", "provider": provider, "level": level}, data)
}

func jsonLine(data map[string]any) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	return string(b), nil
}
