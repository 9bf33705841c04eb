// Package ingest feeds incident alerts from Kafka into investigations and
// publishes lifecycle events back out for downstream consumers.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/faultline/faultline/internal/session"
)

// maxConcurrentInvestigations bounds how many alerts are worked at once.
// Further alerts wait on the topic until a slot frees, so nothing is lost
// when the daemon is saturated.
const maxConcurrentInvestigations = 4

// dedupeWindow is how long an alert ID blocks redelivery of the same alert.
const dedupeWindow = time.Hour

// Alert is the inbound incident payload on the alert topic.
type Alert struct {
	ID          string `json:"id,omitempty"`
	Service     string `json:"service"`
	Severity    string `json:"severity,omitempty"`
	Description string `json:"description"`
	Source      string `json:"source,omitempty"`
	TraceID     string `json:"trace_id,omitempty"`
	RepoURL     string `json:"repo_url,omitempty"`
	Namespace   string `json:"namespace,omitempty"`
}

// Incident converts the alert into the session incident shape.
func (a Alert) Incident() session.Incident {
	return session.Incident{
		ID:          a.ID,
		Service:     a.Service,
		Severity:    a.Severity,
		Description: a.Description,
		Source:      a.Source,
		TraceID:     a.TraceID,
		RepoURL:     a.RepoURL,
		Namespace:   a.Namespace,
	}
}

func decodeAlert(data []byte) (Alert, error) {
	var a Alert
	if err := json.Unmarshal(data, &a); err != nil {
		return Alert{}, fmt.Errorf("decode alert: %w", err)
	}
	a.Service = strings.TrimSpace(a.Service)
	a.Description = strings.TrimSpace(a.Description)
	if a.Service == "" {
		return Alert{}, fmt.Errorf("alert missing service")
	}
	if a.Description == "" {
		return Alert{}, fmt.Errorf("alert missing description")
	}
	return a, nil
}

// InvestigateFunc launches an investigation for one incident. The router
// calls it on its own goroutine.
type InvestigateFunc func(ctx context.Context, inc session.Incident)

// Router drains the alert consumer and hands each valid incident to the
// investigate callback. Delivery is at least once, deduplicated by alert
// ID within the dedupe window.
type Router struct {
	consumer    Consumer
	investigate InvestigateFunc

	sem chan struct{}

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewRouter creates a router around the consumer.
func NewRouter(consumer Consumer, investigate InvestigateFunc) *Router {
	return &Router{
		consumer:    consumer,
		investigate: investigate,
		sem:         make(chan struct{}, maxConcurrentInvestigations),
		seen:        make(map[string]time.Time),
	}
}

// Run consumes until the context is cancelled or the consumer closes,
// then waits for in-flight investigations to finish.
func (r *Router) Run(ctx context.Context) error {
	if err := r.consumer.Start(ctx); err != nil {
		return fmt.Errorf("ingest: start consumer: %w", err)
	}
	defer r.consumer.Close()
	defer func() {
		for i := 0; i < cap(r.sem); i++ {
			r.sem <- struct{}{}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-r.consumer.Messages():
			if !ok {
				return nil
			}
			r.handleMessage(ctx, msg)
		}
	}
}

func (r *Router) handleMessage(ctx context.Context, msg ConsumerMessage) {
	alert, err := decodeAlert(msg.Value)
	if err != nil {
		slog.Warn("alert dropped", "topic", msg.Topic, "error", err)
		return
	}
	if r.duplicate(alert.ID) {
		slog.Info("alert already seen, skipping", "alert_id", alert.ID)
		return
	}

	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}

	inc := alert.Incident()
	slog.Info("incident received",
		"service", inc.Service,
		"severity", inc.Severity,
		"alert_id", alert.ID)
	go func() {
		defer func() { <-r.sem }()
		r.investigate(ctx, inc)
	}()
}

// duplicate records the alert ID and reports whether it was already seen
// within the window. Alerts without an ID are never deduplicated.
func (r *Router) duplicate(id string) bool {
	if strings.TrimSpace(id) == "" {
		return false
	}
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, at := range r.seen {
		if now.Sub(at) > dedupeWindow {
			delete(r.seen, k)
		}
	}
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = now
	return false
}
