// Package events publishes per-document extraction outcomes to NATS.
//
// Subjects:
//
//	{prefix}.document.completed   items extracted, or document skipped
//	{prefix}.document.failed      inference or parse failure
//
// Payloads carry references, counts and items, never the document body.
package events

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/jking323/TaskHarvester/internal/extraction"
	"github.com/jking323/TaskHarvester/internal/logging"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "taskharvester"

// DocumentEvent is the JSON payload of every published message.
type DocumentEvent struct {
	BatchID     string                  `json:"batch_id,omitempty"`
	DocumentRef string                  `json:"document_ref"`
	SourceType  extraction.SourceType   `json:"source_type"`
	Sender      string                  `json:"sender,omitempty"`
	Items       []extraction.ActionItem `json:"items"`
	Dropped     int                     `json:"dropped"`
	Skipped     bool                    `json:"skipped,omitempty"`
	Failure     *extraction.Failure     `json:"failure,omitempty"`
	Attempts    int                     `json:"attempts"`
	DurationMS  int64                   `json:"duration_ms"`
	Timestamp   time.Time               `json:"timestamp"`
}

// Publisher sends document results to NATS. It implements extraction.Sink.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewPublisher wraps an established connection.
func NewPublisher(nc *nats.Conn, prefix string, logger *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{nc: nc, prefix: prefix, logger: logger, now: time.Now}
}

// Connect dials NATS with reconnects enabled. The connection keeps retrying
// in the background if the server is not up yet.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("taskharvester"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	logger.Info("connected to NATS", zap.String("url", url))
	return nc, nil
}

// Subject returns the subject a result is published on.
func (p *Publisher) Subject(r extraction.DocumentResult) string {
	if r.Failure != nil {
		return p.prefix + ".document.failed"
	}
	return p.prefix + ".document.completed"
}

// Handle implements extraction.Sink.
func (p *Publisher) Handle(ctx context.Context, r extraction.DocumentResult) error {
	items := r.Items
	if items == nil {
		items = []extraction.ActionItem{}
	}
	evt := DocumentEvent{
		BatchID:     logging.BatchIDFromContext(ctx),
		DocumentRef: r.Document.Ref,
		SourceType:  r.Document.SourceType,
		Sender:      r.Document.Sender,
		Items:       items,
		Dropped:     r.Dropped,
		Skipped:     r.Skipped,
		Failure:     r.Failure,
		Attempts:    r.Attempts,
		DurationMS:  r.Duration.Milliseconds(),
		Timestamp:   p.now().UTC(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal document event: %w", err)
	}

	subject := p.Subject(r)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("document event published",
		zap.String("subject", subject),
		zap.String("document.ref", r.Document.Ref),
		zap.Int("items", len(items)))
	return nil
}

// Flush waits until buffered events reach the server.
func (p *Publisher) Flush(ctx context.Context) error {
	return p.nc.FlushWithContext(ctx)
}

var _ extraction.Sink = (*Publisher)(nil)
