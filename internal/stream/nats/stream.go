// Package natsstream publishes committed auction events to a NATS JetStream
// stream so downstream consumers can replay them.
package natsstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/alanyoungcy/gemauction/internal/domain"
)

// Defaults used when Config leaves a field empty.
const (
	DefaultStreamName    = "AUCTION_EVENTS"
	DefaultSubjectPrefix = "auction.events"
	defaultMaxAge        = 7 * 24 * time.Hour
)

// Config holds connection and stream parameters.
type Config struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxAge        time.Duration
	Replicas      int
}

func (c Config) withDefaults() Config {
	if c.StreamName == "" {
		c.StreamName = DefaultStreamName
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = DefaultSubjectPrefix
	}
	if c.MaxAge <= 0 {
		c.MaxAge = defaultMaxAge
	}
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
	return c
}

// Stream implements domain.EventStream on JetStream.
type Stream struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	prefix string
}

var _ domain.EventStream = (*Stream)(nil)

// Connect dials NATS and creates or updates the event stream.
func Connect(ctx context.Context, cfg Config) (*Stream, error) {
	cfg = cfg.withDefaults()

	conn, err := nats.Connect(cfg.URL,
		nats.Name("gemauction"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("natsstream: connect %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("natsstream: jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Committed auction events",
		Subjects:    []string{cfg.SubjectPrefix + ".*"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		Replicas:    cfg.Replicas,
		Duplicates:  2 * time.Minute,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("natsstream: create stream %s: %w", cfg.StreamName, err)
	}

	return &Stream{conn: conn, js: js, prefix: cfg.SubjectPrefix}, nil
}

// Subject returns the subject an event of type typ is published on.
func (s *Stream) Subject(typ domain.AuctionEventType) string {
	return subject(s.prefix, typ)
}

func subject(prefix string, typ domain.AuctionEventType) string {
	return prefix + "." + string(typ)
}

// Publish appends ev to the stream and waits for the server ack. The message
// id lets JetStream drop a duplicate publish inside the dedup window.
func (s *Stream) Publish(ctx context.Context, ev domain.AuctionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("natsstream: marshal %s event: %w", ev.Type, err)
	}
	if _, err := s.js.Publish(ctx, s.Subject(ev.Type), payload, jetstream.WithMsgID(messageID(ev))); err != nil {
		return fmt.Errorf("natsstream: publish %s for %s: %w: %w", ev.Type, ev.AuctionID, domain.ErrPublishFailed, err)
	}
	return nil
}

// Close drains the connection.
func (s *Stream) Close() error {
	if err := s.conn.Drain(); err != nil {
		return fmt.Errorf("natsstream: drain: %w", err)
	}
	return nil
}

func messageID(ev domain.AuctionEvent) string {
	id := ev.AuctionID + ":" + string(ev.Type) + ":" + strconv.FormatInt(ev.At.UnixNano(), 10)
	if ev.BidID != "" {
		id += ":" + ev.BidID
	}
	return id
}
