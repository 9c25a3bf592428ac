// Package lifecycle consumes stream lifecycle transitions from the platform
// event bus and relays them to connected viewers. The streaming control
// plane publishes one record per transition, keyed by stream id.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Notifier receives decoded lifecycle transitions. Implemented by the
// websocket transport.
type Notifier interface {
	NotifyWentLive(streamID string)
	NotifyEnded(streamID string)
}

// transition is the wire format of one lifecycle record.
type transition struct {
	Status    string `json:"status"` // live | ended
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Config holds consumer settings.
type Config struct {
	Brokers []string
	Topic   string
	Group   string
}

// Consumer polls the lifecycle topic and forwards transitions.
type Consumer struct {
	client   *kgo.Client
	notifier Notifier
	logger   zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	processed atomic.Uint64
	failed    atomic.Uint64
}

func NewConsumer(cfg Config, notifier Notifier, logger zerolog.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.Group == "" {
		return nil, fmt.Errorf("consumer group is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topic),
		// Only transitions that happen from now on matter; replaying old
		// lifecycle records would re-announce dead streams.
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.FetchMaxWait(500*time.Millisecond),
		kgo.SessionTimeout(30*time.Second),
		kgo.RebalanceTimeout(60*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Consumer{
		client:   client,
		notifier: notifier,
		logger:   logger.With().Str("component", "lifecycle").Logger(),
	}, nil
}

// Start launches the poll loop.
func (c *Consumer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx)
	c.logger.Info().Msg("Lifecycle consumer started")
}

// Stop drains the poll loop and closes the client.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.client.Close()

	c.logger.Info().
		Uint64("processed", c.processed.Load()).
		Uint64("failed", c.failed.Load()).
		Msg("Lifecycle consumer stopped")
}

// Metrics returns processed/failed record counts.
func (c *Consumer) Metrics() (processed, failed uint64) {
	return c.processed.Load(), c.failed.Load()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return
		}
		for _, ferr := range fetches.Errors() {
			c.logger.Error().
				Err(ferr.Err).
				Str("topic", ferr.Topic).
				Int32("partition", ferr.Partition).
				Msg("Fetch error")
		}
		fetches.EachRecord(c.processRecord)
	}
}

func (c *Consumer) processRecord(record *kgo.Record) {
	streamID := string(record.Key)
	if streamID == "" {
		c.logger.Warn().Str("topic", record.Topic).Msg("Record missing stream id key")
		c.failed.Add(1)
		return
	}

	var tr transition
	if err := json.Unmarshal(record.Value, &tr); err != nil {
		c.logger.Error().
			Err(err).
			Str("stream", streamID).
			Msg("Failed to unmarshal lifecycle record")
		c.failed.Add(1)
		return
	}

	switch tr.Status {
	case "live":
		c.notifier.NotifyWentLive(streamID)
	case "ended":
		c.notifier.NotifyEnded(streamID)
	default:
		c.logger.Warn().
			Str("stream", streamID).
			Str("status", tr.Status).
			Msg("Unknown lifecycle status")
		c.failed.Add(1)
		return
	}

	c.processed.Add(1)
	c.logger.Debug().
		Str("stream", streamID).
		Str("status", tr.Status).
		Msg("Lifecycle transition relayed")
}
