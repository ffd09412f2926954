package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubHandler handles sweep trigger messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	sweeper          Sweeper
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Sweeper          Sweeper
	Logger           zerolog.Logger
}

// SweepMessage represents a sweep trigger message.
type SweepMessage struct {
	JobType string `json:"job_type"`

	// RunID limits the sweep to one run. Empty means all active runs.
	RunID string `json:"run_id,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Sweeps are cheap but not instant; keep the backlog small.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 2
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		sweeper:          cfg.Sweeper,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	var sweepMsg SweepMessage
	if err := json.Unmarshal(msg.Data, &sweepMsg); err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		msg.Nack()
		return
	}

	switch sweepMsg.JobType {
	case "sweep":
		// A duplicate delivery just causes a redundant sweep; every write
		// goes through the merge discipline, so re-running is harmless.
		if err := h.handleSweep(ctx, sweepMsg.RunID); err != nil {
			logger.Error().Err(err).Msg("sweep failed")
			msg.Nack()
			return
		}
	default:
		logger.Warn().Str("job_type", sweepMsg.JobType).Msg("unknown job type")
		msg.Ack() // Ack unknown messages to prevent redelivery
		return
	}

	logger.Info().
		Str("job_type", sweepMsg.JobType).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")

	msg.Ack()
}

func (h *PubSubHandler) handleSweep(ctx context.Context, runID string) error {
	if runID != "" {
		return h.sweeper.RunOne(ctx, runID)
	}

	result, err := h.sweeper.Run(ctx)
	if err != nil {
		return err
	}

	// A sweep where most runs fail points at a shared dependency being down;
	// let the message redeliver once it recovers.
	if result.Failed > result.Successful && result.Failed > 0 {
		return fmt.Errorf("too many sweep failures: %d/%d", result.Failed, result.TotalRuns)
	}

	return nil
}
