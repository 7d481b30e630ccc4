package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/idexio/idex-contracts-ikon-sub000/internal/engine"
)

// Publisher forwards applied envelopes to downstream consumers on
// risk.events.{type}.{market}. Publishing is best effort: the event log in
// Postgres is the durable record, so a failed publish is logged and skipped
// rather than retried in line.
type Publisher struct {
	js        jetstream.JetStream
	inputChan <-chan engine.Output
	log       zerolog.Logger
}

func NewPublisher(js jetstream.JetStream, inputChan <-chan engine.Output, log zerolog.Logger) *Publisher {
	return &Publisher{js: js, inputChan: inputChan, log: log}
}

// Run publishes envelopes until the context is canceled or the channel closes.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out, ok := <-p.inputChan:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, out); err != nil {
				p.log.Warn().
					Err(err).
					Int64("sequence", out.Envelope.Sequence).
					Msg("outbound publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, out engine.Output) error {
	data, err := json.Marshal(out.Envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	subject := "risk.events." + out.Envelope.Type.String()
	if out.Envelope.Market != "" {
		subject += "." + out.Envelope.Market
	}
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureEventStream creates the outbound envelope stream.
func EnsureEventStream(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamEvents,
		Subjects:  []string{"risk.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamEvents, err)
	}
	log.Info().Str("stream", StreamEvents).Msg("ensured stream")
	return nil
}
