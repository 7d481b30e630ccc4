// Package ingestion is the engine's NATS-facing shell: JetStream consumers
// pull command messages off the risk.* subjects, the parser turns them into
// typed commands, and the dispatcher applies them to the engine. Outbound
// envelopes flow back out through the publisher.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Stream names. Each stream groups the subjects one upstream system produces.
const (
	StreamPrices       = "RISK_PRICES"
	StreamFunding      = "RISK_FUNDING"
	StreamTrades       = "RISK_TRADES"
	StreamLiquidations = "RISK_LIQUIDATIONS"
	StreamCustody      = "RISK_CUSTODY"
	StreamEvents       = "RISK_EVENTS"
)

// RawMessage is one consumed JetStream message, tagged with the command type
// its subject carries and holding its ack/nak callbacks.
type RawMessage struct {
	CommandType string
	Subject     string
	Data        []byte
	Ack         func()
	Nak         func()
}

// SubjectConfig binds one subject filter to a command type and its durable
// consumer.
type SubjectConfig struct {
	Subject      string
	CommandType  string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the full command surface: one durable consumer per
// command type so streams scale independently.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "risk.prices.>", CommandType: CommandIndexPrice, ConsumerName: "risk-prices", StreamName: StreamPrices},
		{Subject: "risk.funding.>", CommandType: CommandFundingMultiplier, ConsumerName: "risk-funding", StreamName: StreamFunding},
		{Subject: "risk.trades.>", CommandType: CommandTrade, ConsumerName: "risk-trades", StreamName: StreamTrades},
		{Subject: "risk.liquidations.resolve.>", CommandType: CommandLiquidation, ConsumerName: "risk-liq-resolve", StreamName: StreamLiquidations},
		{Subject: "risk.liquidations.deleverage.>", CommandType: CommandDeleverage, ConsumerName: "risk-liq-deleverage", StreamName: StreamLiquidations},
		{Subject: "risk.custody.deposits.>", CommandType: CommandDeposit, ConsumerName: "risk-deposits", StreamName: StreamCustody},
		{Subject: "risk.custody.withdrawals.>", CommandType: CommandWithdrawal, ConsumerName: "risk-withdrawals", StreamName: StreamCustody},
		{Subject: "risk.custody.exitWithdrawals.>", CommandType: CommandExitWithdrawal, ConsumerName: "risk-exit-withdrawals", StreamName: StreamCustody},
		{Subject: "risk.custody.transfers.>", CommandType: CommandTransfer, ConsumerName: "risk-transfers", StreamName: StreamCustody},
		{Subject: "risk.custody.exits.>", CommandType: CommandWalletExit, ConsumerName: "risk-exits", StreamName: StreamCustody},
		{Subject: "risk.custody.nonceInvalidations.>", CommandType: CommandNonceInvalidation, ConsumerName: "risk-nonce-invalidations", StreamName: StreamCustody},
		{Subject: "risk.custody.delegations.>", CommandType: CommandDelegation, ConsumerName: "risk-delegations", StreamName: StreamCustody},
	}
}

// Subscriber owns the JetStream consumers feeding the dispatcher.
type Subscriber struct {
	js        jetstream.JetStream
	msgChan   chan<- RawMessage
	log       zerolog.Logger
	consumers []jetstream.ConsumeContext
}

func NewSubscriber(js jetstream.JetStream, msgChan chan<- RawMessage, log zerolog.Logger) *Subscriber {
	return &Subscriber{js: js, msgChan: msgChan, log: log}
}

// Subscribe creates a durable, explicit-ack consumer per subject. Redelivery
// is bounded so a poison message cannot wedge a consumer.
func (s *Subscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		cfg := cfg
		consumer, err := s.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		cc, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawMessage{
				CommandType: cfg.CommandType,
				Subject:     msg.Subject(),
				Data:        msg.Data(),
				Ack:         func() { msg.Ack() },
				Nak:         func() { msg.Nak() },
			}
			select {
			case s.msgChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}
		s.consumers = append(s.consumers, cc)
		s.log.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}
	return nil
}

// Stop drains every consumer.
func (s *Subscriber) Stop() {
	for _, cc := range s.consumers {
		cc.Stop()
	}
	s.log.Info().Msg("subscribers stopped")
}

// EnsureStreams creates the command streams if missing. File storage with a
// 72h horizon: long enough to replay an outage, short enough to bound disk.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	streams := []jetstream.StreamConfig{
		{Name: StreamPrices, Subjects: []string{"risk.prices.>"}},
		{Name: StreamFunding, Subjects: []string{"risk.funding.>"}},
		{Name: StreamTrades, Subjects: []string{"risk.trades.>"}},
		{Name: StreamLiquidations, Subjects: []string{"risk.liquidations.>"}},
		{Name: StreamCustody, Subjects: []string{"risk.custody.>"}},
	}
	for _, cfg := range streams {
		cfg.Storage = jetstream.FileStorage
		cfg.Retention = jetstream.LimitsPolicy
		cfg.MaxAge = 72 * time.Hour
		cfg.Replicas = 1
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}
	return nil
}

// Connect establishes a NATS connection and returns its JetStream context.
func Connect(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
