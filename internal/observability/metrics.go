package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric the risk engine exports.
type Metrics struct {
	// Engine processing
	CommandsApplied  *prometheus.CounterVec
	CommandsRejected *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	EngineSequence   prometheus.Gauge

	// Settlement
	TradesSettled     *prometheus.CounterVec
	TradeNotional     *prometheus.CounterVec
	FeesCollected     *prometheus.CounterVec
	RealizedPnLTotal  *prometheus.CounterVec

	// Funding
	FundingMultipliersPublished *prometheus.CounterVec

	// Liquidation
	LiquidationsResolved  *prometheus.CounterVec
	DeleveragesExecuted   *prometheus.CounterVec
	InsuranceFundBalance  prometheus.Gauge
	ExitFundBalance       prometheus.Gauge

	// Custody
	DepositsReceived     prometheus.Counter
	WithdrawalsExecuted  prometheus.Counter
	TransfersExecuted    prometheus.Counter

	// Channel & backpressure
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     prometheus.Counter
	PersistBackpressure prometheus.Counter

	// Idempotency & ingestion
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	IngestMessages        *prometheus.CounterVec
	IngestErrors          *prometheus.CounterVec

	// Persistence
	PersistEventsWritten prometheus.Counter
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistLastSequence  prometheus.Gauge
	SnapshotTaken        prometheus.Counter
	SnapshotDuration     prometheus.Histogram

	// Query API
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers every metric on the default registry.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		CommandsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_commands_applied_total",
			Help: "Commands successfully applied by the engine",
		}, []string{"command"}),

		CommandsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_commands_rejected_total",
			Help: "Commands rejected (validation, insufficiency, conflict, duplicate)",
		}, []string{"command", "reason"}),

		CommandDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "risk_command_duration_seconds",
			Help:    "Time to apply a single command",
			Buckets: latencyBuckets,
		}, []string{"command"}),

		EngineSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "risk_engine_sequence",
			Help: "Current global event sequence",
		}),

		TradesSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_trades_settled_total",
			Help: "Fills settled",
		}, []string{"market"}),

		TradeNotional: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_trade_notional_pips",
			Help: "Cumulative settled quote quantity in pips",
		}, []string{"market"}),

		FeesCollected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_fees_collected_pips",
			Help: "Cumulative fees credited to the fee wallet in pips",
		}, []string{"market"}),

		RealizedPnLTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_realized_pnl_abs_pips",
			Help: "Cumulative absolute realized PnL in pips",
		}, []string{"market"}),

		FundingMultipliersPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_funding_multipliers_published_total",
			Help: "Funding multipliers accepted",
		}, []string{"market"}),

		LiquidationsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_liquidations_resolved_total",
			Help: "Liquidations resolved per path",
		}, []string{"path"}),

		DeleveragesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_deleverages_executed_total",
			Help: "Forced deleverages per kind",
		}, []string{"kind"}),

		InsuranceFundBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "risk_insurance_fund_balance_pips",
			Help: "Insurance fund quote balance",
		}),

		ExitFundBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "risk_exit_fund_balance_pips",
			Help: "Exit fund quote balance",
		}),

		DepositsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "risk_deposits_received_total",
			Help: "Deposits credited",
		}),

		WithdrawalsExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "risk_withdrawals_executed_total",
			Help: "Withdrawals debited (including exit withdrawals)",
		}),

		TransfersExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "risk_transfers_executed_total",
			Help: "Internal transfers executed",
		}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "risk_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "risk_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "risk_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "risk_projection_drops_total",
			Help: "Events dropped due to a full projection channel",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "risk_persist_backpressure_total",
			Help: "Times the engine blocked on the persist channel",
		}),

		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"command", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "risk_dedup_lru_size",
			Help: "Current dedup LRU occupancy",
		}),

		IngestMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_ingest_messages_total",
			Help: "Messages consumed per stream",
		}, []string{"stream"}),

		IngestErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_ingest_errors_total",
			Help: "Malformed or rejected ingest messages",
		}, []string{"stream", "reason"}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "risk_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "risk_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "risk_snapshot_taken_total",
			Help: "State snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "risk_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
