package metrics

import "github.com/prometheus/client_golang/prometheus"

// Métricas Prometheus compartilhadas entre os serviços
var (
	RoundsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "casino_rounds_started_total",
		Help: "Rodadas iniciadas por mesa",
	}, []string{"game", "table"})

	RoundsSettled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "casino_rounds_settled_total",
		Help: "Rodadas liquidadas por mesa",
	}, []string{"game", "table"})

	BetsPlaced = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "casino_bets_placed_total",
		Help: "Apostas aceitas",
	}, []string{"kind"})

	BetsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "casino_bets_rejected_total",
		Help: "Apostas recusadas por motivo",
	}, []string{"reason"})

	SettlementFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "casino_settlement_failures_total",
		Help: "Falhas de liquidação por etapa (settle, end, notify)",
	}, []string{"stage"})

	CrashRiskStops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "casino_crash_risk_stops_total",
		Help: "Paradas antecipadas do crash por exposição",
	})

	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "casino_ws_connections",
		Help: "Clientes WebSocket conectados",
	})

	EventsSettled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "casino_sports_events_settled_total",
		Help: "Eventos esportivos liquidados por desfecho (graded, void, replayed)",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		RoundsStarted,
		RoundsSettled,
		BetsPlaced,
		BetsRejected,
		SettlementFailures,
		CrashRiskStops,
		WSConnections,
		EventsSettled,
	)
}
