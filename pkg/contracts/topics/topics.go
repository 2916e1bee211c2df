package topics

const (
	// Resultados de eventos esportivos (feed externo -> worker de liquidação)
	EventResults = "event_results"

	// Auditoria de rodadas liquidadas (game-server -> consumidores externos)
	RoundSettled = "round_settled"

	// DLQs
	EventResultsDLQ = "event_results_dlq"
)
