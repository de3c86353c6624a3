package model

// JobEnvelope is the outbox payload written when a job is created
// (Debezium Outbox SMT publishes it to Kafka for the archive pipeline).
type JobEnvelope struct {
	ID             string  `json:"id"`
	TenantID       int64   `json:"tenant_id"`
	IsLive         bool    `json:"is_live"`
	EventTypeCode  string  `json:"event_type_code"`
	Channel        Channel `json:"channel_code"`
	SourceTypeCode string  `json:"source_type_code"`
	SourceID       string  `json:"source_id"`
}

// EnqueueEnvelope is the Kafka ingest payload: an enqueue request
// produced by an upstream caller instead of the HTTP API.
type EnqueueEnvelope struct {
	TenantID          int64   `json:"tenant_id"`
	IsLive            bool    `json:"is_live"`
	EventTypeCode     string  `json:"event_type_code"`
	Channel           Channel `json:"channel_code"`
	SourceTypeCode    string  `json:"source_type_code"`
	SourceID          string  `json:"source_id"`
	RecipientName     string  `json:"recipient_name"`
	RecipientContact  string  `json:"recipient_contact"`
	TemplateKey       string  `json:"template_key"`
	TemplateVariables JSONMap `json:"template_variables"`
	Metadata          JSONMap `json:"metadata"`
	PerformedByType   string  `json:"performed_by_type"`
	PerformedByID     string  `json:"performed_by_id"`
	PerformedByName   string  `json:"performed_by_name"`
}
