package model

import "time"

// Template is a message body keyed by (template_key, channel_code).
// Placeholders use {{name}} syntax and are filled from the job's
// template_variables at dispatch time.
type Template struct {
	Key       string    `db:"template_key"`
	Channel   Channel   `db:"channel_code"`
	Body      string    `db:"body"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
