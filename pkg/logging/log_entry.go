package logging

// LogEntry represents a structured log record emitted by the lore pipeline.
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Evaluation-specific fields
	EvaluationID string // Correlates all records of one evaluate call
	TokensUsed   int    // Running token usage at the time of the record

	// General structured data
	Fields map[string]interface{}
}
