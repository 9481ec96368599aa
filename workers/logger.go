package workers

import "price_tracker/models"

// LogFunc forwards worker events to the run log. Wired to the SQLite store in
// daemon mode; NoOpLogger otherwise.
type LogFunc func(level models.LogLevel, source, message string)

var NoOpLogger LogFunc = func(level models.LogLevel, source, message string) {}
