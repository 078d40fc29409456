package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateRecord checks the routing metadata a record needs before it can be published.
func ValidateRecord(rec Record) error {
	if rec.Topic == "" {
		return &ValidationError{
			Field:   "topic",
			Message: "record topic is required",
		}
	}

	if rec.Partition != nil && *rec.Partition < 0 {
		return &ValidationError{
			Field:   "partition",
			Message: fmt.Sprintf("partition must be non-negative, got %d", *rec.Partition),
		}
	}

	if rec.Timestamp != nil && *rec.Timestamp < 0 {
		return &ValidationError{
			Field:   "timestamp",
			Message: fmt.Sprintf("timestamp must be non-negative, got %d", *rec.Timestamp),
		}
	}

	return nil
}
