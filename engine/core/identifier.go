package core

import "github.com/google/uuid"

// RequestID identifies a single asset request across the whole pipeline.
// Completions are correlated by this ID, never by arrival order.
type RequestID = uuid.UUID

var NilRequestID = uuid.Nil

func NewRequestID() RequestID {
	return uuid.New()
}
