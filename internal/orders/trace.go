package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type traceKey struct{}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// NewEnvelope wraps payload in a version 1 envelope correlated to orderID.
func NewEnvelope(ctx context.Context, eventType, producer, orderID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       TraceID(ctx),
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}
