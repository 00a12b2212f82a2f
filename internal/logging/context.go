package logging

import "context"

type correlationKey int

const (
	requestIDKey correlationKey = iota
	jobIDKey
	taskIDKey
)

// WithRequestID tags ctx with the id of the inbound API call
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithJobID tags ctx with the job a batch runs for
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// WithTaskID tags ctx with the queue task being processed
func WithTaskID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, taskIDKey, id)
}

// RequestIDFrom returns the request id carried by ctx, or ""
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// correlationFields returns the ids carried by ctx under their log field names
func correlationFields(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}
	fields := make(map[string]interface{}, 3)
	for key, name := range map[correlationKey]string{
		requestIDKey: "request_id",
		jobIDKey:     "job_id",
		taskIDKey:    "task_id",
	} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			fields[name] = v
		}
	}
	return fields
}
