package contextkey

// Key is a distinct type so request-scoped values never collide with other packages.
type Key string

const (
	TraceID      Key = "trace_id"
	RequestID    Key = "request_id"
	SubmissionID Key = "submission_id"
)
