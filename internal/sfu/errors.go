package sfu

import "errors"

// Kind classifies a core error. Callers at the RPC boundary map Kind to a
// transport-level status.
type Kind int

const (
	// KindNotFound covers missing room, transport, stream, producer,
	// consumer, or cabin lookups.
	KindNotFound Kind = iota
	// KindInvalidArgument covers missing/undefined ids or required fields.
	KindInvalidArgument
	// KindCannotConsume means the router rejected an rtpCapabilities/producer pair.
	KindCannotConsume
	// KindResourceExhausted means a streamId collided past the retry budget.
	KindResourceExhausted
	// KindUpstream means a call to an external collaborator (the audio
	// service) failed.
	KindUpstream
	// KindWorkerDied means the request targeted a room pinned to a worker
	// that is no longer alive.
	KindWorkerDied
)

// CoreError wraps an underlying cause with a Kind so the RPC layer can map
// it to a stable status without string-sniffing the message.
type CoreError struct {
	Kind Kind
	msg  string
	err  error
}

func (e *CoreError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *CoreError) Unwrap() error { return e.err }

func newError(kind Kind, msg string) error {
	return &CoreError{Kind: kind, msg: msg}
}

func wrapError(kind Kind, msg string, err error) error {
	return &CoreError{Kind: kind, msg: msg, err: err}
}

// ErrorKind extracts the Kind of err when err is (or wraps) a *CoreError.
// Otherwise it returns the zero Kind (KindNotFound) with ok=false; ok
// reports whether the extraction succeeded.
func ErrorKind(err error) (Kind, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}

var (
	// ErrRoomNotFound is returned when roomId does not resolve to a MediaRoom.
	ErrRoomNotFound = newError(KindNotFound, "room not found")
	// ErrTransportNotFound is returned when transportId is unknown.
	ErrTransportNotFound = newError(KindNotFound, "transport not found")
	// ErrStreamNotFound is returned when streamId is unknown and the
	// same-publisher fallback lookup also failed.
	ErrStreamNotFound = newError(KindNotFound, "stream not found")
	// ErrProducerNotFound is returned when producerId is unknown.
	ErrProducerNotFound = newError(KindNotFound, "producer not found")
	// ErrConsumerNotFound is returned when consumerId is unknown.
	ErrConsumerNotFound = newError(KindNotFound, "consumer not found")
	// ErrInvalidArgument is returned for missing/blank required fields.
	ErrInvalidArgument = newError(KindInvalidArgument, "invalid argument")
	// ErrCannotConsume is returned when the router rejects rtpCapabilities.
	ErrCannotConsume = newError(KindCannotConsume, "cannot consume")
	// ErrResourceExhausted is returned when streamId generation collides
	// on all ten of its attempts.
	ErrResourceExhausted = newError(KindResourceExhausted, "streamId collision retries exhausted")
	// ErrWorkerDied is returned for operations against a room pinned to a
	// dead worker.
	ErrWorkerDied = newError(KindWorkerDied, "worker died")
)
