package core

// Frame is one websocket text payload.
type Frame []byte

// SignalConnection is a bounded outbound queue over a websocket. TrySend
// never blocks; a full queue is reported as backpressure.
// The adapter that dialed or accepted the socket must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
