// Package channel provides the bounded inboxes that carry messages from
// network goroutines to the tick loop.
package channel

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
	// Drain returns up to max queued values without blocking. max <= 0 means all.
	Drain(max int) []T
}

// Sender provides write access to a channel.
type Sender[T any] interface {
	Send(T)
	// TrySend queues v unless the channel is full.
	TrySend(T) bool
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}
