package arrowlog

import "strconv"

// State is the lifecycle state of a Writer.
//
//	InPool --acquire--> Acquired --Recycle(current epoch)--> PendingRecycle --provider--> InPool
//
// WriteRow and Serialize are only valid in StateAcquired. A Recycle call
// carrying an epoch other than the current one leaves the state alone.
type State int32

const (
	StateInPool State = iota
	StateAcquired
	StatePendingRecycle
)

func (s State) String() string {
	switch s {
	case StateInPool:
		return "in_pool"
	case StateAcquired:
		return "acquired"
	case StatePendingRecycle:
		return "pending_recycle"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// WriterProvider takes back writers whose use cycle ended. RecycleWriter
// is invoked by Writer.Recycle, never by users directly.
type WriterProvider interface {
	RecycleWriter(w *Writer)
}

// ReleasingProvider frees a writer's memory when it is recycled. It suits
// writers that are used once and never pooled.
type ReleasingProvider struct{}

// RecycleWriter implements WriterProvider.
func (ReleasingProvider) RecycleWriter(w *Writer) {
	w.release()
	w.setState(StateInPool)
}
