package orchestrator

const eventBufferSize = 16

// Subscription delivers playback state changes to one subscriber. Sends
// never block; a slow subscriber drops events rather than stalling the
// reconciliation loop.
type Subscription struct {
	StateChanged <-chan State
	Done         <-chan struct{}

	stateCh chan State
	doneCh  chan struct{}
}

func newSubscription() *Subscription {
	s := &Subscription{
		stateCh: make(chan State, eventBufferSize),
		doneCh:  make(chan struct{}),
	}
	s.StateChanged = s.stateCh
	s.Done = s.doneCh
	return s
}

func (s *Subscription) send(state State) {
	select {
	case s.stateCh <- state:
	default:
		// Drop if buffer full.
	}
}

func (s *Subscription) close() {
	close(s.doneCh)
}
