package aicp

import "github.com/tboxorg/aicp/aico"

// killingList is the parking lot of spec.md §3: AICOs whose cancellation
// was requested while an operation was PENDING. The reactor consults it
// between waits and performs deferred cancel work so a kill is never
// blocked behind a long-running wait. Guarded by the Proactor's spinlock,
// same as the pool and the spak queues.
type killingList struct {
	items []*aico.AICO
}

func (k *killingList) add(a *aico.AICO) {
	k.items = append(k.items, a)
}

// drain removes and returns every parked AICO, for the worker to process
// outside the lock (deferred cancel work may touch the reactor, which has
// its own internal locks — never nested under the AICP lock, per spec.md
// §5's lock-ordering rule).
func (k *killingList) drain() []*aico.AICO {
	if len(k.items) == 0 {
		return nil
	}
	out := k.items
	k.items = nil
	return out
}
