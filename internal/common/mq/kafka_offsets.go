package mq

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

// offsetTracker releases commits in fetch order per partition. A message is only
// committed once it and every earlier message of its partition have been handled,
// so a crash never skips an unfinished task.
type offsetTracker struct {
	mu         sync.Mutex
	partitions map[int]*partitionOffsets
}

type partitionOffsets struct {
	pending []kafka.Message
	done    map[int64]bool
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{partitions: make(map[int]*partitionOffsets)}
}

// track records a fetched message. Must be called in fetch order.
func (t *offsetTracker) track(msg kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.partitions[msg.Partition]
	if p == nil || (len(p.pending) > 0 && msg.Offset <= p.pending[len(p.pending)-1].Offset) {
		// First fetch, or the partition was rewound by a rebalance.
		p = &partitionOffsets{done: make(map[int64]bool)}
		t.partitions[msg.Partition] = p
	}
	p.pending = append(p.pending, msg)
}

// complete marks msg handled and returns the highest message that may now be
// committed. ok is false while an earlier message of the partition is in flight.
func (t *offsetTracker) complete(msg kafka.Message) (commit kafka.Message, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.partitions[msg.Partition]
	if p == nil {
		return kafka.Message{}, false
	}
	p.done[msg.Offset] = true
	n := 0
	for n < len(p.pending) && p.done[p.pending[n].Offset] {
		delete(p.done, p.pending[n].Offset)
		n++
	}
	if n == 0 {
		return kafka.Message{}, false
	}
	commit = p.pending[n-1]
	p.pending = p.pending[n:]
	return commit, true
}
