package stream

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/sentra/moderation/internal/domain"
)

// KeyedPool fans chat messages out to a fixed set of workers, hashing the
// user id so all messages from one user land on the same worker. This
// gives per-user ordering with cross-user parallelism.
type KeyedPool struct {
	processor *Processor
	inputs    []chan *domain.ChatMessage
	decisions chan *domain.ChatDecision
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

// NewKeyedPool starts workers goroutines over the processor. Decisions
// from all workers arrive on a single output channel.
func NewKeyedPool(processor *Processor, workers, buffer int) *KeyedPool {
	if workers <= 0 {
		workers = 4
	}
	ctx, cancel := context.WithCancel(context.Background())

	p := &KeyedPool{
		processor: processor,
		inputs:    make([]chan *domain.ChatMessage, workers),
		decisions: make(chan *domain.ChatDecision, buffer),
		cancel:    cancel,
	}
	for i := range p.inputs {
		p.inputs[i] = make(chan *domain.ChatMessage, buffer)
		p.wg.Add(1)
		go p.worker(ctx, p.inputs[i])
	}
	return p
}

// Submit routes a message to its user's worker. Blocks when that worker's
// queue is full; backpressure instead of reordering.
func (p *KeyedPool) Submit(msg *domain.ChatMessage) {
	p.inputs[p.shard(msg.UserID.String())] <- msg
}

// Decisions is the merged output stream.
func (p *KeyedPool) Decisions() <-chan *domain.ChatDecision {
	return p.decisions
}

// Close stops the workers after draining the queued messages and closes
// the decision channel.
func (p *KeyedPool) Close() {
	for _, ch := range p.inputs {
		close(ch)
	}
	p.wg.Wait()
	p.cancel()
	close(p.decisions)
}

func (p *KeyedPool) worker(ctx context.Context, input <-chan *domain.ChatMessage) {
	defer p.wg.Done()
	for msg := range input {
		decision, err := p.processor.Process(msg)
		if err != nil || decision == nil {
			continue
		}
		select {
		case p.decisions <- decision:
		case <-ctx.Done():
			return
		}
	}
}

func (p *KeyedPool) shard(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32()) % len(p.inputs)
}
