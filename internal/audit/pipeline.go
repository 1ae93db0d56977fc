package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the audit handler's window lifecycle state, mirroring
// spec.md §4.8's Idle -> Receiving -> WindowClosing -> Committed cycle.
type State int

const (
	StateIdle State = iota
	StateReceiving
	StateWindowClosing
	StateCommitted
)

// WindowCommit is published each time a window closes.
type WindowCommit struct {
	WindowID    string
	WindowStart time.Time
	WindowEnd   time.Time
	Root        []byte
}

// Pipeline is the channel-driven audit handler: Submit enqueues events
// onto a bounded channel (capacity 100, per the original
// MerkleBasedAuditSystem::new), and a single background goroutine
// drains it, accumulating leaves into the current window's Merkle
// tree and closing the window on a fixed interval.
type Pipeline struct {
	events     chan Event
	windowSize time.Duration
	onCommit   func(WindowCommit)

	mu          sync.Mutex
	state       State
	tree        *windowTree
	leafEvents  []Event
	windowStart time.Time
	windowID    string

	done chan struct{}
}

const channelCapacity = 100

// NewPipeline constructs a Pipeline with the given window duration.
// onCommit, if non-nil, is invoked synchronously from the handler
// goroutine each time a window closes.
func NewPipeline(windowSize time.Duration, onCommit func(WindowCommit)) *Pipeline {
	return &Pipeline{
		events:     make(chan Event, channelCapacity),
		windowSize: windowSize,
		onCommit:   onCommit,
		state:      StateIdle,
		done:       make(chan struct{}),
	}
}

// Submit enqueues an event for audit. It blocks if the channel is
// full, applying natural backpressure to callers rather than dropping
// events.
func (p *Pipeline) Submit(ctx context.Context, e Event) error {
	select {
	case p.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the event channel until ctx is cancelled, then closes
// any open window and returns. It is meant to run in its own
// goroutine, started once at server startup.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.windowSize)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-p.events:
			if !ok {
				p.closeWindow()
				return
			}
			p.receive(e)
		case <-ticker.C:
			p.closeWindow()
		case <-ctx.Done():
			// Drain whatever is already queued before closing the
			// final window, so no submitted event is silently lost.
			for {
				select {
				case e := <-p.events:
					p.receive(e)
				default:
					p.closeWindow()
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (p *Pipeline) Wait() {
	<-p.done
}

func (p *Pipeline) receive(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateIdle || p.tree == nil {
		p.tree = newWindowTree()
		p.leafEvents = nil
		p.windowStart = time.Now()
		p.windowID = uuid.NewString()
		p.state = StateReceiving
	}
	p.tree.addLeaf(e.canonicalEncoding())
	p.leafEvents = append(p.leafEvents, e)
}

func (p *Pipeline) closeWindow() {
	p.mu.Lock()
	if p.state != StateReceiving || p.tree == nil || len(p.leafEvents) == 0 {
		p.mu.Unlock()
		return
	}
	p.state = StateWindowClosing
	root := p.tree.root()
	commit := WindowCommit{
		WindowID:    p.windowID,
		WindowStart: p.windowStart,
		WindowEnd:   time.Now(),
		Root:        root,
	}
	p.state = StateCommitted
	p.tree = nil
	p.leafEvents = nil
	p.state = StateIdle
	p.mu.Unlock()

	if p.onCommit != nil {
		p.onCommit(commit)
	}
}
