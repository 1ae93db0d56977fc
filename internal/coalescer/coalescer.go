// Package coalescer implements the per-file write buffer and
// background flusher described in SPEC_FULL.md §4.5, grounded on
// original_source/src/sharesfs/channel_buffer.rs's ChannelBuffer and
// ActiveWrite.
package coalescer

import (
	"sort"
	"sync"
	"time"
)

// Buffer accumulates out-of-order writes to a single file as an
// offset-keyed ordered map, mirroring ChannelBuffer's BTreeMap<u64, Bytes>.
type Buffer struct {
	mu         sync.Mutex
	chunks     map[uint64][]byte
	totalSize  uint64
	lastWrite  time.Time
	isComplete bool
}

// NewBuffer returns an empty write buffer.
func NewBuffer() *Buffer {
	return &Buffer{
		chunks:    make(map[uint64][]byte),
		lastWrite: time.Now(),
	}
}

// Write records data at offset, extending the buffer's logical total
// size if the write reaches past the previous end.
func (b *Buffer) Write(offset uint64, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	b.chunks[offset] = cp
	if end := offset + uint64(len(data)); end > b.totalSize {
		b.totalSize = end
	}
	b.lastWrite = time.Now()
}

// ReadRange returns up to count bytes starting at offset, stopping at
// the first gap in coverage (mirroring ChannelBuffer::read_range).
func (b *Buffer) ReadRange(offset uint64, count uint32) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	end := offset + uint64(count)
	if end > b.totalSize {
		end = b.totalSize
	}
	result := make([]byte, 0, count)
	current := offset
	for current < end {
		chunk, ok := b.chunks[current]
		if !ok {
			break
		}
		n := uint64(len(chunk))
		if remaining := end - current; n > remaining {
			n = remaining
		}
		result = append(result, chunk[:n]...)
		current += n
	}
	return result
}

// ReadAll materializes the full buffer, zero-filling any gaps between
// non-contiguous chunks.
func (b *Buffer) ReadAll() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	result := make([]byte, 0, b.totalSize)
	offsets := make([]uint64, 0, len(b.chunks))
	for off := range b.chunks {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	var expected uint64
	for _, off := range offsets {
		chunk := b.chunks[off]
		if off != expected {
			pad := make([]byte, off-expected)
			result = append(result, pad...)
		}
		result = append(result, chunk...)
		expected = off + uint64(len(chunk))
	}
	return result
}

// TotalSize returns the logical size implied by the highest write seen.
func (b *Buffer) TotalSize() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalSize
}

// IsComplete reports whether SetComplete has been called.
func (b *Buffer) IsComplete() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isComplete
}

// SetComplete sets the flag that IsComplete reports. Write does not
// consult it, and the Monitor's sweep commits by idle time only.
func (b *Buffer) SetComplete() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.isComplete = true
}

// TimeSinceLastWrite reports how long it has been since the most
// recent Write call.
func (b *Buffer) TimeSinceLastWrite() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Since(b.lastWrite)
}

// IsEmpty reports whether the buffer holds no chunks.
func (b *Buffer) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks) == 0
}

// ActiveWrite pairs a Buffer with its own last-activity timestamp, as
// tracked by the monitor's table of in-flight writes.
type ActiveWrite struct {
	Buffer       *Buffer
	LastActivity time.Time
}

// CommitFunc persists a fileid's buffered bytes to durable storage. It
// is supplied by internal/vfs, which owns the backing store.
type CommitFunc func(fileid uint64, data []byte) error

// Monitor drives the idle-timeout flush loop: buffers that have not
// been written to for IdleTimeout are committed and evicted, subject
// to CommitParallelism concurrent commits at a time.
type Monitor struct {
	mu      sync.Mutex
	writes  map[uint64]*ActiveWrite
	commit  CommitFunc
	idle    time.Duration
	sem     chan struct{}
	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewMonitor constructs a Monitor. idleTimeout is how long a buffer
// may go without a write before it is force-committed; commitParallelism
// bounds how many commits run concurrently (the original's
// commit_semaphore, default 10).
func NewMonitor(commit CommitFunc, idleTimeout time.Duration, commitParallelism int) *Monitor {
	if commitParallelism <= 0 {
		commitParallelism = 10
	}
	return &Monitor{
		writes: make(map[uint64]*ActiveWrite),
		commit: commit,
		idle:   idleTimeout,
		sem:    make(chan struct{}, commitParallelism),
	}
}

// Track registers (or replaces) the active write buffer for fileid.
func (m *Monitor) Track(fileid uint64, buf *Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes[fileid] = &ActiveWrite{Buffer: buf, LastActivity: time.Now()}
}

// Touch refreshes the last-activity timestamp for fileid, if tracked.
func (m *Monitor) Touch(fileid uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if aw, ok := m.writes[fileid]; ok {
		aw.LastActivity = time.Now()
	}
}

// Get returns the tracked buffer for fileid, if any.
func (m *Monitor) Get(fileid uint64) (*Buffer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	aw, ok := m.writes[fileid]
	if !ok {
		return nil, false
	}
	return aw.Buffer, true
}

// Start begins the background idle-timeout sweep, checking every
// interval for entries whose LastActivity (set by Track and Touch) is
// at least the idle timeout old, and commits them.
func (m *Monitor) Start(interval time.Duration) {
	m.ticker = time.NewTicker(interval)
	m.stopCh = make(chan struct{})
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-m.ticker.C:
				m.sweep()
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop halts the sweep goroutine and force-commits every remaining
// tracked buffer, used during graceful shutdown.
func (m *Monitor) Stop() {
	if m.ticker != nil {
		m.ticker.Stop()
	}
	if m.stopCh != nil {
		close(m.stopCh)
	}
	m.wg.Wait()
	m.flushAll()
}

func (m *Monitor) sweep() {
	m.mu.Lock()
	var due []uint64
	for fileid, aw := range m.writes {
		if time.Since(aw.LastActivity) >= m.idle {
			due = append(due, fileid)
		}
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, fileid := range due {
		fileid := fileid
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.commitOne(fileid)
		}()
	}
	wg.Wait()
}

func (m *Monitor) flushAll() {
	m.mu.Lock()
	ids := make([]uint64, 0, len(m.writes))
	for fileid := range m.writes {
		ids = append(ids, fileid)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, fileid := range ids {
		fileid := fileid
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.commitOne(fileid)
		}()
	}
	wg.Wait()
}

func (m *Monitor) commitOne(fileid uint64) {
	m.sem <- struct{}{}
	defer func() { <-m.sem }()

	m.mu.Lock()
	aw, ok := m.writes[fileid]
	if ok {
		delete(m.writes, fileid)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	data := aw.Buffer.ReadAll()
	_ = m.commit(fileid, data)
}
