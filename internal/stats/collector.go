package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

const ringSize = 60

// Reader is the read side of a Collector used by presenters.
type Reader interface {
	Snapshot() Snapshot
}

// ReadTicker is a Reader whose rolling rates presenters advance once a second.
type ReadTicker interface {
	Reader
	Tick()
	RollingSpeed(seconds int) float64
}

// Collector tracks run statistics using lock-free atomic counters.
type Collector struct {
	scopesTotal     atomic.Int64
	scopesCompleted atomic.Int64
	scopesFailed    atomic.Int64
	filesScanned    atomic.Int64
	filesCopied     atomic.Int64
	bytesCopied     atomic.Int64
	filesDeleted    atomic.Int64
	bytesDeleted    atomic.Int64
	filesFailed     atomic.Int64
	filesVerified   atomic.Int64
	mismatches      atomic.Int64
	rollbacks       atomic.Int64
	startTime       time.Time

	// Ring buffer, written only by the presenter's Tick().
	mu         sync.Mutex
	throughput [ringSize]int64 // bytes delta per second
	ringIdx    int
	ringCount  int
	lastBytes  int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// SetScopesTotal records how many scopes the run will process.
func (c *Collector) SetScopesTotal(n int64) { c.scopesTotal.Store(n) }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	ScopesTotal     int64
	ScopesCompleted int64
	ScopesFailed    int64
	FilesScanned    int64
	FilesCopied     int64
	BytesCopied     int64
	FilesDeleted    int64
	BytesDeleted    int64
	FilesFailed     int64
	FilesVerified   int64
	Mismatches      int64
	Rollbacks       int64
	Elapsed         time.Duration
}

func (c *Collector) AddScopesCompleted(n int64) { c.scopesCompleted.Add(n) }
func (c *Collector) AddScopesFailed(n int64)    { c.scopesFailed.Add(n) }
func (c *Collector) AddFilesScanned(n int64)    { c.filesScanned.Add(n) }
func (c *Collector) AddFilesCopied(n int64)     { c.filesCopied.Add(n) }
func (c *Collector) AddBytesCopied(n int64)     { c.bytesCopied.Add(n) }
func (c *Collector) AddFilesDeleted(n int64)    { c.filesDeleted.Add(n) }
func (c *Collector) AddBytesDeleted(n int64)    { c.bytesDeleted.Add(n) }
func (c *Collector) AddFilesFailed(n int64)     { c.filesFailed.Add(n) }
func (c *Collector) AddFilesVerified(n int64)   { c.filesVerified.Add(n) }
func (c *Collector) AddMismatches(n int64)      { c.mismatches.Add(n) }
func (c *Collector) AddRollbacks(n int64)       { c.rollbacks.Add(n) }

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		ScopesTotal:     c.scopesTotal.Load(),
		ScopesCompleted: c.scopesCompleted.Load(),
		ScopesFailed:    c.scopesFailed.Load(),
		FilesScanned:    c.filesScanned.Load(),
		FilesCopied:     c.filesCopied.Load(),
		BytesCopied:     c.bytesCopied.Load(),
		FilesDeleted:    c.filesDeleted.Load(),
		BytesDeleted:    c.bytesDeleted.Load(),
		FilesFailed:     c.filesFailed.Load(),
		FilesVerified:   c.filesVerified.Load(),
		Mismatches:      c.mismatches.Load(),
		Rollbacks:       c.rollbacks.Load(),
		Elapsed:         c.Elapsed(),
	}
}

// Tick snapshots the byte delta into the ring buffer. Called 1/sec by the presenter.
func (c *Collector) Tick() {
	current := c.bytesCopied.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.throughput[c.ringIdx] = current - c.lastBytes
	c.lastBytes = current
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n seconds of samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(seconds, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += c.throughput[idx]
	}
	return float64(sum) / float64(count)
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"scopes=%d/%d failed=%d copied=%d bytes=%d deleted=%d verified=%d mismatches=%d rollbacks=%d",
		s.ScopesCompleted, s.ScopesTotal, s.ScopesFailed, s.FilesCopied,
		s.BytesCopied, s.FilesDeleted, s.FilesVerified, s.Mismatches, s.Rollbacks,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	if b < 0 {
		return "-" + humanize.IBytes(uint64(-b))
	}
	return humanize.IBytes(uint64(b))
}
