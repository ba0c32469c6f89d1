package lockstep

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pierrec/lz4/v4"
	"golang.org/x/time/rate"
)

const (
	eventBufferSize    = 1024                   // circular buffer size
	maxEventsPerSec    = 10000                  // global rate limit
	batchFlushSize     = 64                     // events per batch write
	batchFlushInterval = 100 * time.Millisecond // how often to flush
)

// EventLogType classifies engine-level events written to the match log.
type EventLogType uint8

const (
	EventTurnComplete EventLogType = iota
	EventPeerDropped
	EventDesync
	EventChatLine
	EventSimFeedback
)

// String returns the event name used in the JSONL output.
func (t EventLogType) String() string {
	switch t {
	case EventTurnComplete:
		return "turn_complete"
	case EventPeerDropped:
		return "peer_dropped"
	case EventDesync:
		return "desync"
	case EventChatLine:
		return "chat"
	case EventSimFeedback:
		return "sim_feedback"
	default:
		return "unknown"
	}
}

// Event is one match log record. Unlike simulation state this is free to
// carry wall-clock time: the log is diagnostics, not lockstep data.
type Event struct {
	Type      EventLogType `json:"type"`
	Timestamp int64        `json:"timestamp"`
	Sequence  uint64       `json:"sequence"`
	Turn      uint32       `json:"turn"`
	Player    uint8        `json:"player,omitempty"`
	Checksum  uint32       `json:"checksum,omitempty"`
	Detail    string       `json:"detail,omitempty"`
	MatchID   string       `json:"matchId,omitempty"`
}

// EventLog is a bounded, rate-limited match event log with an async writer.
// Emit never blocks the engine loop: under pressure the oldest events are
// dropped and counted, never the tick.
type EventLog struct {
	buffer    [eventBufferSize]Event
	writeHead uint64 // atomic - producer position
	readHead  uint64 // atomic - consumer position

	limiter *rate.Limiter

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	matchID string

	file   *os.File
	sink   io.Writer
	lz4Out *lz4.Writer
	fileMu sync.Mutex

	droppedCount uint64 // atomic
	totalCount   uint64 // atomic
}

// NewEventLog creates an event log tagged with the match id.
func NewEventLog(matchID string) *EventLog {
	return &EventLog{
		limiter:  rate.NewLimiter(maxEventsPerSec, maxEventsPerSec/10),
		stopChan: make(chan struct{}),
		matchID:  matchID,
	}
}

// Start opens the output file and begins the async writer. With compress set
// the stream is lz4-framed; `lz4 -d events.jsonl.lz4` gets the JSONL back.
func (el *EventLog) Start(filePath string, compress bool) error {
	if el.running.Load() {
		return nil
	}

	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		el.file = file
		el.sink = file
		if compress {
			el.lz4Out = lz4.NewWriter(file)
			el.sink = el.lz4Out
		}
	}

	el.running.Store(true)
	el.writerWg.Add(1)
	go el.writerLoop()

	return nil
}

// Stop drains the buffer and closes the output.
func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()

		el.fileMu.Lock()
		if el.lz4Out != nil {
			el.lz4Out.Close()
		}
		if el.file != nil {
			el.file.Close()
		}
		el.fileMu.Unlock()
	})
}

// Emit appends an event. Returns false if rate limited or not running.
func (el *EventLog) Emit(event Event) bool {
	if !el.running.Load() {
		return false
	}
	if !el.limiter.Allow() {
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}

	head := atomic.AddUint64(&el.writeHead, 1)
	tail := atomic.LoadUint64(&el.readHead)
	if head-tail >= eventBufferSize {
		// Rolling window: drop oldest rather than stall the engine.
		atomic.AddUint64(&el.readHead, 1)
		atomic.AddUint64(&el.droppedCount, 1)
	}

	event.Sequence = head
	event.Timestamp = time.Now().UnixNano()
	event.MatchID = el.matchID
	el.buffer[head%eventBufferSize] = event

	atomic.AddUint64(&el.totalCount, 1)
	return true
}

// writerLoop flushes batches to the sink on an interval.
func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()
	ticker := time.NewTicker(batchFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			el.flush()
		case <-el.stopChan:
			el.flush()
			return
		}
	}
}

func (el *EventLog) flush() {
	if el.sink == nil {
		return
	}
	el.fileMu.Lock()
	defer el.fileMu.Unlock()

	flushed := 0
	for flushed < batchFlushSize {
		tail := atomic.LoadUint64(&el.readHead)
		head := atomic.LoadUint64(&el.writeHead)
		if tail >= head {
			break
		}
		event := el.buffer[(tail+1)%eventBufferSize]
		if !atomic.CompareAndSwapUint64(&el.readHead, tail, tail+1) {
			continue
		}
		line, err := json.Marshal(event)
		if err != nil {
			continue
		}
		line = append(line, '\n')
		if _, err := el.sink.Write(line); err != nil {
			log.Printf("event log write failed: %v", err)
			return
		}
		flushed++
	}
}

// Stats returns counters for the observability surface.
func (el *EventLog) Stats() (total, dropped uint64) {
	return atomic.LoadUint64(&el.totalCount), atomic.LoadUint64(&el.droppedCount)
}
