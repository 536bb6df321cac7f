package logging

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Record is one log entry as carried between workers and the collector.
type Record struct {
	Time    time.Time `json:"time"`
	Level   LogLevel  `json:"level"`
	Source  string    `json:"source,omitempty"`
	Message string    `json:"message"`
}

const (
	// DefaultBufferSize is the capacity of the collector channel.
	DefaultBufferSize = 4096
	// DefaultHistorySize is the number of records kept for Recent.
	DefaultHistorySize = 1000
)

type collector struct {
	records chan Record
	done    chan struct{}
}

var (
	// collectorMu guards the active collector. Producers hold the read lock
	// while sending so Shutdown never closes a channel under a sender.
	collectorMu sync.RWMutex
	active      *collector

	historyMu   sync.Mutex
	history     []Record
	historyNext int
	historyFull bool
	historySize = DefaultHistorySize
)

// StartCollector starts the single goroutine that writes all records.
// Calling it while a collector is running is a no-op.
func StartCollector(bufferSize, historyCap int) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	collectorMu.Lock()
	defer collectorMu.Unlock()
	if active != nil {
		return
	}

	if historyCap > 0 {
		historyMu.Lock()
		historySize = historyCap
		history = nil
		historyNext = 0
		historyFull = false
		historyMu.Unlock()
	}

	c := &collector{
		records: make(chan Record, bufferSize),
		done:    make(chan struct{}),
	}
	active = c

	go func() {
		defer close(c.done)
		for r := range c.records {
			write(r)
		}
	}()
}

// Shutdown stops the collector after every queued record has been written.
func Shutdown() {
	collectorMu.Lock()
	c := active
	active = nil
	collectorMu.Unlock()

	if c == nil {
		return
	}
	close(c.records)
	<-c.done

	outMu.Lock()
	if file != nil {
		_ = file.Sync()
	}
	outMu.Unlock()
}

// Recent returns up to n of the most recent records, oldest first.
func Recent(n int) []Record {
	historyMu.Lock()
	defer historyMu.Unlock()

	var ordered []Record
	if historyFull {
		ordered = append(ordered, history[historyNext:]...)
		ordered = append(ordered, history[:historyNext]...)
	} else {
		ordered = append(ordered, history...)
	}

	if n > 0 && len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}

func emit(r Record) {
	collectorMu.RLock()
	c := active
	if c != nil {
		c.records <- r
		collectorMu.RUnlock()
		return
	}
	collectorMu.RUnlock()
	write(r)
}

func write(r Record) {
	l := logger()
	// WithLevel never exits, even for FatalLevel.
	ev := l.WithLevel(zerologLevel(r.Level))
	ev = ev.Time(zerolog.TimestampFieldName, r.Time)
	if r.Source != "" {
		ev = ev.Str("source", r.Source)
	}
	ev.Msg(r.Message)

	remember(r)
}

func remember(r Record) {
	historyMu.Lock()
	defer historyMu.Unlock()

	if historySize <= 0 {
		return
	}
	if len(history) < historySize {
		history = append(history, r)
		return
	}
	history[historyNext] = r
	historyNext = (historyNext + 1) % historySize
	historyFull = true
}
