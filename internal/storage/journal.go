package storage

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Journal appends JSON lines to date-named files under a base directory. The
// daemon uses it as an audit trail of limiter decisions. Writes are queued and
// flushed by a background goroutine so an event handler never waits on disk.
type Journal struct {
	baseDir     string
	maxSizeMB   int
	writeCh     chan any
	done        chan struct{}
	wg          sync.WaitGroup
	currentDate string
	logger      *lumberjack.Logger
	mu          sync.Mutex
}

func NewJournal(baseDir string, bufferSize, maxSizeMB int) *Journal {
	j := &Journal{
		baseDir:   baseDir,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan any, bufferSize),
		done:      make(chan struct{}),
	}

	j.wg.Add(1)
	go j.writeLoop()

	return j
}

// Write queues a record. A full buffer drops the record instead of blocking.
func (j *Journal) Write(record any) error {
	select {
	case j.writeCh <- record:
		return nil
	case <-j.done:
		return errors.New("journal is closed")
	default:
		slog.Warn("journal buffer full, dropping record")
		return errors.New("buffer full")
	}
}

// Close shuts down the journal and flushes pending records.
func (j *Journal) Close() error {
	close(j.done)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case record := <-j.writeCh:
			j.writeRecord(record)
		case <-timeout:
			slog.Warn("journal close timeout, some records may be lost")
			goto done
		default:
			goto done
		}
	}

done:
	j.wg.Wait()

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.logger != nil {
		return j.logger.Close()
	}
	return nil
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()

	for {
		select {
		case record := <-j.writeCh:
			j.writeRecord(record)
		case <-j.done:
			return
		}
	}
}

func (j *Journal) writeRecord(record any) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Error("journal: marshal failed", "error", err)
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	currentDate := time.Now().UTC().Format("2006-01-02")
	if currentDate != j.currentDate || j.logger == nil {
		j.rotateForDate(currentDate)
	}

	if _, err := j.logger.Write(append(data, '\n')); err != nil {
		slog.Error("journal: write failed", "error", err)
	}
}

func (j *Journal) rotateForDate(date string) {
	if j.logger != nil {
		j.logger.Close()
	}

	if err := os.MkdirAll(j.baseDir, 0755); err != nil {
		slog.Error("journal: create directory failed", "error", err, "dir", j.baseDir)
		return
	}

	j.logger = &lumberjack.Logger{
		Filename:   filepath.Join(j.baseDir, date+".jsonl"),
		MaxSize:    j.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
		Compress:   false,
		LocalTime:  false,
	}

	j.currentDate = date
	slog.Info("journal: opened file", "file", j.logger.Filename)
}
