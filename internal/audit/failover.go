package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const spoolFile = "audit_spool.log"

var ErrSpoolFull = errors.New("audit spool full")

// Spool is a local JSONL file holding entries that could not reach the
// database. Once the spool file reaches MaxSize new entries are refused.
// Entries put back by a failed replay are never refused.
type Spool struct {
	Dir     string
	MaxSize int64

	mu       sync.Mutex
	replayMu sync.Mutex
}

func NewSpool(dir string, maxMB int64) (*Spool, error) {
	if maxMB <= 0 {
		maxMB = 256
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &Spool{Dir: dir, MaxSize: maxMB * 1024 * 1024}, nil
}

// Append writes e to the spool file
func (s *Spool) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size() >= s.MaxSize {
		return ErrSpoolFull
	}

	line, err := json.Marshal(FailoverEntry{
		EventID:   e.EventID.String(),
		Payload:   e,
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(s.Dir, spoolFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(line, '\n'))
	return err
}

// size is the size of the live spool file. Files being replayed are not
// counted; their entries either reach the database or are restored.
func (s *Spool) size() int64 {
	info, err := os.Stat(filepath.Join(s.Dir, spoolFile))
	if err != nil {
		return 0
	}
	return info.Size()
}

// restore appends lines back to the spool file regardless of MaxSize.
func (s *Spool) restore(lines [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(s.Dir, spoolFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, line := range lines {
		w.Write(line)
		w.WriteByte('\n')
	}
	return w.Flush()
}

// StartReplayer flushes the spool every interval until ctx is cancelled.
func (s *Service) StartReplayer(ctx context.Context, interval time.Duration) {
	if s.Spool == nil {
		return
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.ReplaySpool(ctx)
			}
		}
	}()
}

// ReplaySpool moves the spool aside and inserts every entry; the event id
// keeps the insert idempotent. Entries the database still refuses are put
// back into the spool, and a replay file is removed only once they are.
// Replay files left behind by an earlier run are picked up first. It returns
// the number of entries inserted.
func (s *Service) ReplaySpool(ctx context.Context) int {
	sp := s.Spool
	sp.replayMu.Lock()
	defer sp.replayMu.Unlock()

	files, _ := filepath.Glob(filepath.Join(sp.Dir, "replay_*.log"))
	sort.Strings(files)

	filename := filepath.Join(sp.Dir, spoolFile)
	rotated := filepath.Join(sp.Dir, fmt.Sprintf("replay_%d.log", time.Now().UnixNano()))

	sp.mu.Lock()
	if info, err := os.Stat(filename); err == nil && info.Size() > 0 {
		if err := os.Rename(filename, rotated); err != nil {
			log.Printf("Failed to rotate audit spool for replay: %v", err)
		} else {
			files = append(files, rotated)
		}
	}
	sp.mu.Unlock()

	var total int
	for _, f := range files {
		total += s.replayFile(ctx, f)
	}
	return total
}

func (s *Service) replayFile(ctx context.Context, path string) int {
	f, err := os.Open(path)
	if err != nil {
		log.Printf("Failed to open audit replay file %s: %v", path, err)
		return 0
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), int(s.Spool.MaxSize)+1024*1024)
	var succeeded, corrupt int
	var pending [][]byte
	for scanner.Scan() {
		var fe FailoverEntry
		if err := json.Unmarshal(scanner.Bytes(), &fe); err != nil {
			corrupt++
			continue
		}
		if err := s.insert(ctx, fe.Payload); err != nil {
			pending = append(pending, append([]byte(nil), scanner.Bytes()...))
			continue
		}
		succeeded++
	}
	scanErr := scanner.Err()
	f.Close()
	if scanErr != nil {
		log.Printf("Audit replay of %s stopped early, keeping file: %v", path, scanErr)
		return succeeded
	}

	if len(pending) > 0 {
		if err := s.Spool.restore(pending); err != nil {
			log.Printf("CRITICAL: could not restore %d audit events, keeping %s: %v", len(pending), path, err)
			return succeeded
		}
	}
	os.Remove(path)

	if succeeded > 0 || len(pending) > 0 || corrupt > 0 {
		log.Printf("Audit Replay: %d events flushed, %d pending, %d corrupt", succeeded, len(pending), corrupt)
	}
	return succeeded
}
