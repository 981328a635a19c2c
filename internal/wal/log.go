package wal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
)

// DefaultFiles is the default shard count.
const DefaultFiles = 8

// Options configure a Log.
type Options struct {
	Dir   string
	Files int  // shard count; DefaultFiles when <= 0
	Fsync bool // fsync after every append
}

// Log is the sharded journal. Appends are serialized by the engine
// transaction that produces them; the Log itself holds no lock.
type Log struct {
	dir   string
	n     int
	fsync bool
	files []*os.File

	appends atomic.Uint64
}

// Open creates the journal directory if missing and opens all shard files
// in append mode.
func Open(opts Options) (*Log, error) {
	n := opts.Files
	if n <= 0 {
		n = DefaultFiles
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create wal dir: %w", err)
	}
	l := &Log{dir: opts.Dir, n: n, fsync: opts.Fsync}
	for i := 0; i < n; i++ {
		f, err := os.OpenFile(l.shardPath(i), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("open wal shard %d: %w", i, err)
		}
		l.files = append(l.files, f)
	}
	return l, nil
}

func (l *Log) shardPath(i int) string {
	return filepath.Join(l.dir, fmt.Sprintf("wal-%d.bin", i))
}

// Append writes one record to the shard owned by its id.
func (l *Log) Append(rec Record) error {
	f := l.files[int(rec.ID%uint64(l.n))]
	if _, err := f.Write(rec.Encode()); err != nil {
		return fmt.Errorf("append wal record: %w", err)
	}
	if l.fsync {
		if err := f.Sync(); err != nil {
			return fmt.Errorf("sync wal shard: %w", err)
		}
	}
	l.appends.Add(1)
	return nil
}

// Appends returns the number of records appended since Open.
func (l *Log) Appends() uint64 { return l.appends.Load() }

// Close closes all shard files.
func (l *Log) Close() error {
	var first error
	for _, f := range l.files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	l.files = nil
	return first
}

// Recover replays all shards, merges records per id, truncates the shards,
// and rewrites one full record per surviving job so the fresh files carry
// self-sufficient state. It returns the surviving records keyed by id.
//
// Merge rules: a full record overwrites the entry completely; a delta with
// state invalid removes the id; any other delta overwrites every field
// except tube and body. Reserved state is reduced to ready — no reservation
// survives a restart. An unreadable tail ends that shard's replay.
func (l *Log) Recover() (map[uint64]Record, error) {
	live := make(map[uint64]Record)
	for i := 0; i < l.n; i++ {
		if err := l.replayShard(i, live); err != nil {
			return nil, err
		}
	}
	for id, rec := range live {
		if rec.State == StateReserved {
			rec.State = StateReady
			rec.DeadlineAt = 0
			live[id] = rec
		}
	}
	for i, f := range l.files {
		if err := f.Truncate(0); err != nil {
			return nil, fmt.Errorf("truncate wal shard %d: %w", i, err)
		}
	}
	for _, rec := range live {
		rec.Full = true
		if err := l.Append(rec); err != nil {
			return nil, err
		}
	}
	return live, nil
}

func (l *Log) replayShard(i int, live map[uint64]Record) error {
	f, err := os.Open(l.shardPath(i))
	if err != nil {
		return fmt.Errorf("open wal shard %d for replay: %w", i, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		rec, err := ReadRecord(r)
		if err == io.EOF {
			return nil
		}
		if err == io.ErrUnexpectedEOF {
			// Torn tail from a crash mid-append; everything before it is
			// intact.
			return nil
		}
		if err != nil {
			return fmt.Errorf("replay wal shard %d: %w", i, err)
		}
		apply(live, rec)
	}
}

func apply(live map[uint64]Record, rec Record) {
	if rec.Full {
		live[rec.ID] = rec
		return
	}
	if rec.State == StateInvalid {
		delete(live, rec.ID)
		return
	}
	prev, ok := live[rec.ID]
	if !ok {
		// Delta for an id whose put record is lost; without tube and body
		// the job cannot be reconstructed.
		return
	}
	rec.Tube = prev.Tube
	rec.Body = prev.Body
	rec.Full = true
	live[rec.ID] = rec
}
