// Package journal keeps every ticket transition in SQLite so queues and
// active orders survive a restart.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"bistro.ai/internal/sim/order"
)

var ErrClosed = errors.New("journal closed")

// SQLiteJournal is an order.Journal. Record hands rows to a writer goroutine
// that batches them into transactions; unlike a metrics index it never drops
// a row, so Record blocks when the queue is full. Queued and complete rows
// are committed before Record returns, so a crash loses at most the active
// transitions of the current batch.
type SQLiteJournal struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once
	mu   sync.RWMutex

	closed atomic.Bool

	written  atomic.Uint64
	failures atomic.Uint64

	commitEvery   int
	commitMaxWait time.Duration
}

// req carries a row, a commit request, or both. flush, when set, receives
// the commit result.
type req struct {
	rec   *order.Record
	flush chan error
}

type Stats struct {
	Written       uint64 `json:"written"`
	Failures      uint64 `json:"failures"`
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
}

func Open(path string) (*SQLiteJournal, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal %s: %w", path, err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal %s: %w", path, err)
	}

	j := &SQLiteJournal{
		db:            db,
		ch:            make(chan req, 4096),
		commitEvery:   256,
		commitMaxWait: 200 * time.Millisecond,
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop()
	}()
	return j, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tickets (
			ticket_id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			kitchen TEXT NOT NULL,
			recipe TEXT NOT NULL,
			step INTEGER NOT NULL,
			state TEXT NOT NULL,
			holder TEXT NOT NULL,
			orderer TEXT NOT NULL,
			seat_id TEXT NOT NULL,
			tick INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_state_seq ON tickets(state, seq);`,
		`CREATE TABLE IF NOT EXISTS transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			ticket_id TEXT NOT NULL,
			state TEXT NOT NULL,
			step INTEGER NOT NULL,
			holder TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_ticket ON transitions(ticket_id, id);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (j *SQLiteJournal) Record(r order.Record) error {
	if j == nil {
		return nil
	}
	j.mu.RLock()
	if j.closed.Load() {
		j.mu.RUnlock()
		return ErrClosed
	}
	if !durable(r.State) {
		j.ch <- req{rec: &r}
		j.mu.RUnlock()
		return nil
	}
	done := make(chan error, 1)
	j.ch <- req{rec: &r, flush: done}
	j.mu.RUnlock()
	return <-done
}

// durable reports whether a row must be on disk before Record returns.
func durable(s order.State) bool {
	return s == order.StateQueued || s == order.StateComplete
}

// Flush commits everything recorded so far.
func (j *SQLiteJournal) Flush() error {
	j.mu.RLock()
	if j.closed.Load() {
		j.mu.RUnlock()
		return ErrClosed
	}
	done := make(chan error, 1)
	j.ch <- req{flush: done}
	j.mu.RUnlock()
	return <-done
}

func (j *SQLiteJournal) Close() error {
	var err error
	j.once.Do(func() {
		j.mu.Lock()
		j.closed.Store(true)
		close(j.ch)
		j.mu.Unlock()
		j.wg.Wait()
		err = j.db.Close()
	})
	return err
}

func (j *SQLiteJournal) Stats() Stats {
	return Stats{
		Written:       j.written.Load(),
		Failures:      j.failures.Load(),
		QueueDepth:    len(j.ch),
		QueueCapacity: cap(j.ch),
	}
}

// LoadOpen returns the latest record of every ticket that has not completed,
// in sequence order, ready for order.Service.Restore.
func (j *SQLiteJournal) LoadOpen(ctx context.Context) ([]order.Record, error) {
	if err := j.Flush(); err != nil {
		return nil, err
	}
	rows, err := j.db.QueryContext(ctx, `SELECT ticket_id,seq,kitchen,recipe,step,state,holder,orderer,seat_id,tick
		FROM tickets WHERE state != ? ORDER BY seq`, string(order.StateComplete))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []order.Record
	for rows.Next() {
		var r order.Record
		var state string
		var tick int64
		if err := rows.Scan(&r.TicketID, &r.Seq, &r.Kitchen, &r.Recipe, &r.Step, &state, &r.Holder, &r.Orderer, &r.SeatID, &tick); err != nil {
			return nil, err
		}
		r.State = order.State(state)
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

// History returns every transition of one ticket, oldest first.
func (j *SQLiteJournal) History(ctx context.Context, ticketID string) ([]order.Record, error) {
	if err := j.Flush(); err != nil {
		return nil, err
	}
	rows, err := j.db.QueryContext(ctx, `SELECT tick,state,step,holder FROM transitions WHERE ticket_id = ? ORDER BY id`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []order.Record
	for rows.Next() {
		r := order.Record{TicketID: ticketID}
		var state string
		var tick int64
		if err := rows.Scan(&tick, &state, &r.Step, &r.Holder); err != nil {
			return nil, err
		}
		r.State = order.State(state)
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) loop() {
	ctx := context.Background()

	upsert, _ := j.db.Prepare(`INSERT OR REPLACE INTO tickets(ticket_id,seq,kitchen,recipe,step,state,holder,orderer,seat_id,tick) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	appendTr, _ := j.db.Prepare(`INSERT INTO transitions(tick,ticket_id,state,step,holder) VALUES(?,?,?,?,?)`)
	defer func() {
		if upsert != nil {
			_ = upsert.Close()
		}
		if appendTr != nil {
			_ = appendTr.Close()
		}
	}()

	var (
		tx         *sql.Tx
		opCount    int
		lastCommit = time.Now()
		pending    []order.Record
	)

	commit := func() error {
		if tx == nil {
			return nil
		}
		err := tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
		if err != nil {
			j.failures.Add(uint64(len(pending)))
		} else {
			j.written.Add(uint64(len(pending)))
		}
		pending = pending[:0]
		return err
	}
	write := func(r order.Record) error {
		if tx == nil {
			txx, err := j.db.BeginTx(ctx, nil)
			if err != nil {
				return err
			}
			tx = txx
			lastCommit = time.Now()
		}
		if upsert == nil || appendTr == nil {
			return fmt.Errorf("journal statements not prepared")
		}
		if _, err := tx.Stmt(upsert).Exec(r.TicketID, int64(r.Seq), r.Kitchen, r.Recipe, r.Step, string(r.State), r.Holder, r.Orderer, r.SeatID, int64(r.Tick)); err != nil {
			return err
		}
		if _, err := tx.Stmt(appendTr).Exec(int64(r.Tick), r.TicketID, string(r.State), r.Step, r.Holder); err != nil {
			return err
		}
		opCount++
		pending = append(pending, r)
		return nil
	}

	ticker := time.NewTicker(j.commitMaxWait)
	defer ticker.Stop()
	for {
		select {
		case r, ok := <-j.ch:
			if !ok {
				_ = commit()
				return
			}
			if r.rec != nil {
				// A failed row does not abort the batch around it.
				if err := write(*r.rec); err != nil {
					j.failures.Add(1)
					if r.flush != nil {
						r.flush <- err
					}
					continue
				}
			}
			if r.flush != nil {
				r.flush <- commit()
				continue
			}
			if opCount >= j.commitEvery {
				_ = commit()
			}
		case <-ticker.C:
			if tx != nil && time.Since(lastCommit) >= j.commitMaxWait {
				_ = commit()
			}
		}
	}
}
