package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelcore.ai/internal/persistence/superchunk"
	"voxelcore.ai/internal/sim/catalogs"
	"voxelcore.ai/internal/sim/tuning"
	"voxelcore.ai/internal/sim/world"
)

// SQLiteIndex is a queryable secondary index over superchunk saves and block
// edits. Writes are queued and applied by one goroutine in batched
// transactions; the zstd files stay the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropEdit       atomic.Uint64
	dropSuperchunk atomic.Uint64
	writeErr       atomic.Uint64
}

type reqKind int

const (
	reqEdit reqKind = iota + 1
	reqSuperchunk
)

type req struct {
	kind reqKind

	edit       world.EditEntry
	superchunk superchunk.SaveInfo
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
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
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
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
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS superchunks (
			rx INTEGER NOT NULL,
			ry INTEGER NOT NULL,
			path TEXT NOT NULL,
			columns INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			saved_at TEXT NOT NULL,
			PRIMARY KEY (rx, ry)
		);`,
		`CREATE TABLE IF NOT EXISTS block_edits (
			gametime INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			session TEXT NOT NULL,
			name TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			from_block INTEGER NOT NULL,
			to_block INTEGER NOT NULL,
			at TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (gametime, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_block_edits_session ON block_edits(session, gametime);`,
		`CREATE INDEX IF NOT EXISTS idx_block_edits_pos ON block_edits(x, y, z, gametime);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteEdit queues a block edit. It never blocks the caller; when the writer
// falls behind the edit is dropped and counted.
func (s *SQLiteIndex) WriteEdit(entry world.EditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEdit, edit: entry}:
	default:
		s.dropEdit.Add(1)
	}
	return nil
}

// RecordSuperchunk queues a region save row.
func (s *SQLiteIndex) RecordSuperchunk(info superchunk.SaveInfo) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSuperchunk, superchunk: info}:
	default:
		s.dropSuperchunk.Add(1)
	}
}

type Stats struct {
	QueueDepth          int
	QueueCapacity       int
	DropEditTotal       uint64
	DropSuperchunkTotal uint64
	WriteErrorTotal     uint64
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:          len(s.ch),
		QueueCapacity:       cap(s.ch),
		DropEditTotal:       s.dropEdit.Load(),
		DropSuperchunkTotal: s.dropSuperchunk.Load(),
		WriteErrorTotal:     s.writeErr.Load(),
	}
}

// UpsertCatalogs records the block catalog and the tuning actually applied,
// so a saved world can be matched to the config it was built with.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cat *catalogs.BlockCatalog, tune tuning.Tuning) error {
	if s == nil || cat == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "blocks.json")); err == nil && len(b) > 0 {
			rows = append(rows, kv{name: "blocks_defs", digest: cat.DefsDigest, json: b})
		}
	}
	if b, _ := json.Marshal(cat.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "blocks_palette", digest: cat.PaletteDigest, json: b})
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEdit, _ := s.db.Prepare(`INSERT OR REPLACE INTO block_edits(gametime,seq,session,name,x,y,z,from_block,to_block,at,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	upsertSuperchunk, _ := s.db.Prepare(`INSERT OR REPLACE INTO superchunks(rx,ry,path,columns,bytes,saved_at) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertEdit != nil {
			_ = insertEdit.Close()
		}
		if upsertSuperchunk != nil {
			_ = upsertSuperchunk.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastEditTime uint64
		editSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErr.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.writeErr.Add(1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEdit:
			e := r.edit
			if e.GameTime != lastEditTime {
				lastEditTime = e.GameTime
				editSeq = 0
			}
			seq := editSeq
			editSeq++
			raw, _ := json.Marshal(e)
			if insertEdit != nil {
				if _, err := tx.Stmt(insertEdit).Exec(
					int64(e.GameTime),
					seq,
					e.Session,
					e.Name,
					e.Pos[0], e.Pos[1], e.Pos[2],
					int64(e.From),
					int64(e.To),
					e.Time,
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSuperchunk:
			sc := r.superchunk
			if upsertSuperchunk != nil {
				if _, err := tx.Stmt(upsertSuperchunk).Exec(
					int(sc.Region.X),
					int(sc.Region.Y),
					sc.Path,
					sc.Columns,
					sc.Bytes,
					sc.SavedAt.UTC().Format(time.RFC3339Nano),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		// Commit promptly when the queue drains so readers see recent rows.
		if len(s.ch) == 0 {
			commit()
			continue
		}
		flushIfNeeded()
	}
	commit()
}
