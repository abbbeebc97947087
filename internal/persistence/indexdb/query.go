package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
)

type SuperchunkRow struct {
	RX, RY  int
	Path    string
	Columns int
	Bytes   int64
	SavedAt string
}

type EditRow struct {
	GameTime uint64
	Seq      int
	Session  string
	Name     string
	X, Y, Z  int
	From, To uint32
	At       string
}

// Reader opens an index read-only for offline tools.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

func (r *Reader) ListSuperchunks(ctx context.Context) ([]SuperchunkRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT rx,ry,path,columns,bytes,saved_at FROM superchunks ORDER BY rx,ry`)
	if err != nil {
		return nil, fmt.Errorf("list superchunks: %w", err)
	}
	defer rows.Close()
	var out []SuperchunkRow
	for rows.Next() {
		var s SuperchunkRow
		if err := rows.Scan(&s.RX, &s.RY, &s.Path, &s.Columns, &s.Bytes, &s.SavedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecentEdits returns up to limit edits, newest first. An empty session
// matches every session.
func (r *Reader) RecentEdits(ctx context.Context, session string, limit int) ([]EditRow, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT gametime,seq,session,name,x,y,z,from_block,to_block,at FROM block_edits`
	args := []any{}
	if session != "" {
		q += ` WHERE session = ?`
		args = append(args, session)
	}
	q += ` ORDER BY gametime DESC, seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("recent edits: %w", err)
	}
	defer rows.Close()
	var out []EditRow
	for rows.Next() {
		var e EditRow
		var gt int64
		var from, to int64
		if err := rows.Scan(&gt, &e.Seq, &e.Session, &e.Name, &e.X, &e.Y, &e.Z, &from, &to, &e.At); err != nil {
			return nil, err
		}
		e.GameTime = uint64(gt)
		e.From, e.To = uint32(from), uint32(to)
		out = append(out, e)
	}
	return out, rows.Err()
}
