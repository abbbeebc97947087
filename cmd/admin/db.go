package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"voxelcore.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit (edits)")
	session := fs.String("session", "", "session id filter (edits)")
	_ = fs.Parse(args)

	q := "superchunks"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	r, err := indexdb.OpenReader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch q {
	case "superchunks":
		rows, err := r.ListSuperchunks(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		var total int64
		for _, row := range rows {
			total += row.Bytes
			fmt.Printf("r.%d.%d\tcolumns=%d\tsize=%s\tsaved_at=%s\t%s\n",
				row.RX, row.RY, row.Columns, humanize.Bytes(uint64(row.Bytes)), row.SavedAt, row.Path)
		}
		fmt.Printf("%d regions, %s\n", len(rows), humanize.Bytes(uint64(total)))

	case "edits":
		rows, err := r.RecentEdits(ctx, strings.TrimSpace(*session), *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, row := range rows {
			printJSON(row)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown query %q (superchunks|edits)\n", q)
		os.Exit(2)
	}
}

func printJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, "json:", err)
		os.Exit(1)
	}
	fmt.Println(string(b))
}
