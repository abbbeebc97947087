package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"voxelcore.ai/internal/sim/world"
	"voxelcore.ai/internal/sim/world/terrain/store"
)

type serverState struct {
	WorldID  string             `json:"world_id"`
	GameTime uint64             `json:"gametime"`
	Seed     int64              `json:"seed"`
	Metrics  world.WorldMetrics `json:"metrics"`
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	asJSON := fs.Bool("json", false, "print the raw state document")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := fetchState(ctx, *baseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "state:", err)
		os.Exit(1)
	}
	if *asJSON {
		printJSON(st)
		return
	}
	printState(os.Stdout, st)
}

func fetchState(ctx context.Context, baseURL string) (serverState, error) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/admin/v1/state"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return serverState{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return serverState{}, fmt.Errorf("request %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return serverState{}, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	var st serverState
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return serverState{}, fmt.Errorf("decode state: %w", err)
	}
	return st, nil
}

func printState(w io.Writer, st serverState) {
	m := st.Metrics
	fmt.Fprintf(w, "world %s  seed=%d  gametime=%d\n", st.WorldID, st.Seed, st.GameTime)
	fmt.Fprintf(w, "sessions %d, subscribed columns %d\n", m.Sessions, m.SubscribedCols)

	fmt.Fprintf(w, "columns %d loaded, %d pending, %d dirty:", m.LoadedColumns, m.PendingRequests, m.DirtyColumns)
	for s := store.StatusRequested; s <= store.StatusMeshed; s++ {
		if n := m.ColumnsByStatus[s.String()]; n > 0 {
			fmt.Fprintf(w, " %s=%d", strings.ToLower(s.String()), n)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "regions %d cached, %d dirty\n", m.CachedRegions, m.DirtyRegions)
	fmt.Fprintf(w, "generated %s, loaded %s, discarded %s, failed %s\n",
		humanize.Comma(int64(m.GeneratedTotal)), humanize.Comma(int64(m.LoadedTotal)),
		humanize.Comma(int64(m.DiscardedTotal)), humanize.Comma(int64(m.GenErrorTotal)))
	fmt.Fprintf(w, "edits %s applied, %s dropped; kicks %s\n",
		humanize.Comma(int64(m.EditTotal)), humanize.Comma(int64(m.EditDroppedTotal)),
		humanize.Comma(int64(m.KickTotal)))
	q := m.QueueDepths
	fmt.Fprintf(w, "queues inbox=%d join=%d leave=%d\n", q.Inbox, q.Join, q.Leave)
}
