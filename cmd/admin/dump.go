package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"voxelcore.ai/internal/persistence/superchunk"
	"voxelcore.ai/internal/sim/world/kernel/model"
	"voxelcore.ai/internal/sim/world/terrain/store"
)

type columnSummary struct {
	X, Y        int16
	SolidLevels int `json:"solid_levels"`
	NonAir      int `json:"non_air"`
	TopZ        int `json:"top_z"`
	Bytes       int `json:"rle_bytes"`
}

// regionPosFromName parses r.X.Y.sc.zst.
func regionPosFromName(path string) (superchunk.RegionPos, error) {
	var x, y int16
	name := filepath.Base(path)
	if _, err := fmt.Sscanf(name, "r.%d.%d.sc.zst", &x, &y); err != nil {
		return superchunk.RegionPos{}, fmt.Errorf("%s: not a superchunk file name", name)
	}
	if want := (superchunk.RegionPos{X: x, Y: y}).FileName(); want != name {
		return superchunk.RegionPos{}, fmt.Errorf("%s: not a superchunk file name", name)
	}
	return superchunk.RegionPos{X: x, Y: y}, nil
}

func summarizeColumn(p model.ChunkColumnPos, levels [][]byte) (columnSummary, error) {
	s := columnSummary{X: p.X, Y: p.Y, TopZ: -1}
	for _, l := range levels {
		s.Bytes += len(l)
	}
	col, err := store.DecodeColumn(p, levels)
	if err != nil {
		return s, err
	}
	for lz := 0; lz < model.WorldHeightChunks; lz++ {
		ch := col.Chunk(lz)
		if sb, ok := ch.SolidBlock(); ok {
			s.SolidLevels++
			if sb.IsAir() {
				continue
			}
		}
		for i, b := range ch.Blocks() {
			if b.IsAir() {
				continue
			}
			s.NonAir++
			if z := lz<<model.ChunkSizeBits | i>>(2*model.ChunkSizeBits); z > s.TopZ {
				s.TopZ = z
			}
		}
	}
	return s, nil
}

func dumpCmd(args []string) {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	file := fs.String("file", "", "superchunk file (r.X.Y.sc.zst)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "missing -file")
		os.Exit(2)
	}
	pos, err := regionPosFromName(*file)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	st, err := os.Stat(*file)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stat:", err)
		os.Exit(1)
	}
	r, err := superchunk.ReadFile(*file, pos)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	fmt.Printf("region %d,%d: %d columns, %s on disk\n", pos.X, pos.Y, len(r.Columns), humanize.Bytes(uint64(st.Size())))
	for y := int(pos.Y) << superchunk.RegionBits; y < (int(pos.Y)+1)<<superchunk.RegionBits && y <= math.MaxInt16; y++ {
		for x := int(pos.X) << superchunk.RegionBits; x < (int(pos.X)+1)<<superchunk.RegionBits && x <= math.MaxInt16; x++ {
			p := model.ChunkColumnPos{X: int16(x), Y: int16(y)}
			levels, ok := r.Columns[p]
			if !ok {
				continue
			}
			s, err := summarizeColumn(p, levels)
			if err != nil {
				fmt.Fprintf(os.Stderr, "column %v: %v\n", p, err)
				continue
			}
			printJSON(s)
		}
	}
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	aabb := fs.String("aabb", "", "AABB filter: x1,y1,z1:x2,y2,z2 (optional)")
	since := fs.Uint64("since", 0, "first gametime (inclusive)")
	to := fs.Uint64("to", math.MaxUint64, "last gametime (inclusive)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	min := [3]int{math.MinInt, math.MinInt, math.MinInt}
	max := [3]int{math.MaxInt, math.MaxInt, math.MaxInt}
	if strings.TrimSpace(*aabb) != "" {
		var err error
		if min, max, err = parseAABB(*aabb); err != nil {
			fmt.Fprintln(os.Stderr, "bad -aabb:", err)
			os.Exit(2)
		}
	}
	recs, err := readAudit(filepath.Join(*dataDir, "worlds", *worldID), *since, *to, min, max)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	// Oldest first for reading.
	for i := len(recs) - 1; i >= 0; i-- {
		printJSON(recs[i].Entry)
	}
}
