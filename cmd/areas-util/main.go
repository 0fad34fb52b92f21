// Command areas-util inspects a block history store offline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/INLOpen/areas/core"
	"github.com/INLOpen/areas/engine"
	"github.com/INLOpen/areas/indexer"
	"github.com/INLOpen/areas/kv"
)

const usageText = `Usage: areas-util [global flags] <command> [command flags]

Commands:
  usage     total bytes used by the store
  dump      every key and value, sorted (-prefix to narrow)
  history   records of one location (-x -y -z -dim, optional -interaction -before -after)
  stats     record counts and distinct locations and players
  verify    decode every record and report the ones that fail

Global flags:
`

// errVerifyFailed makes verify exit non-zero without printing twice.
var errVerifyFailed = errors.New("verification found problems")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("areas-util", flag.ContinueOnError)
	global.SetOutput(stderr)
	backend := global.String("backend", kv.BackendFile, "store backend: file or sqlite")
	path := global.String("path", "", "path to the store (required)")
	compression := global.String("compression", "snappy", "file backend compression, used only if the file is created")
	global.Usage = func() {
		fmt.Fprint(stderr, usageText)
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		return 2
	}
	if *path == "" || global.NArg() == 0 {
		global.Usage()
		return 2
	}

	store, err := kv.Open(kv.Options{
		Backend:     *backend,
		Path:        *path,
		Compression: *compression,
		ReadOnly:    *backend == kv.BackendFile,
		Logger:      slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error opening store: %v\n", err)
		return 1
	}
	defer store.Close()

	eng, err := engine.NewStorageEngine(engine.StorageEngineOptions{Store: store})
	if err != nil {
		fmt.Fprintf(stderr, "Error creating engine: %v\n", err)
		return 1
	}

	ctx := context.Background()
	cmd, cmdArgs := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "usage":
		err = runUsage(ctx, eng, stdout)
	case "dump":
		err = runDump(ctx, store, cmdArgs, stdout, stderr)
	case "history":
		err = runHistory(ctx, eng, store, cmdArgs, stdout, stderr)
	case "stats":
		err = runStats(ctx, eng, stdout)
	case "verify":
		err = runVerify(ctx, eng, stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command %q\n", cmd)
		global.Usage()
		return 2
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errVerifyFailed):
		return 1
	case errors.Is(err, flag.ErrHelp):
		return 0
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

func runUsage(ctx context.Context, eng *engine.StorageEngine, stdout io.Writer) error {
	info, err := eng.StorageUsage(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d bytes (%.1f %s)\n", info.Bytes, info.LargestUnitAmount, info.LargestUnit)
	used, limit, ok, err := kv.BudgetUsage(ctx, eng.Store())
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintf(stdout, "budget: %d of %d bytes (%.1f%%)\n", used, limit, float64(used)/float64(limit)*100)
	}
	return nil
}

func runDump(ctx context.Context, store kv.Store, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	prefix := fs.String("prefix", "", "only keys starting with this prefix")
	if err := fs.Parse(args); err != nil {
		return err
	}

	keys, err := kv.KeysWithPrefix(ctx, store, *prefix)
	if err != nil {
		return err
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE")
	fmt.Fprintln(w, "---\t-----")
	for _, k := range keys {
		v, ok, err := store.Get(ctx, k)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", k, v)
	}
	return w.Flush()
}

// optionalInt64 is a flag that remembers whether it was set.
type optionalInt64 struct {
	set   bool
	value int64
}

func (o *optionalInt64) String() string {
	if !o.set {
		return ""
	}
	return strconv.FormatInt(o.value, 10)
}

func (o *optionalInt64) Set(s string) error {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	o.set, o.value = true, v
	return nil
}

func runHistory(ctx context.Context, eng *engine.StorageEngine, store kv.Store, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	x := fs.Int("x", 0, "block x")
	y := fs.Int("y", 0, "block y")
	z := fs.Int("z", 0, "block z")
	dim := fs.String("dim", "minecraft:overworld", "dimension id")
	interaction := fs.String("interaction", "", "only this interaction: broken, exploded, placed or initialised")
	var before, after optionalInt64
	fs.Var(&before, "before", "only records strictly older than this time (ms)")
	fs.Var(&after, "after", "only records strictly newer than this time (ms)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if before.set && after.set {
		return errors.New("-before and -after are mutually exclusive")
	}

	var q *core.Query
	switch {
	case before.set:
		q = core.Before(before.value)
	case after.set:
		q = core.After(after.value)
	}
	if *interaction != "" {
		kind, err := core.ParseInteractionName(*interaction)
		if err != nil {
			return err
		}
		q = q.WithInteraction(kind)
	}

	loc := core.Location{X: *x, Y: *y, Z: *z, Dimension: *dim}
	events, err := eng.GetLocationHistory(ctx, loc, q)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintf(stdout, "No records for %s.\n", loc)
		return nil
	}

	names := indexer.NewPlayerNameIndex(store, indexer.PlayerNameIndexOptions{})
	w := tabwriter.NewWriter(stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME\tINTERACTION\tBLOCK\tACTOR\tSTRUCTURE\tROLLED BACK")
	fmt.Fprintln(w, "----\t-----------\t-----\t-----\t---------\t-----------")
	for _, ev := range events {
		actor, err := formatActor(ctx, names, ev.Actor)
		if err != nil {
			return err
		}
		structure := "-"
		if ev.HasStructureData {
			structure = ev.StructureID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n",
			formatTime(ev.Time), ev.Interaction, ev.BlockTypeID, actor, structure, ev.RolledBack)
	}
	return w.Flush()
}

func formatTime(t int64) string {
	if t == core.InitializationTime {
		return "baseline"
	}
	return time.UnixMilli(t).UTC().Format("2006-01-02 15:04:05.000 MST")
}

func formatActor(ctx context.Context, names *indexer.PlayerNameIndex, a core.Actor) (string, error) {
	switch a.Kind {
	case core.ActorPlayer:
		name, ok, err := names.PlayerName(ctx, a.PlayerID)
		if err != nil {
			return "", err
		}
		if !ok {
			return fmt.Sprintf("player %d", a.PlayerID), nil
		}
		return fmt.Sprintf("%s (%d)", name, a.PlayerID), nil
	case core.ActorNonPlayerEntity:
		return a.EntityTypeID, nil
	default:
		return "-", nil
	}
}

func runStats(ctx context.Context, eng *engine.StorageEngine, stdout io.Writer) error {
	st, err := eng.Stats(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "records\t%d\n", st.Records)
	fmt.Fprintf(w, "baselines\t%d\n", st.Baselines)
	for k := core.InteractionBroken; k <= core.InteractionInitialised; k++ {
		fmt.Fprintf(w, "  %s\t%d\n", k, st.ByInteraction[k])
	}
	fmt.Fprintf(w, "locations\t%d\n", st.Locations)
	fmt.Fprintf(w, "players\t%d\n", st.Players)
	if st.Records > st.Baselines {
		fmt.Fprintf(w, "oldest\t%s\n", formatTime(st.OldestTime))
		fmt.Fprintf(w, "newest\t%s\n", formatTime(st.NewestTime))
		span := core.TimeDifference(st.NewestTime, st.OldestTime)
		fmt.Fprintf(w, "span\t%.1f %s\n", span.Amount, span.Unit)
	}
	fmt.Fprintf(w, "usage\t%s\n", st.Usage)
	return w.Flush()
}

func runVerify(ctx context.Context, eng *engine.StorageEngine, stdout io.Writer) error {
	rep, err := eng.Verify(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "scanned %d records, %d valid\n", rep.Scanned, rep.Valid)
	if len(rep.Issues) > 0 {
		w := tabwriter.NewWriter(stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "KEY\tVALUE\tERROR")
		fmt.Fprintln(w, "---\t-----\t-----")
		for _, is := range rep.Issues {
			fmt.Fprintf(w, "%s\t%s\t%v\n", is.Key, is.Value, is.Err)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	for _, loc := range rep.Unbaselined {
		fmt.Fprintf(stdout, "no baseline: %s\n", loc)
	}
	if !rep.OK() {
		return errVerifyFailed
	}
	fmt.Fprintln(stdout, "OK")
	return nil
}
