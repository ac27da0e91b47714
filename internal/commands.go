package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/starford/setlist/internal/localstore"
	"github.com/starford/setlist/internal/mcpserver"
	"github.com/starford/setlist/internal/mirror"
	"github.com/starford/setlist/internal/offline"
	"github.com/starford/setlist/internal/prefs"
	"github.com/starford/setlist/internal/present"
	"github.com/starford/setlist/internal/tui"
)

// RunSync imports the song library into the document store once and
// writes a summary to w.
func RunSync(ctx context.Context, w io.Writer, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, app.config.App.LogLevel)

	docs, lib, err := openLibrary(app.config, nil, logger)
	if err != nil {
		return err
	}
	defer docs.Close()

	res, err := lib.Sync(ctx)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	_, err = fmt.Fprintf(w, "imported %d, unchanged %d, removed %d, failed %d\n",
		res.Imported, res.Unchanged, res.Removed, res.Failed)
	return err
}

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr.
func RunMCP(ctx context.Context, version string, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, app.config.App.LogLevel)
	slog.SetDefault(logger)

	docs, lib, err := openLibrary(app.config, nil, logger)
	if err != nil {
		return err
	}
	defer docs.Close()

	if _, err := lib.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	logger.Info("MCP server starting", slog.String("version", version))
	return mcpserver.New(docs, lib, version).ServeStdio()
}

// RunPrepare stores an offline snapshot of setlistID from the remote store,
// falling back to the mirrored copy when the store is unreachable. An empty
// setlistID lists the known setlists instead.
func RunPrepare(ctx context.Context, w io.Writer, setlistID string, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(os.Stderr, cfg.App.LogLevel)

	local, err := localstore.Open(cfg.Client.LocalPath)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer local.Close()

	m, rc := newMirror(cfg, local, nil, logger)
	defer m.Close()
	if !mirror.NewMonitor(rc, m, cfg.Client.ProbeInterval).Probe(ctx) {
		logger.Warn("remote store unreachable, using mirrored data",
			slog.String("remote_url", cfg.Client.RemoteURL))
	}

	prep := offline.New(m, local, logger)
	defer prep.Close()
	prep.Start(ctx)

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := prep.Wait(waitCtx); err != nil {
		return fmt.Errorf("wait for setlists: %w", err)
	}

	if setlistID == "" {
		return listSetlists(ctx, w, prep)
	}

	snap, err := prep.Prepare(ctx, setlistID)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "prepared %q (%d songs)\n", snap.Name, len(snap.Songs))
	return err
}

func listSetlists(ctx context.Context, w io.Writer, prep *offline.Preparer) error {
	prepared, err := prep.Prepared(ctx)
	if err != nil {
		return err
	}
	ready := make(map[string]bool, len(prepared))
	for _, id := range prepared {
		ready[id] = true
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPREPARED")
	for _, r := range prep.Setlists() {
		mark := ""
		if ready[r.ID] {
			mark = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.String("name"), mark)
	}
	return tw.Flush()
}

// RunPresent opens the presentation view for a prepared setlist. It never
// touches the network; a missing snapshot shows the error view.
func RunPresent(ctx context.Context, setlistID string, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	cfg := app.config

	logger, closeLog, err := tui.FileLogger(cfg.Client.LogFile, cfg.App.LogLevel)
	if err != nil {
		return err
	}
	defer closeLog()

	local, err := localstore.Open(cfg.Client.LocalPath)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer local.Close()

	store := prefs.NewStore(local, logger)
	p, err := store.Load(ctx)
	if err != nil {
		logger.Warn("preferences unavailable, using defaults", slog.String("error", err.Error()))
	}

	var nav *present.Navigator
	snap, err := present.LoadSnapshot(ctx, local, setlistID)
	if err == nil {
		nav, err = present.NewNavigator(snap, p, store)
	}
	if err != nil {
		logger.Error("snapshot unavailable",
			slog.String("setlist_id", setlistID),
			slog.String("error", err.Error()))
		if !errors.Is(err, present.ErrSnapshotUnavailable) {
			return err
		}
	}
	return tui.Run(ctx, tui.New(ctx, nav, err, logger))
}

// RunPedal stores page-turner pedal bindings. Empty fields in change keep the
// current binding. The resulting bindings are written to w.
func RunPedal(ctx context.Context, w io.Writer, change prefs.Pedal, opts ...Option) error {
	app, err := newApplication(opts...)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, app.config.App.LogLevel)

	local, err := localstore.Open(app.config.Client.LocalPath)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer local.Close()

	store := prefs.NewStore(local, logger)
	p, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}

	pedal := p.Pedal
	for _, f := range []struct {
		dst *string
		val string
	}{
		{&pedal.PrevPage, change.PrevPage},
		{&pedal.NextPage, change.NextPage},
		{&pedal.PrevSong, change.PrevSong},
		{&pedal.NextSong, change.NextSong},
	} {
		if f.val != "" {
			*f.dst = f.val
		}
	}
	if pedal != p.Pedal {
		if err := store.SetPedal(ctx, pedal); err != nil {
			return err
		}
		logger.Info("pedal bindings saved")
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "prev page\t%s\n", pedal.PrevPage)
	fmt.Fprintf(tw, "next page\t%s\n", pedal.NextPage)
	fmt.Fprintf(tw, "prev song\t%s\n", pedal.PrevSong)
	fmt.Fprintf(tw, "next song\t%s\n", pedal.NextSong)
	return tw.Flush()
}
