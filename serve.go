package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/zsprackett/editor-companion/internal/config"
	"github.com/zsprackett/editor-companion/internal/db"
	"github.com/zsprackett/editor-companion/internal/editor"
	"github.com/zsprackett/editor-companion/internal/events"
	"github.com/zsprackett/editor-companion/internal/monitor"
	"github.com/zsprackett/editor-companion/internal/notify"
	"github.com/zsprackett/editor-companion/internal/project"
	"github.com/zsprackett/editor-companion/internal/tools"
	"github.com/zsprackett/editor-companion/internal/webserver"
)

func newEditorClient(cfg config.Config) *editor.Client {
	return editor.NewClient(cfg.EditorAddr(), config.Duration(cfg.Editor.Timeout, editor.DefaultTimeout))
}

func serve() error {
	cfg, envFile := loadConfig()
	if err := config.EnsureJWTSecret(config.DefaultPath(), &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not persist JWT secret: %v\n", err)
	}
	logger, closeLog := initLogger(cfg, true)
	defer closeLog()

	store, err := openDB()
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	hub := events.NewHub(
		events.WithSendTimeout(config.Duration(cfg.Broadcast.SendTimeout, events.DefaultSendTimeout)),
		events.WithLogger(logger),
	)
	editorClient := newEditorClient(cfg)
	registry := tools.NewRegistry(store, editorClient, hub, store, logger)
	notifier := notify.New(notify.Config{
		Enabled: cfg.Notifications.Enabled,
		Webhook: cfg.Notifications.Webhook,
		NtfyURL: cfg.Notifications.NtfyURL,
	}, logger)
	mon := monitor.New(editorClient, registry, hub, notifier,
		config.Duration(cfg.Monitor.Interval, monitor.DefaultInterval), logger)
	mgr := project.NewManager(store, hub, logger)

	srv := webserver.New(store, hub, mgr, cfg.Webserver, webserver.Options{
		MCP:              registry.Handler(),
		OnProjectDeleted: registry.Forget,
		Health:           mon,
		EnvFile:          envFile,
		Logger:           logger,
	})
	if !cfg.Webserver.Enabled {
		logger.Warn("main: webserver disabled, only the editor monitor will run")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mon.Start()
		<-ctx.Done()
		mon.Stop()
		return nil
	})
	g.Go(func() error {
		return srv.Run(ctx)
	})

	logger.Info("main: started", "editor", editorClient.Addr(), "web", cfg.Webserver.Enabled)
	err = g.Wait()
	hub.Clear()
	logger.Info("main: stopped")
	return err
}

// serveStdio runs one project's tools over stdin/stdout. Viewers live in the
// serve process, so actions are only recorded, not broadcast.
func serveStdio(ref string) error {
	cfg, _ := loadConfig()
	logger, closeLog := initLogger(cfg, false)
	defer closeLog()

	store, err := openDB()
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	p, err := resolveProject(store, ref)
	if err != nil {
		return err
	}
	ts := tools.NewToolset(p.ID, newEditorClient(cfg), nil, store, logger)
	logger.Info("main: mcp stdio", "project", p.ID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return tools.NewServer(ts).Run(ctx, &mcp.StdioTransport{})
}

// resolveProject accepts a project id or name.
func resolveProject(store *db.DB, ref string) (*db.Project, error) {
	p, err := store.GetProject(ref)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	projects, err := store.LoadProjects()
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		if p.Name == ref {
			return p, nil
		}
	}
	return nil, fmt.Errorf("project %q: %w", ref, db.ErrNotFound)
}

func listProjects(out io.Writer) error {
	store, err := openDB()
	if err != nil {
		return err
	}
	defer store.Close()
	projects, err := store.LoadProjects()
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Fprintln(out, "no projects")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPATH\tUPDATED")
	for _, p := range projects {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Path, humanize.Time(p.UpdatedAt))
	}
	return tw.Flush()
}
