package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/pavelanni/examstats/internal/catalog"
	"github.com/pavelanni/examstats/internal/handler"
	appI18n "github.com/pavelanni/examstats/internal/i18n"
	"github.com/pavelanni/examstats/internal/tracker"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API used by the study UI",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("catalog-dir", "", "Directory of <EXAM>/exam.json files with answer keys")
	addCommonFlags(f)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, closeKV, err := openGateway(ctx, v)
	if err != nil {
		return err
	}
	defer closeKV()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	var cat *catalog.Catalog
	if dir := v.GetString("catalog-dir"); dir != "" {
		if cat, err = catalog.Load(dir); err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
	}

	loaded := gw.Load(ctx)
	reportLoad(cmd.Context(), cmd.ErrOrStderr(), loaded)
	tr := tracker.New(loaded.Snapshot)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	handler.New(tr, gw, cat).Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"backend", v.GetString("backend"),
			"key", gw.Key(),
			"lang", lang,
			"sessions", len(loaded.Snapshot.Sessions),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown", "error", err)
	}
	if s, ok := tr.EndOpenSession(); ok {
		slog.Info("closed open session", "session", s.ID, "exam", s.ExamID)
	}
	if _, err := gw.Save(shutdownCtx, tr.ExportSnapshot()); err != nil {
		return fmt.Errorf("save history on shutdown: %w", err)
	}
	return nil
}
