package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/examstats/internal/codec"
	"github.com/pavelanni/examstats/internal/gateway"
	appI18n "github.com/pavelanni/examstats/internal/i18n"
	"github.com/pavelanni/examstats/internal/migrate"
	"github.com/pavelanni/examstats/internal/model"
	"github.com/pavelanni/examstats/internal/tracker"
)

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print per-exam statistics over completed sessions",
		RunE:  runStats,
	}
	f := cmd.Flags()
	f.String("exam", "", "Only report this exam id")
	addCommonFlags(f)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the full history in readable form",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("format", "json", "Output format (json, yaml)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addCommonFlags(f)
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Replace the history with an exported snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	addCommonFlags(cmd.Flags())
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite stored history in the current compact shape",
		RunE:  runMigrate,
	}
	addCommonFlags(cmd.Flags())
	return cmd
}

// localeCtx initializes translations and returns a context carrying the
// configured language.
func localeCtx(cmd *cobra.Command, lang string) (context.Context, error) {
	if err := appI18n.Init(lang); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}
	return appI18n.WithLocale(cmd.Context(), appI18n.NewLocale(lang)), nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx, err := localeCtx(cmd, v.GetString("lang"))
	if err != nil {
		return err
	}

	gw, closeKV, err := openGateway(ctx, v)
	if err != nil {
		return err
	}
	defer closeKV()

	loaded := gw.Load(ctx)
	reportLoad(ctx, cmd.ErrOrStderr(), loaded)
	tr := tracker.New(loaded.Snapshot)

	rollups := tr.AllRollups()
	if exam := v.GetString("exam"); exam != "" {
		rollups = nil
		if r, ok := tr.RollupFor(exam); ok {
			rollups = []model.Rollup{r}
		}
	}
	open, _ := tr.OpenSession()
	writeStats(ctx, cmd.OutOrStdout(), rollups, open)
	return nil
}

func writeStats(ctx context.Context, w io.Writer, rollups []model.Rollup, open *model.ExamSession) {
	T, Td, Tp := appI18n.T, appI18n.Td, appI18n.Tp
	fmt.Fprintln(w, T(ctx, "StatsTitle"))
	fmt.Fprintln(w, strings.Repeat("=", len([]rune(T(ctx, "StatsTitle")))))
	if len(rollups) == 0 {
		fmt.Fprintln(w, T(ctx, "StatsEmpty"))
	}
	for _, r := range rollups {
		label := r.ExamLabel
		if label == "" {
			label = r.ExamID
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, Td(ctx, "StatsExam", map[string]any{"Label": label, "ExamID": r.ExamID}))
		fmt.Fprintf(w, "  %s, %s\n", Tp(ctx, "StatsSessions", r.SessionCount), Tp(ctx, "StatsQuestions", r.TotalQuestions))
		fmt.Fprintf(w, "  %s\n", Td(ctx, "StatsBreakdown", map[string]any{
			"Correct":   r.Correct,
			"Incorrect": r.Incorrect,
			"Preview":   r.Preview,
		}))
		fmt.Fprintf(w, "  %s\n", Td(ctx, "StatsScores", map[string]any{
			"Average": appI18n.Percent(ctx, r.AverageScore),
			"Best":    appI18n.Percent(ctx, r.BestScore),
		}))
		fmt.Fprintf(w, "  %s\n", Td(ctx, "StatsTime", map[string]any{
			"Duration": appI18n.Duration(ctx, r.TotalTimeSeconds),
		}))
		if !r.LastAttempt.IsZero() {
			fmt.Fprintf(w, "  %s\n", Td(ctx, "StatsLast", map[string]any{
				"Date": r.LastAttempt.Format("2006-01-02 15:04"),
			}))
		}
	}
	if open != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, Td(ctx, "StatsOpen", map[string]any{"ExamID": open.ExamID, "Questions": len(open.Questions)}))
	}
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	gw, closeKV, err := openGateway(ctx, v)
	if err != nil {
		return err
	}
	defer closeKV()

	loaded := gw.Load(ctx)
	reportLoad(ctx, cmd.ErrOrStderr(), loaded)

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writeExport(w, loaded.Snapshot, v.GetString("format"))
}

func writeExport(w io.Writer, snap model.Snapshot, format string) error {
	switch strings.ToLower(format) {
	case "", "json":
		data, err := codec.MarshalVerbose(snap)
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		// Ensure trailing newline.
		_, _ = fmt.Fprintln(w)
		return nil
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(codec.EncodeSnapshot(snap, codec.Verbose)); err != nil {
			return fmt.Errorf("marshal YAML: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx, err := localeCtx(cmd, v.GetString("lang"))
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	gw, closeKV, err := openGateway(ctx, v)
	if err != nil {
		return err
	}
	defer closeKV()

	tr := tracker.New(model.Snapshot{})
	dropped, err := tr.ImportSnapshot(data)
	if err != nil {
		return err
	}
	writeDropped(ctx, cmd.ErrOrStderr(), dropped)
	n, err := gw.Save(ctx, tr.ExportSnapshot())
	if err != nil {
		return err
	}
	snap := tr.ExportSnapshot()
	slog.Info("history imported", "file", args[0], "sessions", len(snap.Sessions),
		"open", snap.Open != nil, "dropped", len(dropped), "bytes", n)
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx, err := localeCtx(cmd, v.GetString("lang"))
	if err != nil {
		return err
	}

	gw, closeKV, err := openGateway(ctx, v)
	if err != nil {
		return err
	}
	defer closeKV()

	loaded := gw.Load(ctx)
	if loaded.Recovered != nil {
		// Saving now would replace unreadable history with nothing.
		return fmt.Errorf("stored history unreadable, not rewriting: %w", loaded.Recovered)
	}
	writeDropped(ctx, cmd.ErrOrStderr(), loaded.Dropped)
	after, err := gw.Save(ctx, loaded.Snapshot)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), appI18n.Td(ctx, "MigrateReport", map[string]any{
		"Migrated": loaded.Migrated,
		"Before":   appI18n.Number(ctx, int64(loaded.Size)),
		"After":    appI18n.Number(ctx, int64(after)),
	}))
	return nil
}

// reportLoad prints what a load could not recover.
func reportLoad(ctx context.Context, w io.Writer, res *gateway.LoadResult) {
	if res.Recovered != nil {
		fmt.Fprintf(w, "warning: %v\n", res.Recovered)
	}
	writeDropped(ctx, w, res.Dropped)
	if res.BackupKey != "" {
		fmt.Fprintf(w, "warning: stored history copied to %s\n", res.BackupKey)
	}
}

func writeDropped(ctx context.Context, w io.Writer, dropped []*migrate.DropError) {
	for _, d := range dropped {
		fmt.Fprintln(w, appI18n.Td(ctx, "DroppedRecord", map[string]any{"Reason": d.Error()}))
	}
}
