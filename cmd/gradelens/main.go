// Package main provides the CLI entrypoint for gradelens.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/gradelens/internal/config"
	"github.com/verte-zerg/gradelens/internal/insight"
	"github.com/verte-zerg/gradelens/internal/logger"
	"github.com/verte-zerg/gradelens/internal/metrics"
	"github.com/verte-zerg/gradelens/internal/model"
	"github.com/verte-zerg/gradelens/internal/reportui"
	"github.com/verte-zerg/gradelens/internal/server"
	"github.com/verte-zerg/gradelens/internal/source"
	"github.com/verte-zerg/gradelens/internal/stats"
	"github.com/verte-zerg/gradelens/internal/store"
)

const (
	defaultFormat         = "text"
	defaultLogLevel       = "warn"
	defaultLogFormat      = "text"
	defaultAPIKeyEnv      = "GROQ_API_KEY"
	defaultInsightTimeout = 30 * time.Second
)

var (
	configPath string
	dbPath     string

	analyzeFormat   string
	analyzeInsights bool
	analyzeSave     bool
	analyzeColor    bool
	analyzeSheet    string

	historySince string
	historyLast  int

	showFormat string

	serveAddr string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gradelens",
		Short:         "Student score analytics",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", config.DefaultDBPath(), "history database path")

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newViewCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Analyze a score sheet (CSV, text, PDF or XLSX)",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyzeCmd,
	}
	cmd.Flags().StringVar(&analyzeFormat, "format", defaultFormat, "output format (text|json)")
	cmd.Flags().BoolVar(&analyzeInsights, "insights", false, "generate narrative insights")
	cmd.Flags().BoolVar(&analyzeSave, "save", false, "store the analysis in history")
	cmd.Flags().BoolVar(&analyzeColor, "color", false, "force colored charts")
	cmd.Flags().StringVar(&analyzeSheet, "sheet", "", "XLSX sheet name (default: first sheet)")
	return cmd
}

func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	applyStringConfig(cmd, "format", &analyzeFormat, fileCfg.Analyze.Format)
	applyBoolConfig(cmd, "insights", &analyzeInsights, fileCfg.Analyze.Insights)
	applyBoolConfig(cmd, "save", &analyzeSave, fileCfg.Analyze.Save)
	applyBoolConfig(cmd, "color", &analyzeColor, fileCfg.Analyze.Color)
	applyStringConfig(cmd, "sheet", &analyzeSheet, fileCfg.Analyze.Sheet)
	applyStringConfig(cmd, "db", &dbPath, fileCfg.Store.Path)

	cfg := model.AnalyzeConfig{
		Format:   strings.ToLower(strings.TrimSpace(analyzeFormat)),
		Insights: analyzeInsights,
		Save:     analyzeSave,
		Color:    analyzeColor,
		Sheet:    analyzeSheet,
	}
	if err := validateFormat(cfg.Format); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	path := args[0]
	report, kind, err := loadReport(ctx, path, cfg.Sheet)
	if err != nil {
		return err
	}

	var insights *insight.Insights
	if cfg.Insights {
		gen, err := newInsightGenerator(fileCfg.Insight)
		if err != nil {
			return err
		}
		result := gen.Generate(ctx, report)
		insights = &result
	}

	id := ""
	if cfg.Save {
		st, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open db: %w", err)
		}
		defer closeStore(st)
		id, err = st.InsertAnalysis(ctx, model.AnalysisMeta{
			SourceName: filepath.Base(path),
			SourceKind: string(kind),
		}, report)
		if err != nil {
			return fmt.Errorf("failed to save analysis: %w", err)
		}
		logErrf("Saved analysis %s\n", id)
	}

	out := cmd.OutOrStdout()
	if cfg.Format == "json" {
		return writeJSON(out, analysisOutput{ID: id, Stats: report, Insights: insights})
	}
	if err := stats.RenderReport(out, report, 0, cfg.Color); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if insights != nil {
		if err := renderInsights(out, *insights); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view FILE",
		Short: "Browse a score sheet report in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  runViewCmd,
	}
	cmd.Flags().StringVar(&analyzeSheet, "sheet", "", "XLSX sheet name (default: first sheet)")
	cmd.Flags().BoolVar(&analyzeInsights, "insights", false, "ask the insight model instead of the local summary")
	return cmd
}

func runViewCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	applyStringConfig(cmd, "sheet", &analyzeSheet, fileCfg.Analyze.Sheet)
	applyBoolConfig(cmd, "insights", &analyzeInsights, fileCfg.Analyze.Insights)
	applyStringConfig(cmd, "db", &dbPath, fileCfg.Store.Path)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	report, _, err := loadReport(ctx, args[0], analyzeSheet)
	if err != nil {
		return err
	}

	var history reportui.History
	st, err := store.Open(dbPath)
	if err != nil {
		logErrf("history unavailable: %v\n", err)
	} else {
		defer closeStore(st)
		history = st
	}

	m := reportui.NewModel(report, filepath.Base(args[0]), history)
	if analyzeInsights {
		gen, err := newInsightGenerator(fileCfg.Insight)
		if err != nil {
			return err
		}
		m.SetInsights(gen.Generate(ctx, report))
	}
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run report viewer: %w", err)
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored analyses",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historySince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&historyLast, "last", 0, "limit to last N analyses")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	applyStringConfig(cmd, "db", &dbPath, fileCfg.Store.Path)

	cfg, err := historyConfig(historySince, historyLast)
	if err != nil {
		return err
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer closeStore(st)

	runs, err := st.ListAnalyses(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to list analyses: %w", err)
	}
	if err := stats.RenderHistory(cmd.OutOrStdout(), runs); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show a stored analysis",
		Args:  cobra.ExactArgs(1),
		RunE:  runShowCmd,
	}
	cmd.Flags().StringVar(&showFormat, "format", defaultFormat, "output format (text|json)")
	return cmd
}

func runShowCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	applyStringConfig(cmd, "format", &showFormat, fileCfg.Analyze.Format)
	applyStringConfig(cmd, "db", &dbPath, fileCfg.Store.Path)
	format := strings.ToLower(strings.TrimSpace(showFormat))
	if err := validateFormat(format); err != nil {
		return err
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer closeStore(st)

	stored, err := st.GetAnalysis(context.Background(), args[0])
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no analysis with id %q (list ids with: gradelens history)", args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to load analysis: %w", err)
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		return writeJSON(out, storedOutput(stored))
	}
	if _, err := fmt.Fprintf(out, "Analysis %s\nSource: %s (%s)\nCreated: %s\n\n",
		stored.ID, stored.SourceName, stored.SourceKind,
		stored.CreatedAt.Local().Format("2006-01-02 15:04")); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := stats.RenderReport(out, stored.Report, 0, false); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP analysis API",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}
	cmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from GRADELENS_ADDR or :5000)")
	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Addr = serveAddr
	}
	if cmd.Flags().Changed("db") {
		cfg.DBPath = dbPath
	}

	if err := logger.Init(logger.Options{Format: cfg.LogFormat, Level: cfg.LogLevel}); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	log := logger.Named("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := server.Deps{
		Metrics: metrics.NewManager(),
		Log:     log,
	}
	if cfg.DBPath != "" {
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open db: %w", err)
		}
		defer closeStore(st)
		deps.History = st
	}

	var completer insight.Completer
	if cfg.InsightEnabled && cfg.InsightAPIKey != "" {
		client, err := insight.NewClient(insight.ClientConfig{
			Endpoint: cfg.InsightEndpoint,
			Model:    cfg.InsightModel,
			APIKey:   cfg.InsightAPIKey,
			Timeout:  cfg.InsightTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to configure insights: %w", err)
		}
		completer = client
	} else {
		log.Info(ctx, "insight model disabled, using local summaries")
	}
	deps.Insights = insight.NewGenerator(completer, logger.Named("insight"))

	return server.New(cfg, deps).Run(ctx)
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := configPath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

// loadFileConfig reads the TOML config and sets up CLI logging from it.
func loadFileConfig() (config.FileConfig, error) {
	fileCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return config.FileConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	level, format := defaultLogLevel, defaultLogFormat
	if fileCfg.Log.Level != nil {
		level = *fileCfg.Log.Level
	}
	if fileCfg.Log.Format != nil {
		format = *fileCfg.Log.Format
	}
	if err := logger.Init(logger.Options{Level: level, Format: format}); err != nil {
		return config.FileConfig{}, fmt.Errorf("invalid [log] config: %w", err)
	}
	return fileCfg, nil
}

func loadReport(ctx context.Context, path, sheet string) (model.ClassReport, source.Kind, error) {
	kind, err := source.Detect(path, "")
	if err != nil {
		return model.ClassReport{}, "", fmt.Errorf("%s: %w", path, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return model.ClassReport{}, "", fmt.Errorf("failed to open input: %w", err)
	}
	defer func() {
		_ = f.Close() // read-only
	}()

	src, err := source.Open(kind, f, source.Options{Sheet: sheet})
	if err != nil {
		return model.ClassReport{}, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	records, err := src.Records(ctx)
	if err != nil {
		return model.ClassReport{}, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	report, err := stats.Analyze(records)
	switch {
	case errors.Is(err, stats.ErrNoData):
		return model.ClassReport{}, "", fmt.Errorf("%s contains no student rows", path)
	case err != nil:
		return model.ClassReport{}, "", fmt.Errorf("failed to analyze %s: %w", path, err)
	}
	logger.Get().Debug(ctx, "analyzed input",
		logger.String("path", path),
		logger.String("kind", string(kind)),
		logger.Int("students", len(report.Students)),
		logger.Int("subjects", len(report.SubjectKeys)),
	)
	return report, kind, nil
}

// newInsightGenerator builds a model-backed generator when an API key is
// available and a local-only one otherwise.
func newInsightGenerator(section config.InsightSection) (*insight.Generator, error) {
	log := logger.Named("insight")
	keyEnv := defaultAPIKeyEnv
	if section.APIKeyEnv != nil && *section.APIKeyEnv != "" {
		keyEnv = *section.APIKeyEnv
	}
	apiKey := strings.TrimSpace(os.Getenv(keyEnv))
	if apiKey == "" {
		logErrf("%s is not set; using local summary\n", keyEnv)
		return insight.NewGenerator(nil, log), nil
	}

	clientCfg := insight.ClientConfig{
		Endpoint: config.DefaultInsightEndpoint,
		Model:    config.DefaultInsightModel,
		APIKey:   apiKey,
		Timeout:  defaultInsightTimeout,
	}
	if section.Endpoint != nil {
		clientCfg.Endpoint = *section.Endpoint
	}
	if section.Model != nil {
		clientCfg.Model = *section.Model
	}
	if section.Timeout != nil {
		d, err := time.ParseDuration(*section.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid [insight] timeout %q: %w", *section.Timeout, err)
		}
		clientCfg.Timeout = d
	}
	client, err := insight.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure insights: %w", err)
	}
	return insight.NewGenerator(client, log), nil
}

func historyConfig(since string, last int) (model.HistoryConfig, error) {
	if last < 0 {
		return model.HistoryConfig{}, fmt.Errorf("--last must be >= 0")
	}
	cfg := model.HistoryConfig{Last: last}
	if since != "" {
		parsed, err := time.ParseInLocation("2006-01-02", since, time.Local)
		if err != nil {
			return model.HistoryConfig{}, fmt.Errorf("invalid --since value: %w", err)
		}
		cfg.Since = &parsed
	}
	return cfg, nil
}

func validateFormat(format string) error {
	switch format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("--format must be text or json, got %q", format)
	}
}

type analysisOutput struct {
	ID       string            `json:"id,omitempty"`
	Stats    model.ClassReport `json:"stats"`
	Insights *insight.Insights `json:"insights,omitempty"`
}

type storedAnalysisOutput struct {
	ID         string            `json:"id"`
	CreatedAt  time.Time         `json:"createdAt"`
	SourceName string            `json:"sourceName"`
	SourceKind string            `json:"sourceKind"`
	Stats      model.ClassReport `json:"stats"`
}

func storedOutput(stored model.StoredAnalysis) storedAnalysisOutput {
	return storedAnalysisOutput{
		ID:         stored.ID,
		CreatedAt:  stored.CreatedAt,
		SourceName: stored.SourceName,
		SourceKind: stored.SourceKind,
		Stats:      stored.Report,
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func renderInsights(w io.Writer, in insight.Insights) error {
	lines := []string{fmt.Sprintf("Insights (%s)", in.Source)}
	if in.Summary != "" {
		lines = append(lines, in.Summary)
	}
	if len(in.TopInsights) > 0 {
		lines = append(lines, "", "Key points:")
		for _, s := range in.TopInsights {
			lines = append(lines, "  - "+s)
		}
	}
	if len(in.Recommendations) > 0 {
		lines = append(lines, "", "Recommendations:")
		for _, s := range in.Recommendations {
			lines = append(lines, "  - "+s)
		}
	}
	if in.Text != "" {
		lines = append(lines, in.Text)
	}
	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		logErrf("failed to close db: %v\n", err)
	}
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# gradelens configuration
# Uncomment a value to enable it. CLI flags override config values.

[analyze]
# format = %q            # Output format: text or json
# insights = false         # Generate narrative insights
# save = false             # Store every analysis in history
# color = false            # Force colored charts
# sheet = ""               # XLSX sheet name (default: first sheet)

[insight]
# endpoint = %q
# model = %q
# api-key-env = %q   # Environment variable holding the API key
# timeout = %q

[store]
# path = %q

[log]
# level = %q             # debug, info, warn or error
# format = %q            # text or json
`,
		defaultFormat,
		config.DefaultInsightEndpoint,
		config.DefaultInsightModel,
		defaultAPIKeyEnv,
		defaultInsightTimeout.String(),
		config.DefaultDBPath(),
		defaultLogLevel,
		defaultLogFormat,
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
