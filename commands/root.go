package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/penwyp/go-chat-recap/internal/analyzer"
	"github.com/penwyp/go-chat-recap/internal/config"
	"github.com/penwyp/go-chat-recap/internal/core/model"
	"github.com/penwyp/go-chat-recap/internal/data/parser"
	"github.com/penwyp/go-chat-recap/internal/data/scanner"
	"github.com/penwyp/go-chat-recap/internal/data/watcher"
	"github.com/penwyp/go-chat-recap/internal/presentation/formatter"
	"github.com/penwyp/go-chat-recap/internal/util"
)

var (
	// Logging and configuration
	debug      bool
	configPath string

	// Output related
	outputFormat string
	chartsDir    string
	watch        bool

	// Pipeline tuning
	dialect        string
	onBadTimestamp string
	noHeatmap      bool
	topN           int
	timezone       string

	rootCmd = &cobra.Command{
		Use:   "go-chat-recap [flags] <export.json>...",
		Short: "Chat history analytics",
		Long: `go-chat-recap summarizes exported chat histories.

It accepts JSON exports shaped as a list of messages, an object wrapping the list
under "messages", "data" or "chat_history", or column arrays. Timestamp, sender and
content columns are inferred from their names.

Arguments may be files or directories; directories are searched for *.json files.

Examples:
  go-chat-recap chat.json                              # Terminal summary
  go-chat-recap --output json chat.json                # JSON envelope with base64 charts
  go-chat-recap --charts-dir ./charts chat.json        # Write PNG charts
  go-chat-recap --output csv a.json b.json             # Daily counts for several exports
  go-chat-recap --watch chat.json                      # Re-analyze on every save
  go-chat-recap --dialect strict --timezone Asia/Shanghai chat.json
  go-chat-recap serve --addr :8080                     # Start the HTTP API`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE:         runRecap,
	}
)

const defaultConfigFile = "~/.go-chat-recap/config.yaml"

func init() {
	// Configuration
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigFile,
		"Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"Enable debug logging")

	// Pipeline configuration
	rootCmd.PersistentFlags().StringVar(&dialect, "dialect", "",
		"Column inference dialect (loose, strict)")
	rootCmd.PersistentFlags().StringVar(&onBadTimestamp, "on-bad-timestamp", "",
		"Unparseable timestamp policy (drop, fail)")
	rootCmd.PersistentFlags().BoolVar(&noHeatmap, "no-heatmap", false,
		"Skip the weekday by hour heatmap")
	rootCmd.PersistentFlags().IntVar(&topN, "top-n", 0,
		"Senders ranked by average message length (0 = dialect default)")
	rootCmd.PersistentFlags().StringVar(&timezone, "timezone", "",
		"Timezone for hours and days (e.g., UTC, Asia/Shanghai, Local)")

	// Output configuration
	rootCmd.Flags().StringVarP(&outputFormat, "output", "o", formatter.OutputSummary,
		"Output format (summary, json, csv)")
	rootCmd.Flags().StringVar(&chartsDir, "charts-dir", "",
		"Directory to write PNG charts into")
	rootCmd.Flags().BoolVarP(&watch, "watch", "w", false,
		"Re-analyze files when they change")
}

// recapOptions is everything one CLI run needs.
type recapOptions struct {
	Files     []string
	Output    string
	ChartsDir string
	Watch     bool
	Analyzer  analyzer.Config

	chartDirs map[string]string
}

func runRecap(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := initLogging(cfg); err != nil {
		return err
	}

	acfg, err := cfg.Pipeline.AnalyzerConfig()
	if err != nil {
		return err
	}

	inputs := make([]string, len(args))
	for i, arg := range args {
		inputs[i] = expandPath(arg)
	}
	files, err := scanner.NewFileScanner().Scan(inputs)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no export files found")
	}
	opts := recapOptions{
		Files:    files,
		Output:   outputFormat,
		Watch:    watch,
		Analyzer: acfg,
	}
	if chartsDir != "" {
		opts.ChartsDir = expandPath(chartsDir)
	}

	ctx, stop := notifyContext(cmd.Context())
	defer stop()
	return runRecapWith(ctx, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// runRecapWith analyzes every file once and, in watch mode, again on each
// content change until ctx is cancelled.
func runRecapWith(ctx context.Context, opts recapOptions, out, errOut io.Writer) error {
	opts.Analyzer.SkipCharts = opts.ChartsDir == "" && opts.Output != formatter.OutputJSON
	a, err := analyzer.New(opts.Analyzer)
	if err != nil {
		return err
	}
	f, err := formatter.NewFormatter(opts.Output, out)
	if err != nil {
		return err
	}
	if opts.ChartsDir != "" {
		if err := ensureDir(opts.ChartsDir); err != nil {
			return fmt.Errorf("failed to create charts directory: %w", err)
		}
		opts.chartDirs = chartDirs(opts.ChartsDir, opts.Files)
	}

	p := parser.NewParser(runtime.NumCPU())
	results := make(map[string]parser.ParseResult, len(opts.Files))
	for r := range p.ParseFiles(opts.Files) {
		results[r.File] = r
	}

	failed := 0
	for _, file := range opts.Files {
		r := results[file]
		if err := recapFile(a, f, opts, file, r.Payload, r.Error, errOut); err != nil {
			failed++
		}
	}
	util.LogDebug("Recap finished", util.F("files", len(opts.Files)), util.F("failed", failed))

	if opts.Watch {
		return watchFiles(ctx, a, f, p, opts, errOut)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be analyzed", failed, len(opts.Files))
	}
	return nil
}

// recapFile analyzes one decoded payload and writes its report and charts.
// Errors are reported on errOut and returned for counting.
func recapFile(a *analyzer.Analyzer, f formatter.Formatter, opts recapOptions, file string, payload any, parseErr error, errOut io.Writer) error {
	var (
		analysis *model.Analysis
		err      = parseErr
	)
	if err == nil {
		analysis, err = a.Analyze(payload)
	}
	if err != nil {
		reportError(errOut, file, err)
		return err
	}

	if err := f.Format(filepath.Base(file), analysis); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if opts.ChartsDir != "" {
		dir, ok := opts.chartDirs[file]
		if !ok {
			dir = opts.ChartsDir
		}
		if err := writeCharts(dir, analysis); err != nil {
			reportError(errOut, file, err)
			return err
		}
	}
	return nil
}

func watchFiles(ctx context.Context, a *analyzer.Analyzer, f formatter.Formatter, p *parser.Parser, opts recapOptions, errOut io.Writer) error {
	fw, err := watcher.NewFileWatcher(opts.Files, watcher.DefaultDebounce)
	if err != nil {
		return fmt.Errorf("failed to watch files: %w", err)
	}
	fmt.Fprintf(errOut, "Watching %d file(s) for changes (Ctrl+C to stop)\n", len(opts.Files))

	errCh := make(chan error, 1)
	go func() {
		errCh <- fw.Run(ctx)
	}()

	for change := range fw.Changes() {
		util.LogInfo("File changed", util.F("file", change.Path), util.F("size", change.Size))
		payload, err := p.ParseFile(change.Path)
		_ = recapFile(a, f, opts, change.Path, payload, err, errOut)
	}
	a.Stats().PrintFinalStats()
	return <-errCh
}

// reportError prints a pipeline failure the way the HTTP envelope names it.
func reportError(w io.Writer, file string, err error) {
	var perr *model.PipelineError
	if errors.As(err, &perr) {
		msg := fmt.Sprintf("%s: %s: %s", filepath.Base(file), perr.Kind, perr.Message)
		if len(perr.Fields) > 0 {
			msg += fmt.Sprintf(" (observed fields: %s)", strings.Join(perr.Fields, ", "))
		}
		fmt.Fprintln(w, msg)
		if perr.Trace != "" {
			util.LogDebug("Internal failure trace", util.F("trace", perr.Trace))
		}
		return
	}
	fmt.Fprintf(w, "%s: %v\n", filepath.Base(file), err)
}

// writeCharts writes one <id>.png per rendered chart.
func writeCharts(dir string, analysis *model.Analysis) error {
	if len(analysis.Charts) == 0 {
		return nil
	}
	if err := ensureDir(dir); err != nil {
		return err
	}
	for id, artifact := range analysis.Charts {
		path := filepath.Join(dir, string(id)+"."+artifact.Format)
		if err := os.WriteFile(path, artifact.Data, 0644); err != nil {
			return fmt.Errorf("failed to write chart %s: %w", id, err)
		}
		util.LogDebug("Chart written", util.F("path", path), util.F("bytes", len(artifact.Data)))
	}
	return nil
}

// loadConfig layers the config file, environment and explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	path := configPath
	if path != "" {
		path = expandPath(path)
	}
	cfg, err := config.Load(path, flags.Changed("config"))
	if err != nil {
		return nil, err
	}

	if flags.Changed("dialect") {
		cfg.Pipeline.Dialect = dialect
	}
	if flags.Changed("on-bad-timestamp") {
		cfg.Pipeline.OnBadTimestamp = onBadTimestamp
	}
	if flags.Changed("no-heatmap") {
		cfg.Pipeline.Heatmap = !noHeatmap
	}
	if flags.Changed("top-n") {
		cfg.Pipeline.AvgLengthTopN = topN
	}
	if flags.Changed("timezone") {
		cfg.Pipeline.Timezone = timezone
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func initLogging(cfg *config.Config) error {
	lc := cfg.Logging.LoggerConfig(debug)
	if lc.File != "" {
		lc.File = expandPath(lc.File)
		if err := ensureDir(filepath.Dir(lc.File)); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	return util.InitLogger(lc)
}

func Execute() error {
	return rootCmd.Execute()
}

// Helper functions

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// chartDirs maps each input to its chart directory. A single input writes
// into root; several inputs get root/<stem>, suffixed with a hash of the
// parent directory when two inputs share a stem.
func chartDirs(root string, files []string) map[string]string {
	dirs := make(map[string]string, len(files))
	if len(files) == 1 {
		dirs[files[0]] = root
		return dirs
	}
	stems := make(map[string]int, len(files))
	for _, f := range files {
		stems[fileStem(f)]++
	}
	for _, f := range files {
		name := fileStem(f)
		if stems[name] > 1 {
			name += "-" + util.Fingerprint([]byte(filepath.Dir(f)))
		}
		dirs[f] = filepath.Join(root, name)
	}
	return dirs
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
