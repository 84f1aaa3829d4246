// Command loadgen is the harness's CLI entrypoint: it loads a config,
// registers the two worked user types (httpuser, mqttuser), and runs the
// orchestrator to completion, wiring the CSV/JSON writers, the Prometheus
// exporter, and the introspection server off its tick hook. One command
// drives any weighted mix of user types.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"loadgen/internal/config"
	"loadgen/internal/events"
	"loadgen/internal/examples/httpuser"
	"loadgen/internal/examples/mqttuser"
	"loadgen/internal/httpserver"
	"loadgen/internal/orchestrator"
	"loadgen/internal/promexport"
	"loadgen/internal/reporter"
	"loadgen/internal/results"
	"loadgen/internal/task"
	"loadgen/internal/testctl"
	"loadgen/internal/vuser"
)

var (
	version = "1.0.0"

	configPath string
	target     string
	mqttBroker string
	mqttUser   string
	mqttPass   string
	betweenMin time.Duration
	betweenMax time.Duration
)

var rootCmd = &cobra.Command{
	Use:     "loadgen",
	Version: version,
	Short:   "Virtual-user load generator",
	Long: `loadgen drives a weighted mix of virtual user types against a target,
streaming live statistics to disk, Prometheus, and an HTTP introspection
endpoint until its runtime elapses, its stop condition fires, or it is
interrupted.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a load test",
	RunE:  runLoadTest,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "config file path (JSON/YAML/TOML)")

	runCmd.Flags().Uint64("user-count", 1, "total number of virtual users")
	runCmd.Flags().Uint64("users-per-sec", 1, "spawn rate in users per second")
	runCmd.Flags().Duration("runtime", 0, "test duration (0 = unlimited)")
	runCmd.Flags().Uint64("update-interval-in-secs", 2, "seconds between result snapshots")
	runCmd.Flags().Bool("no-print-to-stdout", false, "suppress console summary output")
	runCmd.Flags().Bool("no-log-to-stdout", false, "suppress structured logs on stdout")
	runCmd.Flags().String("log-level", "info", "trace|debug|info|warn|error|off")
	runCmd.Flags().String("log-file", "", "also write logs to this file")
	runCmd.Flags().String("current-results-file", "", "overwritten CSV of the latest snapshot")
	runCmd.Flags().String("results-history-file", "", "append-only CSV, one block per tick")
	runCmd.Flags().String("summary-file", "", "JSON summary written at shutdown")
	runCmd.Flags().String("prometheus-current-metrics-file", "", "overwritten Prometheus text file")
	runCmd.Flags().String("prometheus-metrics-history-folder", "", "one timestamped Prometheus file per tick")
	runCmd.Flags().String("server-address", "", "host:port for the introspection server")
	runCmd.Flags().StringArray("additional-arg", nil, "opaque value passed through to user types (repeatable)")

	runCmd.Flags().StringVar(&target, "target", "", "base URL for the HTTP worked user type (empty disables it)")
	runCmd.Flags().StringVar(&mqttBroker, "mqtt-broker", "", "broker address for the MQTT worked user type (empty disables it)")
	runCmd.Flags().StringVar(&mqttUser, "mqtt-username", "", "MQTT username")
	runCmd.Flags().StringVar(&mqttPass, "mqtt-password", "", "MQTT password")
	runCmd.Flags().DurationVar(&betweenMin, "between-min", time.Second, "minimum per-user pacing interval")
	runCmd.Flags().DurationVar(&betweenMax, "between-max", time.Second, "maximum per-user pacing interval")
}

// applyFlagOverrides lets explicitly-passed flags win over a loaded config
// file, matching flags one-to-one against config fields, without viper
// needing to know about cobra's flag set.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("user-count") {
		cfg.UserCount, _ = f.GetUint64("user-count")
	}
	if f.Changed("users-per-sec") {
		cfg.UsersPerSec, _ = f.GetUint64("users-per-sec")
	}
	if f.Changed("runtime") {
		cfg.Runtime, _ = f.GetDuration("runtime")
	}
	if f.Changed("update-interval-in-secs") {
		cfg.UpdateIntervalInSecs, _ = f.GetUint64("update-interval-in-secs")
	}
	if f.Changed("no-print-to-stdout") {
		cfg.NoPrintToStdout, _ = f.GetBool("no-print-to-stdout")
	}
	if f.Changed("no-log-to-stdout") {
		cfg.NoLogToStdout, _ = f.GetBool("no-log-to-stdout")
	}
	if f.Changed("log-level") {
		lvl, _ := f.GetString("log-level")
		cfg.LogLevel = config.LogLevel(lvl)
	}
	if f.Changed("log-file") {
		cfg.LogFile, _ = f.GetString("log-file")
	}
	if f.Changed("current-results-file") {
		cfg.CurrentResultsFile, _ = f.GetString("current-results-file")
	}
	if f.Changed("results-history-file") {
		cfg.ResultsHistoryFile, _ = f.GetString("results-history-file")
	}
	if f.Changed("summary-file") {
		cfg.SummaryFile, _ = f.GetString("summary-file")
	}
	if f.Changed("prometheus-current-metrics-file") {
		cfg.PrometheusCurrentMetricsFile, _ = f.GetString("prometheus-current-metrics-file")
	}
	if f.Changed("prometheus-metrics-history-folder") {
		cfg.PrometheusMetricsHistoryFolder, _ = f.GetString("prometheus-metrics-history-folder")
	}
	if f.Changed("server-address") {
		cfg.ServerAddress, _ = f.GetString("server-address")
	}
	if f.Changed("additional-arg") {
		cfg.AdditionalArgs, _ = f.GetStringArray("additional-arg")
	}
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	switch cfg.LogLevel {
	case config.LogLevelTrace, config.LogLevelDebug:
		level = zapcore.DebugLevel
	case config.LogLevelWarn:
		level = zapcore.WarnLevel
	case config.LogLevelError:
		level = zapcore.ErrorLevel
	}
	if cfg.LogLevel == config.LogLevelOff {
		return zap.NewNop(), nil
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	if !cfg.NoLogToStdout {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(os.Stdout), level))
	}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(f), level))
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}
	return zap.New(zapcore.NewTee(cores...)), nil
}

// registerUserTypes builds one TypeConfig per worked example the caller
// enabled via --target/--mqtt-broker, each weighted equally, demonstrating
// a heterogeneous weighted UserType mix without requiring a plugin-loading
// mechanism.
func registerUserTypes(logger *zap.Logger) []orchestrator.TypeConfig {
	between := task.Between{Min: betweenMin, Max: betweenMax}
	var types []orchestrator.TypeConfig

	if target != "" {
		ut := httpuser.NewUserType("http", 1, between, target, 10*time.Second, []httpuser.Endpoint{
			{Name: "root", Method: "GET", Path: "/", Weight: 1},
		})
		types = append(types, orchestrator.TypeConfig{
			Name:   ut.Name,
			Weight: ut.Weight,
			NewProducer: func(ch *events.Channel, testCtl *testctl.Controller) orchestrator.ProducerRunner {
				return vuser.NewProducer(ut, ch, testCtl, logger)
			},
		})
	}

	if mqttBroker != "" {
		ut := mqttuser.NewUserType("mqtt", 1, between, mqttBroker, mqttUser, mqttPass, []mqttuser.Topic{
			{Name: "telemetry", Path: "loadgen/telemetry", QoS: 0, Weight: 1, Payload: mqttuser.DefaultPayload},
		})
		types = append(types, orchestrator.TypeConfig{
			Name:   ut.Name,
			Weight: ut.Weight,
			NewProducer: func(ch *events.Channel, testCtl *testctl.Controller) orchestrator.ProducerRunner {
				return vuser.NewProducer(ut, ch, testCtl, logger)
			},
		})
	}

	return types
}

// snapshotBox holds the latest Snapshot for the introspection server to
// read, since the orchestrator only pushes one via onSnapshot rather than
// exposing its aggregator directly.
type snapshotBox struct {
	mu   sync.Mutex
	snap results.Snapshot
}

func (b *snapshotBox) set(s results.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap = s
}

func (b *snapshotBox) get() results.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap
}

func runLoadTest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(cmd, cfg)

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	runID := uuid.New().String()
	logger.Info("starting load test",
		zap.String("run_id", runID),
		zap.Uint64("user_count", cfg.UserCount),
		zap.Uint64("users_per_sec", cfg.UsersPerSec),
		zap.Duration("runtime", cfg.Runtime))
	if len(cfg.AdditionalArgs) > 0 {
		logger.Debug("additional args passed through", zap.Strings("additional_args", cfg.AdditionalArgs))
	}

	types := registerUserTypes(logger)
	if len(types) == 0 {
		return fmt.Errorf("no user types registered: pass --target and/or --mqtt-broker")
	}

	exporter := promexport.New()
	box := &snapshotBox{}

	var currentWriter *reporter.CurrentResultsWriter
	if cfg.CurrentResultsFile != "" {
		currentWriter, err = reporter.NewCurrentResultsWriter(cfg.CurrentResultsFile)
		if err != nil {
			return err
		}
	}
	var historyWriter *reporter.HistoryWriter
	if cfg.ResultsHistoryFile != "" {
		historyWriter, err = reporter.NewHistoryWriter(cfg.ResultsHistoryFile)
		if err != nil {
			return err
		}
	}

	onSnapshot := func(snap results.Snapshot) {
		box.set(snap)
		now := time.Now()
		if currentWriter != nil {
			reporter.LogAndSwallow(logger, "current-results", currentWriter.Write(snap))
		}
		if historyWriter != nil {
			reporter.LogAndSwallow(logger, "results-history", historyWriter.Write(snap, now))
		}
		if cfg.PrometheusCurrentMetricsFile != "" {
			reporter.LogAndSwallow(logger, "prometheus-current", exporter.WriteCurrentMetricsFile(cfg.PrometheusCurrentMetricsFile))
		}
		if cfg.PrometheusMetricsHistoryFolder != "" {
			reporter.LogAndSwallow(logger, "prometheus-history", exporter.WriteHistorySnapshot(cfg.PrometheusMetricsHistoryFolder, now))
		}
		if !cfg.NoPrintToStdout {
			fmt.Printf("[%s] requests=%d failures=%d errors=%d rps=%.2f\n",
				runID[:8], snap.Aggregate.Requests, snap.Aggregate.Failures, snap.Aggregate.Errors, snap.Aggregate.RequestsPerSecond)
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		UserCount:      cfg.UserCount,
		UsersPerSec:    cfg.UsersPerSec,
		Runtime:        cfg.Runtime,
		UpdateInterval: cfg.UpdateInterval(),
	}, types, logger, onSnapshot)
	orch.SetMessageSink(exporter.Sink())

	// testCtl is the outer cancellation handle: SIGINT/SIGTERM and the
	// introspection server's /stop both converge on it, and the
	// orchestrator's own internal controller is a child of its context, so
	// either source stops the whole run.
	testCtl := testctl.New(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, stopping test")
		testCtl.Stop()
	}()

	if cfg.ServerAddress != "" {
		srv := httpserver.New(cfg.ServerAddress, box.get, testCtl, logger)
		go func() {
			if err := srv.Run(); err != nil {
				logger.Warn("introspection server stopped with an error", zap.Error(err))
			}
		}()
	}

	final, err := orch.Run(testCtl.Context())
	if err != nil {
		logger.Error("test ended with an error", zap.Error(err))
	}

	if cfg.SummaryFile != "" {
		reporter.LogAndSwallow(logger, "summary", reporter.WriteSummaryFileForRun(cfg.SummaryFile, final, runID))
	}
	if !cfg.NoPrintToStdout {
		fmt.Printf("\nrun %s complete: %d requests, %d failures, %d errors over %s\n",
			runID, final.Aggregate.Requests, final.Aggregate.Failures, final.Aggregate.Errors, final.Elapsed)
	}

	return err
}

func main() {
	rootCmd.AddCommand(runCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
