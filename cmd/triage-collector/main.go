// Command triage-collector runs a single end-to-end collection pass:
// it loads an artifact manifest, collects filesystem artifacts (C1-C4),
// optionally snapshots volatile system state (C5) and process memory
// (C6), packages everything into a ZIP archive (C7), delivers it to
// local disk or a remote sink (C8/C9), and writes the collection
// summary alongside it (C10).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"

	"github.com/forensant/triage-collector/internal/collect"
	tcconfig "github.com/forensant/triage-collector/internal/config"
	"github.com/forensant/triage-collector/internal/memproc"
	"github.com/forensant/triage-collector/internal/metrics"
	"github.com/forensant/triage-collector/internal/pipeline"
	"github.com/forensant/triage-collector/internal/summary"
	"github.com/forensant/triage-collector/internal/upload"
	"github.com/forensant/triage-collector/internal/volatile"
	"github.com/forensant/triage-collector/pkg/errors"
	"github.com/forensant/triage-collector/pkg/health"
	"github.com/forensant/triage-collector/pkg/recovery"
	"github.com/forensant/triage-collector/pkg/utils"
)

type runFlags struct {
	configPath     string
	outputDir      string
	hostname       string
	delivery       string
	s3Bucket       string
	s3Key          string
	sftpHost       string
	sftpUser       string
	sftpKey        string
	sftpRemotePath string
	memoryProcs    []string
	logLevel       string
	logFormat      string
	logFile        string
	logMaxSizeMB   int64
	logMaxBackups  int
	metricsPort    int
}

func main() {
	flags := &runFlags{}

	root := &cobra.Command{
		Use:   "triage-collector",
		Short: "Collect a forensic triage package from the local host",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return run(ctx, flags)
		},
	}

	root.Flags().StringVar(&flags.configPath, "config", "", "path to the artifact manifest YAML (required)")
	root.Flags().StringVar(&flags.outputDir, "output", "", "local staging directory; defaults to global_options.output_dir or ./triage-output")
	root.Flags().StringVar(&flags.hostname, "hostname", "", "override the collected hostname recorded in the summary")
	root.Flags().StringVar(&flags.delivery, "delivery", "", "local, s3, or sftp; defaults to global_options.delivery or local")
	root.Flags().StringVar(&flags.s3Bucket, "s3-bucket", "", "destination bucket when --delivery=s3")
	root.Flags().StringVar(&flags.s3Key, "s3-key", "", "destination object key when --delivery=s3")
	root.Flags().StringVar(&flags.sftpHost, "sftp-host", "", "host[:port] when --delivery=sftp")
	root.Flags().StringVar(&flags.sftpUser, "sftp-user", "", "username when --delivery=sftp")
	root.Flags().StringVar(&flags.sftpKey, "sftp-key", "", "private key path when --delivery=sftp")
	root.Flags().StringVar(&flags.sftpRemotePath, "sftp-remote-path", "", "remote archive path when --delivery=sftp")
	root.Flags().StringSliceVar(&flags.memoryProcs, "memory-process", nil, "process name to acquire memory from; repeatable, skipped entirely if empty")
	root.Flags().StringVar(&flags.logLevel, "log-level", "info", "debug, info, warn, or error")
	root.Flags().StringVar(&flags.logFormat, "log-format", "text", "text or json")
	root.Flags().StringVar(&flags.logFile, "log-file", "", "write logs to this file with rotation instead of stdout")
	root.Flags().Int64Var(&flags.logMaxSizeMB, "log-max-size-mb", 100, "rotate --log-file once it reaches this size in megabytes")
	root.Flags().IntVar(&flags.logMaxBackups, "log-max-backups", 5, "number of rotated log files to retain")
	root.Flags().IntVar(&flags.metricsPort, "metrics-port", 0, "serve Prometheus metrics on this port (0 disables)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, flags *runFlags) error {
	if flags.configPath == "" {
		return fmt.Errorf("--config is required")
	}

	logger, err := newLogger(flags)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	cfg, err := tcconfig.LoadFromFile(flags.configPath)
	if err != nil {
		return err
	}

	outputDir := firstNonEmpty(flags.outputDir, cfg.GlobalOptions["output_dir"], "./triage-output")
	hostname := firstNonEmpty(flags.hostname, cfg.GlobalOptions["hostname"], osHostname())
	deliveryMode := strings.ToLower(firstNonEmpty(flags.delivery, cfg.GlobalOptions["delivery"], "local"))

	healthTracker := health.NewTracker(health.DefaultConfig())
	for _, component := range []string{"collect", "volatile", "memproc", "deliver", "summary"} {
		healthTracker.RegisterComponent(component)
	}

	var metricsCollector *metrics.Collector
	if flags.metricsPort > 0 {
		metricsCollector, err = metrics.NewCollector(&metrics.Config{
			Enabled:        true,
			Port:           flags.metricsPort,
			Path:           "/metrics",
			Namespace:      "triage_collector",
			UpdateInterval: 30 * time.Second,
			Labels:         map[string]string{"hostname": hostname},
		})
		if err != nil {
			return fmt.Errorf("failed to initialize metrics collector: %w", err)
		}
		if err := metricsCollector.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer metricsCollector.Stop(context.Background())
	}

	logger.Info("collection starting", map[string]interface{}{
		"hostname": hostname, "output_dir": outputDir, "delivery": deliveryMode,
	})

	results, err := collectArtifacts(ctx, cfg, outputDir)
	if err != nil {
		healthTracker.RecordError("collect", err)
		return err
	}
	healthTracker.RecordSuccess("collect")

	var volatileSummary *volatile.Summary
	if hasVolatileArtifacts(cfg) {
		snap := volatile.Collect(ctx)
		if err := volatile.WriteSnapshot(snap, filepath.Join(outputDir, "volatile")); err != nil {
			healthTracker.RecordError("volatile", err)
			logger.Warn("volatile snapshot write failed", map[string]interface{}{"error": err.Error()})
		} else {
			healthTracker.RecordSuccess("volatile")
		}
		sum := volatile.Summarize(snap)
		volatileSummary = &sum
	}

	var memorySummary *memproc.CollectionSummary
	if len(flags.memoryProcs) > 0 {
		memorySummary, err = collectProcessMemory(ctx, flags.memoryProcs, outputDir)
		if err != nil {
			healthTracker.RecordError("memproc", err)
			logger.Warn("process memory acquisition failed", map[string]interface{}{"error": err.Error()})
		} else {
			healthTracker.RecordSuccess("memproc")
		}
	}

	doc := summary.Build(results, outputDir, volatileSummary, memorySummary, summary.Options{Hostname: hostname})
	summaryPath := filepath.Join(outputDir, "collection_summary.json")
	if err := summary.Write(doc, summaryPath); err != nil {
		healthTracker.RecordError("summary", err)
		return err
	}
	healthTracker.RecordSuccess("summary")

	recoveryMgr := recovery.NewRecoveryManager(recovery.DefaultRecoveryConfig())

	var totalBytes int64
	for _, meta := range results.Entries {
		totalBytes += meta.FileSize
	}

	reporter := pipeline.NewProgressReporter(logger, pollIntervalFor(deliveryMode))
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()

	switch deliveryMode {
	case "local":
		// Sibling of outputDir, not inside it: treeRoot is walked after
		// the archive file is created, so a nested archive path would
		// include itself.
		archivePath := strings.TrimSuffix(outputDir, string(filepath.Separator)) + ".zip"
		go reporter.Watch(watchCtx, "archive", func() uint64 {
			info, statErr := os.Stat(archivePath)
			if statErr != nil {
				return 0
			}
			return uint64(info.Size())
		}, -1)

		err = recoveryMgr.Execute(ctx, "deliver", "pipeline.Local", func() error {
			_, runErr := pipeline.Local(ctx, outputDir, archivePath, pipeline.LocalOptions{}, metricsCollector)
			return runErr
		})
	case "s3", "sftp":
		var archiveSink, summarySink upload.Sink
		archiveSink, summarySink, err = buildRemoteSinks(ctx, flags, deliveryMode)
		if err == nil {
			go reporter.Watch(watchCtx, "upload", archiveSink.BytesWritten, totalBytes)

			err = recoveryMgr.Execute(ctx, "deliver", "pipeline.Streaming", func() error {
				_, runErr := pipeline.Streaming(ctx, outputDir, "collection_summary.json", archiveSink, summarySink)
				return runErr
			})
		}
	default:
		err = errors.NewError(errors.ErrCodeInvalidConfig, "unknown delivery mode").
			WithComponent("main").WithOperation("run").WithContext("delivery", deliveryMode)
	}
	stopWatch()

	if err != nil {
		healthTracker.RecordError("deliver", err)
		return err
	}
	healthTracker.RecordSuccess("deliver")

	logger.Info("collection complete", map[string]interface{}{
		"hostname": hostname, "artifacts": len(results.Entries), "errors": len(results.Errors),
		"overall_health": healthTracker.GetOverallHealth().String(),
	})
	return nil
}

// collectArtifacts runs the scheduler with baseDir as the collection
// root; the scheduler creates and populates baseDir/fs itself.
func collectArtifacts(ctx context.Context, cfg *tcconfig.Configuration, baseDir string) (*collect.Results, error) {
	scheduler := collect.NewScheduler(collect.NewBackend(collect.NoopPrivilegeEnabler{}))
	artifacts := cfg.ForPlatform(runtime.GOOS)
	return scheduler.Run(ctx, artifacts, baseDir)
}

func hasVolatileArtifacts(cfg *tcconfig.Configuration) bool {
	for _, artifact := range cfg.ForPlatform(runtime.GOOS) {
		if artifact.ArtifactType.Category == "VolatileData" {
			return true
		}
	}
	return false
}

// collectProcessMemory resolves each requested process name to its
// live PIDs via gopsutil and runs the platform memory driver over
// them, matching the original collector's name-based targeting.
func collectProcessMemory(ctx context.Context, names []string, outputDir string) (*memproc.CollectionSummary, error) {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.ToLower(n)] = true
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	var targets []memproc.ProcessTarget
	for _, p := range procs {
		name, _ := p.NameWithContext(ctx)
		if !wanted[strings.ToLower(name)] {
			continue
		}

		cmdline, _ := p.CmdlineWithContext(ctx)
		exe, _ := p.ExeWithContext(ctx)
		username, _ := p.UsernameWithContext(ctx)
		ppid, _ := p.PpidWithContext(ctx)
		createdMs, _ := p.CreateTimeWithContext(ctx)

		targets = append(targets, memproc.ProcessTarget{
			PID:         p.Pid,
			Name:        name,
			CommandLine: cmdline,
			Path:        exe,
			User:        username,
			ParentPID:   ppid,
			StartTime:   time.UnixMilli(createdMs).UTC().Format(time.RFC3339),
		})
	}

	driver := memproc.NewDriver(memproc.NewEnumerator(), filepath.Join(outputDir, "process_memory"), memproc.DefaultOptions())
	return driver.Run(ctx, targets)
}

func buildRemoteSinks(ctx context.Context, flags *runFlags, mode string) (archiveSink, summarySink upload.Sink, err error) {
	switch mode {
	case "s3":
		awsCfg, cfgErr := awsconfig.LoadDefaultConfig(ctx)
		if cfgErr != nil {
			return nil, nil, fmt.Errorf("load AWS config: %w", cfgErr)
		}
		client := s3.NewFromConfig(awsCfg)

		archiveSink, err = upload.NewS3Sink(ctx, client, flags.s3Bucket, flags.s3Key, -1, upload.DefaultS3Config())
		if err != nil {
			return nil, nil, err
		}
		summaryKey := summaryKeyFor(flags.s3Key)
		summarySink, err = upload.NewS3Sink(ctx, client, flags.s3Bucket, summaryKey, -1, upload.DefaultS3Config())
		return archiveSink, summarySink, err

	case "sftp":
		host, port := splitSFTPHost(flags.sftpHost)
		baseCfg := upload.SFTPConfig{
			Host:           host,
			Port:           port,
			Username:       flags.sftpUser,
			PrivateKeyPath: flags.sftpKey,
			RemotePath:     flags.sftpRemotePath,
		}
		archiveSink, err = upload.NewSFTPSink(baseCfg)
		if err != nil {
			return nil, nil, err
		}
		summaryCfg := baseCfg
		summaryCfg.RemotePath = summaryKeyFor(flags.sftpRemotePath)
		summarySink, err = upload.NewSFTPSink(summaryCfg)
		return archiveSink, summarySink, err
	}

	return nil, nil, fmt.Errorf("unsupported delivery mode %q", mode)
}

// summaryKeyFor derives the sibling summary object key from the
// archive key: same directory, fixed filename.
func summaryKeyFor(archiveKey string) string {
	dir := filepath.Dir(archiveKey)
	if dir == "." {
		return "collection_summary.json"
	}
	return filepath.ToSlash(filepath.Join(dir, "collection_summary.json"))
}

// splitSFTPHost splits a "host" or "host:port" flag value. A missing
// or unparsable port leaves port at 0, which SFTPConfig.withDefaults
// replaces with 22.
func splitSFTPHost(hostport string) (string, int) {
	host, portStr, found := strings.Cut(hostport, ":")
	if !found {
		return host, 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}
	return host, port
}

func pollIntervalFor(deliveryMode string) time.Duration {
	if deliveryMode == "local" {
		return pipeline.LocalPollInterval
	}
	return pipeline.UploadPollInterval
}

func osHostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown-host"
	}
	return name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func newLogger(flags *runFlags) (*utils.StructuredLogger, error) {
	cfg := utils.DefaultStructuredLoggerConfig()
	cfg.Output = os.Stdout

	switch strings.ToLower(flags.logLevel) {
	case "debug":
		cfg.Level = utils.DEBUG
	case "warn":
		cfg.Level = utils.WARN
	case "error":
		cfg.Level = utils.ERROR
	default:
		cfg.Level = utils.INFO
	}

	if strings.ToLower(flags.logFormat) == "json" {
		cfg.Format = utils.FormatJSON
	}

	if flags.logFile != "" {
		cfg.Rotation = &utils.RotationConfig{
			Filename:   flags.logFile,
			MaxSize:    flags.logMaxSizeMB,
			MaxBackups: flags.logMaxBackups,
			Compress:   true,
		}
	}

	return utils.NewStructuredLogger(cfg)
}
