package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"txmb/internal/config"
	"txmb/internal/submission"
	"txmb/internal/table"
	"txmb/internal/taxonomy"

	"github.com/charmbracelet/log"
)

// version is the program version. It can be overridden at build time with -ldflags "-X main.version=..."
var version = "0.1.0"

// timestampWriter prefixes each flushed line with an RFC3339 timestamp.
type timestampWriter struct {
	w   io.Writer
	buf bytes.Buffer
	mu  sync.Mutex
}

// Write buffers bytes until a newline is found; for each full line, write a timestamped
// line to the underlying writer. Partial lines are kept in the buffer.
func (t *timestampWriter) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, _ := t.buf.Write(p)
	total := n
	for {
		line, err := t.buf.ReadString('\n')
		if err != nil {
			break
		}
		ts := time.Now().Format(time.RFC3339)
		if _, err := t.w.Write([]byte(ts + " " + line)); err != nil {
			return total, err
		}
	}
	return total, nil
}

// terminalWriter wraps an io.Writer and exposes an Fd method so libraries that
// inspect the file descriptor (for TTY detection) can work with wrapped writers.
type terminalWriter struct {
	w  io.Writer
	fd uintptr
}

func (tw *terminalWriter) Write(p []byte) (int, error) { return tw.w.Write(p) }

// Fd exposes the underlying file descriptor (e.g., os.Stderr.Fd()).
func (tw *terminalWriter) Fd() uintptr { return tw.fd }

func main() {
	// CLI flags
	manifestFlag := flag.String("manifest", "", "manifest (metadata record) file to validate")
	configFlag := flag.String("config", "", "path to config.json (optional)")
	reportDirFlag := flag.String("report-dir", "", "directory to write the error report into")
	offlineFlag := flag.Bool("offline", false, "skip taxonomy lookups (submission treated as having no internet access)")
	verbose := flag.Bool("verbose", false, "enable verbose (debug) logging")
	versionFlag := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println("txmb", version)
		return
	}

	// load config (optional file)
	cfg, err := config.LoadConfig(*configFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "could not parse config:", err)
		os.Exit(2)
	}

	// merge CLI flags into config (flags override config when provided)
	if *manifestFlag != "" {
		cfg.Manifest = *manifestFlag
	}
	if *reportDirFlag != "" {
		cfg.ReportDir = *reportDirFlag
	}
	if *offlineFlag {
		cfg.Offline = true
	}

	if cfg.Manifest == "" {
		fmt.Fprintln(os.Stderr, "usage: txmb -manifest <file> [-config config.json] [-report-dir DIR] [-offline]")
		os.Exit(2)
	}

	// configure logger output
	var loggerOut io.Writer = os.Stderr
	var logFileHandle *os.File
	if cfg.LogFile != "" {
		if f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			// write to both stderr and file so running interactively still shows logs
			loggerOut = io.MultiWriter(os.Stderr, f)
			logFileHandle = f
			defer func() { _ = logFileHandle.Close() }()
		}
	}
	// If stderr is a terminal-like device, force colors for libraries that honor FORCE_COLOR.
	if fi, err := os.Stderr.Stat(); err == nil {
		if fi.Mode()&os.ModeCharDevice != 0 {
			_ = os.Setenv("FORCE_COLOR", "1")
		}
	}
	tw := &timestampWriter{w: loggerOut}
	termW := &terminalWriter{w: tw, fd: os.Stderr.Fd()}
	logger := log.New(termW)

	// apply log level from flags/config (flags override config)
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		switch strings.ToLower(cfg.LogLevel) {
		case "debug":
			logger.SetLevel(log.DebugLevel)
		case "info", "":
			logger.SetLevel(log.InfoLevel)
		case "warn", "warning":
			logger.SetLevel(log.WarnLevel)
		case "error":
			logger.SetLevel(log.ErrorLevel)
		default:
			logger.SetLevel(log.InfoLevel)
			logger.Warn("unknown log_level in config.json, defaulting to info", "provided", cfg.LogLevel)
		}
	}

	logger.Debug("loaded config", "manifest", cfg.Manifest, "report_dir", cfg.ReportDir, "log_file", cfg.LogFile, "log_level", cfg.LogLevel, "offline", cfg.Offline)
	logger.Info("starting txmb", "manifest", cfg.Manifest, "offline", cfg.Offline)

	// apply taxonomy config
	if cfg.TaxonomyCachePath != "" {
		absPath, aerr := filepath.Abs(cfg.TaxonomyCachePath)
		if aerr == nil {
			taxonomy.SetCacheFilePath(absPath)
			logger.Info("taxonomy cache path set from config (absolute)", "path", absPath)
		} else {
			taxonomy.SetCacheFilePath(cfg.TaxonomyCachePath)
			logger.Info("taxonomy cache path set from config", "path", cfg.TaxonomyCachePath)
		}
		defer taxonomy.FlushCache()
	}
	if cfg.TaxonomyCacheTTLSecs > 0 {
		taxonomy.SetCacheTTLSeconds(cfg.TaxonomyCacheTTLSecs)
	}

	var lookup table.Lookup
	if cfg.Offline {
		logger.Warn("offline mode: NCBI taxonomy lookups disabled, rows using NCBI taxonomy will fail the tax ID cross-check")
	} else {
		lookup = &taxonomy.Client{BaseURL: cfg.TaxonomyBaseURL}
	}

	validator := submission.New(lookup, logger)
	result := validator.Validate(context.Background(), cfg.Manifest)

	if result.Valid {
		fmt.Println(result.Summary(""))
		return
	}

	reportPath := submission.ReportFilename(cfg.ReportDir, result.DatasetName)
	if err := submission.WriteReport(reportPath, result.Errors); err != nil {
		logger.Error("could not write report", "path", reportPath, "err", err)
		for _, msg := range result.Errors {
			fmt.Fprintln(os.Stderr, "ERROR:", msg)
		}
	} else {
		logger.Info("wrote report", "path", reportPath, "errors", len(result.Errors))
	}
	fmt.Println("Submission validation failed:", result.Summary(reportPath))
	os.Exit(1)
}
