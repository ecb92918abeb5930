package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	rlog "github.com/recomma/dexfixture/log"
	"github.com/recomma/dexfixture/pkg/auditlog"
)

type AppConfig struct {
	ConfigPath     string
	FixturesPath   string
	Market         string
	Owner          string
	StartIndex     int
	CandidatesPath string
	OutPath        string
	DisablePatches bool
	AuditDB        string
	AuditSession   string
	OrderID        string

	LogLevel      string
	LogFormatJSON bool
	LogFile       string
	LogGroups     []string
}

func DefaultConfig() AppConfig {
	return AppConfig{
		Market:   "BTC/USDC",
		LogLevel: "info",
	}
}

// NewConfigFlagSet declares the flags against the provided struct but does not parse.
func NewConfigFlagSet(cfg *AppConfig) *pflag.FlagSet {
	fs := pflag.NewFlagSet("dexfixture", pflag.ContinueOnError)
	fs.SortFlags = false

	fs.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "Session config TOML file (env: DEXFIXTURE_CONFIG)")
	fs.StringVar(&cfg.FixturesPath, "fixtures", cfg.FixturesPath, "Fixture dataset, SQLite or YAML; embedded default when empty (env: DEXFIXTURE_FIXTURES)")
	fs.StringVar(&cfg.Market, "market", cfg.Market, "Market name (env: DEXFIXTURE_MARKET)")
	fs.StringVar(&cfg.Owner, "owner", cfg.Owner, "Owner address; the session wallet when empty (env: DEXFIXTURE_OWNER)")
	fs.IntVar(&cfg.StartIndex, "start-index", cfg.StartIndex, "First open orders slot (env: DEXFIXTURE_START_INDEX)")
	fs.StringVar(&cfg.CandidatesPath, "candidates", cfg.CandidatesPath, "Candidate orders, YAML or JSON list (env: DEXFIXTURE_CANDIDATES)")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Output SQLite file for export (env: DEXFIXTURE_OUT)")
	fs.BoolVar(&cfg.DisablePatches, "disable-patches", cfg.DisablePatches, "Activate nothing (env: DEXFIXTURE_DISABLE_PATCHES)")
	fs.StringVar(&cfg.AuditDB, "audit-db", cfg.AuditDB, "Record patch activations into this SQLite file (env: DEXFIXTURE_AUDIT_DB)")
	fs.StringVar(&cfg.OrderID, "order-id", cfg.OrderID, "Order id the order-id command decodes (env: DEXFIXTURE_ORDER_ID)")
	fs.StringVar(&cfg.AuditSession, "audit-session", cfg.AuditSession, "Session id the activations command lists; all when empty (env: DEXFIXTURE_AUDIT_SESSION)")

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (env: DEXFIXTURE_LOG_LEVEL)")
	fs.BoolVar(&cfg.LogFormatJSON, "log-json", cfg.LogFormatJSON, "Emit logs as JSON (env: DEXFIXTURE_LOG_JSON)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Also write logs to this rotated file (env: DEXFIXTURE_LOG_FILE)")
	fs.StringSliceVar(&cfg.LogGroups, "log-groups", cfg.LogGroups, "Components to log, -name to mute one (env: DEXFIXTURE_LOG_GROUPS)")

	return fs
}

// ApplyEnvDefaults fills flags that were not given on the command line from
// the environment.
func ApplyEnvDefaults(fs *pflag.FlagSet, cfg *AppConfig) error {
	flagSet := map[string]struct{}{}
	fs.Visit(func(f *pflag.Flag) { flagSet[f.Name] = struct{}{} })

	var errs []string
	setString := func(name, envKey string, target *string) {
		if _, ok := flagSet[name]; ok {
			return
		}
		if v, ok := os.LookupEnv(envKey); ok && v != "" {
			*target = v
		}
	}
	setInt := func(name, envKey string, target *int) {
		if _, ok := flagSet[name]; ok {
			return
		}
		if v, ok := os.LookupEnv(envKey); ok {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", envKey, err))
				return
			}
			*target = parsed
		}
	}
	setBool := func(name, envKey string, target *bool) {
		if _, ok := flagSet[name]; ok {
			return
		}
		if v, ok := os.LookupEnv(envKey); ok {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", envKey, err))
				return
			}
			*target = parsed
		}
	}
	setList := func(name, envKey string, target *[]string) {
		if _, ok := flagSet[name]; ok {
			return
		}
		if v, ok := os.LookupEnv(envKey); ok && v != "" {
			*target = strings.Split(v, ",")
		}
	}

	setString("config", "DEXFIXTURE_CONFIG", &cfg.ConfigPath)
	setString("fixtures", "DEXFIXTURE_FIXTURES", &cfg.FixturesPath)
	setString("market", "DEXFIXTURE_MARKET", &cfg.Market)
	setString("owner", "DEXFIXTURE_OWNER", &cfg.Owner)
	setInt("start-index", "DEXFIXTURE_START_INDEX", &cfg.StartIndex)
	setString("candidates", "DEXFIXTURE_CANDIDATES", &cfg.CandidatesPath)
	setString("out", "DEXFIXTURE_OUT", &cfg.OutPath)
	setBool("disable-patches", "DEXFIXTURE_DISABLE_PATCHES", &cfg.DisablePatches)
	setString("audit-db", "DEXFIXTURE_AUDIT_DB", &cfg.AuditDB)
	setString("audit-session", "DEXFIXTURE_AUDIT_SESSION", &cfg.AuditSession)
	setString("order-id", "DEXFIXTURE_ORDER_ID", &cfg.OrderID)

	setString("log-level", "DEXFIXTURE_LOG_LEVEL", &cfg.LogLevel)
	setBool("log-json", "DEXFIXTURE_LOG_JSON", &cfg.LogFormatJSON)
	setString("log-file", "DEXFIXTURE_LOG_FILE", &cfg.LogFile)
	setList("log-groups", "DEXFIXTURE_LOG_GROUPS", &cfg.LogGroups)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateConfig checks the flags the command needs.
func ValidateConfig(cfg AppConfig, command string) error {
	var missing []string
	switch command {
	case "ticker":
		if cfg.Market == "" {
			missing = append(missing, "market")
		}
	case "open-orders":
		if cfg.Market == "" {
			missing = append(missing, "market")
		}
		if cfg.StartIndex < 0 {
			return fmt.Errorf("start-index must not be negative, got %d", cfg.StartIndex)
		}
	case "export":
		if cfg.OutPath == "" {
			missing = append(missing, "out")
		}
	case "activations":
		if cfg.AuditDB == "" {
			missing = append(missing, "audit-db")
		}
	case "order-id":
		if cfg.OrderID == "" {
			missing = append(missing, "order-id")
		}
	case "keys":
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

// GetLogHandler builds the stderr handler, fanned out to a rotated file when
// LogFile is set, both filtered by LogGroups. With AuditDB set, activation
// records are also written to that database regardless of level or groups.
// The returned closer flushes and releases everything opened here.
func GetLogHandler(cfg AppConfig) (slog.Handler, io.Closer, error) {
	var level slog.Level
	if cfg.LogLevel == "" {
		level = slog.LevelInfo
	} else if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
		log.Printf("unknown log level %q, defaulting to info", cfg.LogLevel)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	newHandler := func(w io.Writer) slog.Handler {
		if cfg.LogFormatJSON {
			return slog.NewJSONHandler(w, handlerOpts)
		}
		return slog.NewTextHandler(w, handlerOpts)
	}

	var handler slog.Handler = newHandler(os.Stderr)
	var closers closeAll
	if cfg.LogFile != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		handler = rlog.NewMultiHandler(handler, newHandler(file))
		closers = append(closers, file)
	}
	handler = rlog.NewGroupFilterHandler(handler, cfg.LogGroups)

	if cfg.AuditDB != "" {
		sink, err := auditlog.OpenSQLite(context.Background(), cfg.AuditDB)
		if err != nil {
			_ = closers.Close()
			return nil, nil, err
		}
		audit, err := auditlog.NewHandler(sink, auditlog.WithErrorHandler(func(e auditlog.Entry, err error) {
			log.Printf("audit entry for %s dropped: %v", e.Patch, err)
		}))
		if err != nil {
			_ = sink.Close()
			_ = closers.Close()
			return nil, nil, err
		}
		// the handler drains into the sink, so it closes first
		closers = append(closers, closerFunc(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return audit.Close(ctx)
		}), sink)
		handler = rlog.NewMultiHandler(handler, audit)
	}

	return handler, closers, nil
}

// closeAll closes in order and joins the errors.
type closeAll []io.Closer

func (c closeAll) Close() error {
	var errs []error
	for _, closer := range c {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
