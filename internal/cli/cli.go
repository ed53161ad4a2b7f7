package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"airwave.click/internal/config"
	airfs "airwave.click/internal/fs"
	"airwave.click/internal/sink"
	"airwave.click/internal/tracking"
)

const Version = "0.4.0"

// CLI represents the command-line interface
type CLI struct {
	rootCmd          *cobra.Command
	fs               afero.Fs
	configManager    *config.ConfigManager
	sinkFactory      *sink.Factory
	terminalDetector TerminalDetector
	trackingDB       *sql.DB // optional, nil when tracking is off or failed to open
}

// NewCLI creates a CLI on the OS filesystem
func NewCLI() *CLI {
	return NewCLIWithFilesystem(airfs.NewDefaultFactory().Production())
}

// NewCLIWithFilesystem creates a CLI whose config, local streams and recordings live on fs
func NewCLIWithFilesystem(fs afero.Fs) *CLI {
	slog.Debug("creating new CLI instance")

	rootCmd := &cobra.Command{
		Use:   "airwave [url-or-path]",
		Short: "Streaming MP3 player",
		Long: "Airwave plays MP3 files and HTTP streams through a small cooperative engine, " +
			"reconnecting dropped streams and recording sessions for later inspection.",
		Args:          cobra.MaximumNArgs(1),
		RunE:          runPlayE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to config file")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")

	f := rootCmd.Flags()
	f.String("volume", "", "Set volume (0.0 to 1.0)")
	f.String("sink", "", "Output sink (auto, malgo, command, wav, discard)")
	f.String("command", "", "Player command for the command sink")
	f.String("record", "", "Also record the decoded audio to this WAV file")
	f.Bool("silent", false, "Decode in real time without audio output")
	f.String("format", "", "Force the stream format instead of detecting it")
	f.Int("ring-size", -1, "Prefetch ring buffer size in bytes, 0 disables it")
	f.Int("buffer-size", 0, "Decoder staging buffer size in bytes")
	f.Int("reconnect-tries", -1, "Reconnect attempts after a stream drops")
	f.Duration("reconnect-delay", 0, "Delay between reconnect attempts")
	f.Duration("duration", 0, "Stop after this much playback")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	f.BoolP("version", "v", false, "Show version information")

	rootCmd.AddCommand(newEventsCommand())
	rootCmd.AddCommand(newSessionsCommand())
	rootCmd.AddCommand(newSinksCommand())
	rootCmd.AddCommand(newVersionCommand())

	return &CLI{
		rootCmd:     rootCmd,
		fs:          fs,
		sinkFactory: sink.NewFactory(fs),
	}
}

type cliContextKey struct{}

// contextWithCLI stores the CLI instance for command handlers
func contextWithCLI(ctx context.Context, cli *CLI) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cli)
}

// cliFromContext extracts the CLI instance from the context
func cliFromContext(ctx context.Context) *CLI {
	if cli, ok := ctx.Value(cliContextKey{}).(*CLI); ok {
		return cli
	}
	return nil
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "airwave version %s\n", Version)
}

// Run executes the CLI with args (program name first) and returns the exit code
func (c *CLI) Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return c.RunContext(context.Background(), args, stdin, stdout, stderr)
}

// RunContext is Run with a parent context; cancelling it stops playback
func (c *CLI) RunContext(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	slog.Debug("CLI run started", "args", args)

	// Version needs no config or tracking
	if len(args) > 1 && (args[1] == "--version" || args[1] == "-v") {
		printVersion(stdout)
		return 0
	}

	if c.configManager == nil {
		c.configManager = config.NewConfigManagerWithFilesystem(c.fs)
	}
	defer c.closeTracking()

	c.rootCmd.SetArgs(args[1:])
	c.rootCmd.SetIn(stdin)
	c.rootCmd.SetOut(stdout)
	c.rootCmd.SetErr(stderr)
	c.rootCmd.SetContext(contextWithCLI(ctx, c))

	if err := c.rootCmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		slog.Error("command failed", "error", err)
		return 1
	}
	return 0
}

// loadAndValidateConfig loads the config file, then applies environment and flag
// overrides in that order, and validates the result
func loadAndValidateConfig(cmd *cobra.Command, cli *CLI) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = cli.configManager.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		cfg, err = cli.configManager.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	cfg = cli.configManager.ApplyEnvironmentOverrides(cfg)

	if err := applyFlagOverrides(cmd, cfg); err != nil {
		return nil, err
	}

	if err := cli.configManager.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	// Subcommands only share the persistent flags
	if flags.Lookup("volume") == nil {
		return nil
	}

	if s, _ := flags.GetString("volume"); s != "" {
		vol, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid volume value '%s': %w", s, err)
		}
		if vol < 0.0 || vol > 1.0 {
			return fmt.Errorf("volume must be between 0.0 and 1.0, got %g", vol)
		}
		cfg.Volume = vol
		slog.Debug("volume override applied", "value", vol)
	}
	if s, _ := flags.GetString("sink"); s != "" {
		cfg.Sink = s
	}
	if s, _ := flags.GetString("command"); s != "" {
		cfg.Command = s
	}
	if s, _ := flags.GetString("metrics-addr"); s != "" {
		cfg.MetricsAddr = s
	}
	if n, _ := flags.GetInt("ring-size"); n >= 0 {
		cfg.RingBufferSize = n
	}
	if n, _ := flags.GetInt("buffer-size"); n > 0 {
		cfg.BufferSize = n
	}
	if n, _ := flags.GetInt("reconnect-tries"); n >= 0 {
		cfg.ReconnectTries = n
	}
	if d, _ := flags.GetDuration("reconnect-delay"); d > 0 {
		cfg.ReconnectDelayMs = int(d / time.Millisecond)
	}
	return nil
}

// initializeTracking opens the tracking database. Failures leave tracking off.
func (c *CLI) initializeTracking(cfg *config.Config) {
	if c.trackingDB != nil {
		return
	}
	if cfg.Tracking == nil || !cfg.Tracking.Enabled {
		slog.Debug("tracking disabled, skipping database initialization")
		return
	}

	dbPath := c.configManager.ResolveDatabasePath(cfg.Tracking)
	db, err := tracking.NewDatabase(dbPath)
	if err != nil {
		slog.Error("failed to initialize tracking database, continuing without tracking",
			"path", dbPath, "error", err)
		return
	}
	c.trackingDB = db
	slog.Debug("tracking database initialized", "path", dbPath)
}

func (c *CLI) closeTracking() {
	if c.trackingDB == nil {
		return
	}
	if err := c.trackingDB.Close(); err != nil {
		slog.Error("error closing tracking database", "error", err)
	}
	c.trackingDB = nil
}

// requireCLI is the first call of every RunE
func requireCLI(cmd *cobra.Command) (*CLI, error) {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		slog.Error("CLI instance not found in context")
		return nil, fmt.Errorf("CLI instance not found in context")
	}
	return cli, nil
}
