// Package cli implements the molforge command-line front end.  It hosts the
// Generation Orchestrator and talks to the API server through pkg/client.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/turtacn/MolForge/internal/application/generation"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/pkg/client"
	"github.com/turtacn/MolForge/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// DefaultServerAddr is used when neither --server nor MOLFORGE_SERVER is set.
const DefaultServerAddr = "http://localhost:8080"

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Verbose      bool
	NoColor      bool
	Timeout      time.Duration
	ServerAddr   string
	Token        string
	DepictURL    string
}

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	Logger       logging.Logger
	Client       *client.Client
	Generator    generation.Generator
	History      generation.HistoryStore
	Renderer     StructureRenderer
	Session      generation.Session
	OutputFormat string
	Verbose      bool
	NoColor      bool
}

// NewRootCommand creates the root cobra command with all global flags and subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "molforge",
		Short: "MolForge CLI: AI-driven candidate molecule generation",
		Long: "MolForge requests candidate molecules from a hosted generation model through\n" +
			"the MolForge API server, renders them as structure depictions and keeps a\n" +
			"per-user history of every generation.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./molforge.yaml)")
	pf.StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, json, table)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose output")
	pf.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	pf.DurationVar(&opts.Timeout, "timeout", 90*time.Second, "per-request timeout")
	pf.StringVar(&opts.ServerAddr, "server", "", "API server address (default: "+DefaultServerAddr+")")
	pf.StringVar(&opts.Token, "token", "", "bearer token identifying the user; history is kept only when set")
	pf.StringVar(&opts.DepictURL, "depict-url", "", "CDK Depict base URL (default: "+DefaultDepictURL+")")

	cmd.AddCommand(
		NewGenerateCmd(),
		NewHistoryCmd(),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return PrintResult(cmd, map[string]string{
				"version":   Version,
				"commit":    GitCommit,
				"buildDate": BuildDate,
			})
		},
	}
}

// persistentPreRun resolves settings, builds the logger and client, then
// stores the CLIContext on the command.
func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	v, err := initConfig(cmd, opts)
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}
	opts.ServerAddr = v.GetString("server")
	opts.Token = v.GetString("token")
	opts.DepictURL = v.GetString("depict-url")
	opts.OutputFormat = v.GetString("output")
	opts.LogLevel = v.GetString("log-level")
	opts.NoColor = v.GetBool("no-color") || os.Getenv("NO_COLOR") != ""
	if t := v.GetDuration("timeout"); t > 0 {
		opts.Timeout = t
	}

	logger, err := initLogger(opts)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}

	apiClient, err := initClient(opts, logger)
	if err != nil {
		return err
	}

	session := SessionFromToken(opts.Token)
	if opts.Token != "" && !session.Authenticated() {
		logger.Warn("token has no subject, continuing anonymously")
	}

	cliCtx := &CLIContext{
		Logger:       logger,
		Client:       apiClient,
		Generator:    NewAPIGenerator(apiClient),
		History:      NewAPIHistoryStore(apiClient),
		Renderer:     NewCDKDepict(opts.DepictURL),
		Session:      session,
		OutputFormat: opts.OutputFormat,
		Verbose:      opts.Verbose,
		NoColor:      opts.NoColor,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cliCtx))
	return nil
}

// initConfig layers settings with priority flags > MOLFORGE_* env > file.
// The file is --config when given, else the first of ./molforge.yaml,
// ~/.molforge/config.yaml and /etc/molforge/config.yaml that exists.
func initConfig(cmd *cobra.Command, opts *RootOptions) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("MOLFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("server", DefaultServerAddr)
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	path := opts.ConfigPath
	if path == "" {
		path = findConfigFile()
	}
	if path == "" {
		return v, nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return v, nil
}

func findConfigFile() string {
	searchPaths := []string{"./molforge.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".molforge", "config.yaml"))
	}
	searchPaths = append(searchPaths, "/etc/molforge/config.yaml")

	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// initLogger creates a console logger writing to stderr so that stdout only
// carries command output.
func initLogger(opts *RootOptions) (logging.Logger, error) {
	level, err := logging.ParseLevel(opts.LogLevel)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		level = logging.LevelDebug
	}
	return logging.NewLogger(logging.LogConfig{
		Level:            level,
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
}

// sdkLogger adapts logging.Logger to the SDK's printf-style logger.
type sdkLogger struct{ l logging.Logger }

func (s sdkLogger) Debugf(format string, args ...interface{}) { s.l.Debug(fmt.Sprintf(format, args...)) }
func (s sdkLogger) Infof(format string, args ...interface{})  { s.l.Info(fmt.Sprintf(format, args...)) }
func (s sdkLogger) Errorf(format string, args ...interface{}) { s.l.Error(fmt.Sprintf(format, args...)) }

// initClient creates the API client.  The token is attached per call from
// the session, not here.
func initClient(opts *RootOptions, logger logging.Logger) (*client.Client, error) {
	addr := opts.ServerAddr
	if addr == "" {
		addr = DefaultServerAddr
	}
	return client.NewClient(addr,
		client.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
		client.WithLogger(sdkLogger{l: logger.Named("sdk")}),
		client.WithUserAgent("molforge-cli/"+Version),
	)
}

// GetCLIContext extracts CLIContext from a cobra command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.InvalidParam("command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.InvalidParam("CLIContext not found in command context")
	}
	return cliCtx, nil
}

// WithCLIContext returns ctx carrying cliCtx, for running a subcommand
// without the root command.
func WithCLIContext(ctx context.Context, cliCtx *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cliCtx)
}

// Execute is the main entry point for the CLI application.
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Output helpers
// ─────────────────────────────────────────────────────────────────────────────

// PrintResult outputs data in the format specified by CLIContext.
func PrintResult(cmd *cobra.Command, data interface{}) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return printJSON(cmd, data)
	}

	switch strings.ToLower(cliCtx.OutputFormat) {
	case "json":
		return printJSON(cmd, data)
	case "table":
		return printTable(cmd, data)
	default:
		return printText(cmd, data)
	}
}

func printJSON(cmd *cobra.Command, data interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func printText(cmd *cobra.Command, data interface{}) error {
	switch v := data.(type) {
	case string:
		fmt.Fprintln(cmd.OutOrStdout(), v)
	case fmt.Stringer:
		fmt.Fprintln(cmd.OutOrStdout(), v.String())
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", v)
	}
	return nil
}

// tableProvider is implemented by results that know their tabular form.
type tableProvider interface {
	TableHeaders() []string
	TableRows() [][]string
}

func printTable(cmd *cobra.Command, data interface{}) error {
	if tp, ok := data.(tableProvider); ok {
		fmt.Fprint(cmd.OutOrStdout(), FormatTable(tp.TableHeaders(), tp.TableRows()))
		return nil
	}
	return printText(cmd, data)
}

// PrintError writes a formatted error message to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.IsUnauthorized() {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s (check --token or MOLFORGE_TOKEN)\n", err.Error())
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
}

// PrintSuccess writes a formatted success message to stdout.
func PrintSuccess(cmd *cobra.Command, msg string) {
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %s\n", msg)
}

// FormatTable renders headers and rows as an aligned ASCII table.
func FormatTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	colWidths := make([]int, len(headers))
	for i, h := range headers {
		colWidths[i] = len(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(colWidths); i++ {
			if len(row[i]) > colWidths[i] {
				colWidths[i] = len(row[i])
			}
		}
	}

	var sb strings.Builder
	for i, h := range headers {
		if i > 0 {
			sb.WriteString("  ")
		}
		sb.WriteString(padRight(h, colWidths[i]))
	}
	sb.WriteString("\n")

	for i, w := range colWidths {
		if i > 0 {
			sb.WriteString("  ")
		}
		sb.WriteString(strings.Repeat("-", w))
	}
	sb.WriteString("\n")

	for _, row := range rows {
		for i := 0; i < len(headers); i++ {
			if i > 0 {
				sb.WriteString("  ")
			}
			val := ""
			if i < len(row) {
				val = row[i]
			}
			sb.WriteString(padRight(val, colWidths[i]))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
