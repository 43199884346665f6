package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/fiberplane/fpx-sub000/pkg/locator"
	"github.com/fiberplane/fpx-sub000/pkg/resolve"
	"github.com/fiberplane/fpx-sub000/pkg/util"
	"github.com/fiberplane/fpx-sub000/pkg/workspace"
)

// cli carries the state shared by all commands of one invocation.
type cli struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	v          *viper.Viper
	configFile string
	logger     *slog.Logger
	tp         *sdktrace.TracerProvider
}

func newCLI(in io.Reader, out, errOut io.Writer) *cli {
	return &cli{
		in:     in,
		out:    out,
		errOut: errOut,
		v:      viper.New(),
		logger: util.DiscardLogger(),
	}
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "fpx-locate",
		Short: "Locate the source of Hono route handlers",
		Long: `fpx-locate statically finds the function that handles a route of a Hono
application, in plain sources or in esbuild/webpack bundles.

Examples:
  fpx-locate route dist/index.js --method GET --path /users/42
  fpx-locate handler src --name createUser
  fpx-locate routes src
  fpx-locate serve --root . --watch`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup()
		},
	}
	root.SetIn(c.in)
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&c.configFile, "config", "", "config file (default .fpx-locate.yaml in the working directory)")
	pf.String("root", ".", "workspace root; relative paths and snapshot keys are resolved against it")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("log-format", "", "log format: text or json")
	pf.String("signatures", "", "YAML file extending the router, wrapper and loader allow-list")
	pf.Bool("rank-by-wrap-depth", false, "prefer the handler reached through the fewest wrappers")
	pf.Bool("json", false, "print results as JSON")
	pf.Bool("trace", false, "print OpenTelemetry spans to stderr")
	pf.Bool("no-color", false, "disable colored output")

	for key, flag := range map[string]string{
		"root":               "root",
		"log.level":          "log-level",
		"log.format":         "log-format",
		"signatures":         "signatures",
		"rank_by_wrap_depth": "rank-by-wrap-depth",
		"json":               "json",
		"trace":              "trace",
		"no_color":           "no-color",
	} {
		cobra.CheckErr(c.v.BindPFlag(key, pf.Lookup(flag)))
	}

	root.AddCommand(
		c.routeCommand(),
		c.handlerCommand(),
		c.routesCommand(),
		c.serveCommand(),
		c.callsCommand(),
		c.setupCommand(),
		c.versionCommand(),
	)
	return root
}

// setup loads configuration and installs logging and tracing.
func (c *cli) setup() error {
	if c.configFile != "" {
		c.v.SetConfigFile(c.configFile)
	} else {
		c.v.SetConfigName(".fpx-locate")
		c.v.SetConfigType("yaml")
		c.v.AddConfigPath(".")
	}
	c.v.SetEnvPrefix("FPX_LOCATE")
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	c.v.AutomaticEnv()

	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if c.configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	logCfg, err := util.ParseLoggerConfig(c.v.GetString("log.level"), c.v.GetString("log.format"), c.errOut)
	if err != nil {
		return err
	}
	c.logger = util.NewLogger(logCfg)

	if c.v.GetBool("no_color") {
		color.NoColor = true
	}

	if c.v.GetBool("trace") {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(c.errOut), stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create trace exporter: %w", err)
		}
		c.tp = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		otel.SetTracerProvider(c.tp)
	}

	if c.configFile != "" || c.v.ConfigFileUsed() != "" {
		c.logger.Debug("loaded config", "file", c.v.ConfigFileUsed())
	}
	return nil
}

// shutdown flushes the trace exporter, if any.
func (c *cli) shutdown() error {
	if c.tp == nil {
		return nil
	}
	return c.tp.Shutdown(context.Background())
}

func (c *cli) jsonOutput() bool {
	return c.v.GetBool("json")
}

func (c *cli) root() string {
	root := c.v.GetString("root")
	if root == "" {
		return "."
	}
	return root
}

// locatorConfig builds the locator configuration from flags, environment
// and the config file.
func (c *cli) locatorConfig() (locator.Config, error) {
	sigs, err := resolve.LoadSignatures(c.v.GetString("signatures"))
	if err != nil {
		return locator.Config{}, err
	}

	cfg := locator.DefaultConfig()
	cfg.Signatures = sigs
	cfg.RankByWrapDepth = c.v.GetBool("rank_by_wrap_depth")
	if n := c.v.GetInt("max_hops"); n > 0 {
		cfg.MaxHops = n
	}
	if n := c.v.GetInt("cache_size"); n > 0 {
		cfg.CacheSize = n
	}
	cfg.Logger = c.logger
	return cfg, nil
}

// workspaceConfig returns the default globs overridden by the `workspace`
// section of the config file.
func (c *cli) workspaceConfig() (workspace.Config, error) {
	cfg := workspace.DefaultConfig()
	if c.v.IsSet("workspace") {
		var override workspace.Config
		if err := c.v.UnmarshalKey("workspace", &override); err != nil {
			return cfg, fmt.Errorf("invalid workspace config: %w", err)
		}
		if override.Include != nil {
			cfg.Include = override.Include
		}
		if override.Exclude != nil {
			cfg.Exclude = override.Exclude
		}
		if override.DebounceMs > 0 {
			cfg.DebounceMs = override.DebounceMs
		}
	}
	return cfg, cfg.Validate()
}

// newLocator creates a locator and a file cache for one command.
func (c *cli) newLocator() (*locator.Locator, util.FileCache, error) {
	cfg, err := c.locatorConfig()
	if err != nil {
		return nil, nil, err
	}
	loc, err := locator.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	fcCfg := util.DefaultFileCacheConfig()
	fcCfg.Logger = c.logger
	return loc, util.NewFileCache(fcCfg), nil
}

// snapshot loads the files and directories named by paths. With no paths
// the workspace root is loaded.
func (c *cli) snapshot(paths []string, files util.FileCache) (locator.Snapshot, error) {
	wsCfg, err := c.workspaceConfig()
	if err != nil {
		return locator.Snapshot{}, err
	}

	root := c.root()
	if len(paths) == 0 {
		paths = []string{"."}
	}
	resolved := make([]string, len(paths))
	for i, p := range paths {
		if filepath.IsAbs(p) {
			resolved[i] = p
		} else {
			resolved[i] = filepath.Join(root, p)
		}
	}

	list, err := workspace.Collect(resolved, wsCfg)
	if err != nil {
		return locator.Snapshot{}, err
	}
	if len(list) == 0 {
		return locator.Snapshot{}, fmt.Errorf("no source files found in %s", strings.Join(paths, ", "))
	}
	c.logger.Debug("loading snapshot", "files", len(list), "root", root)
	return workspace.Load(list, root, files)
}

func (c *cli) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(c.out, "fpx-locate %s\n", version)
		},
	}
}
