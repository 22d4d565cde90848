// Package main provides the issuetrack CLI: it tracks analyzer findings
// across runs so each finding keeps its identity and introduction date.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/SonarSource/sonarlint-core-sub018/internal/version"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/blame"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/config"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/service"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/store"
)

var log = logrus.WithField("component", "cli")

// cli holds the global flags and the configuration resolved from them.
type cli struct {
	baseDir     string
	dataDir     string
	scope       string
	logLevel    string
	concurrency int

	cfg *config.Config
}

func main() {
	c := &cli{}
	if err := c.rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           version.ApplicationName,
		Short:         "Track analyzer findings across runs",
		Long:          "issuetrack matches the findings of each analyzer run against the findings it already knows, so a finding keeps its id and introduction date while the code around it moves.",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.baseDir, "base-dir", "", "project root (default: git worktree root or working directory)")
	flags.StringVar(&c.dataDir, "data-dir", "", "data directory (default: <base-dir>/.issuetrack)")
	flags.StringVar(&c.scope, "scope", "", "configuration scope the findings belong to")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.IntVar(&c.concurrency, "concurrency", 0, "files tracked in parallel")

	root.AddCommand(
		c.trackCommand(),
		c.listCommand(),
		c.searchCommand(),
		c.showCommand(),
		c.statsCommand(),
		c.clearCommand(),
		c.localOnlyCommand(),
		c.resolveCommand(),
		c.watchCommand(),
		c.mcpCommand(),
		c.serveCommand(),
		versionCommand(),
	)
	return root
}

// load resolves the configuration; flags set on the command line win.
func (c *cli) load(cmd *cobra.Command) error {
	overrides := map[string]any{}
	set := func(flag, key string, value any) {
		if cmd.Flags().Changed(flag) {
			overrides[key] = value
		}
	}
	set("data-dir", "data_dir", c.dataDir)
	set("scope", "scope", c.scope)
	set("log-level", "log_level", c.logLevel)
	set("concurrency", "concurrency", c.concurrency)

	cfg, err := config.Load(c.baseDir, overrides)
	if err != nil {
		return err
	}
	c.cfg = cfg
	return setupLogging(cfg.LogLevel)
}

// setupLogging sends logs to stderr; stdout carries command output and, for
// the mcp command, the protocol.
func setupLogging(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return nil
}

// backend bundles the store with the report tracker built on it.
type backend struct {
	store   *store.BoltKnownFindingsStore
	tracker *tracker
}

func (c *cli) openBackend(reporter service.Reporter) (*backend, error) {
	st, err := store.NewKnownFindingsStore(c.cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	opts := []service.Option{service.WithConcurrency(c.cfg.Concurrency)}
	if reporter != nil {
		opts = append(opts, service.WithReporter(reporter))
	}
	svc := service.New(st, blame.New(c.cfg.BaseDir), opts...)
	t, err := newTracker(svc, c.cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &backend{store: st, tracker: t}, nil
}

func (b *backend) Close() error {
	return b.store.Close()
}

func versionCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		// No configuration needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			if asJSON {
				fmt.Fprintln(cmd.OutOrStdout(), version.JSON())
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
