package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/config"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/httputil"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/ignore"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/report"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/service"
)

func (c *cli) trackCommand() *cobra.Command {
	var (
		asJSON   bool
		noServer bool
		quiet    bool
	)
	cmd := &cobra.Command{
		Use:   "track <report|url>...",
		Short: "Track the findings of one or more analyzer reports",
		Long: `Match the findings of each report against the known findings of the
same files, then store the result as the new known findings.

Reports are JSON or YAML files, or http(s) URLs. Files matched by
.issuetrackignore are left out. Each report is one analysis: a file listed in it
with no finding has its known findings cleared.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			b, err := c.openBackend(nil)
			if err != nil {
				return err
			}
			defer b.Close()

			var summaries []*service.Summary
			for _, path := range args {
				summary, err := b.tracker.track(ctx, path, !noServer)
				if err != nil {
					return err
				}
				summaries = append(summaries, summary)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, summaries)
			}
			for i, summary := range summaries {
				if !quiet {
					if err := printTracked(out, summary); err != nil {
						return err
					}
				}
				printSummaryLine(out, args[i], summary)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output summaries as JSON")
	cmd.Flags().BoolVar(&noServer, "no-server", false, "ignore server findings in the reports")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the summary line")
	return cmd
}

// tracker loads reports from files or URLs and tracks each as one
// analysis.
type tracker struct {
	svc    *service.Service
	cfg    *config.Config
	ignore *ignore.Matcher
	client *httputil.Client
}

func newTracker(svc *service.Service, cfg *config.Config) (*tracker, error) {
	m, err := ignore.New(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("load ignore file: %w", err)
	}
	return &tracker{svc: svc, cfg: cfg, ignore: m, client: httputil.NewClient()}, nil
}

func (t *tracker) load(ctx context.Context, source string) (*report.Report, error) {
	if httputil.IsURL(source) {
		return report.Fetch(ctx, t.client, source)
	}
	return report.Load(source)
}

func (t *tracker) track(ctx context.Context, source string, withServer bool) (*service.Summary, error) {
	rep, err := t.load(ctx, source)
	if err != nil {
		return nil, err
	}
	if !withServer {
		rep.DropServerFindings()
	}
	summary, err := t.Track(ctx, t.cfg.Scope, rep)
	if err != nil {
		return nil, fmt.Errorf("track %s: %w", source, err)
	}
	return summary, nil
}

// Track drops ignored files, and server findings unless enabled, then tracks
// rep as one analysis of scope.
func (t *tracker) Track(ctx context.Context, scope string, rep *report.Report) (*service.Summary, error) {
	if !t.cfg.ServerFindings && rep.HasServerFindings() {
		log.Debug("server findings dropped, server_findings is off")
		rep.DropServerFindings()
	}
	ignored := t.ignore.Under(t.cfg.BaseDir)
	if n := rep.Filter(func(path string) bool { return ignored(path, false) }); n > 0 {
		log.WithField("files", n).Debug("ignored files dropped")
	}
	return t.svc.TrackBatch(ctx, scope, rep)
}

// Running returns the ids of the analyses in flight.
func (t *tracker) Running() []string {
	return t.svc.Running()
}

func printSummaryLine(w io.Writer, source string, s *service.Summary) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "%s: %d files, %s new, %s matched", source, s.Files,
		yellow(s.New), green(s.Matched))
	if s.ServerMatched > 0 {
		fmt.Fprintf(w, ", %d matched on server", s.ServerMatched)
	}
	if s.LocalOnlyMatched > 0 {
		fmt.Fprintf(w, ", %d matched local-only", s.LocalOnlyMatched)
	}
	if s.Skipped > 0 {
		fmt.Fprintf(w, ", %s", gray(fmt.Sprintf("%d without file skipped", s.Skipped)))
	}
	fmt.Fprintf(w, " %s\n", gray("("+s.Duration.Round(1_000_000).String()+")"))
}
