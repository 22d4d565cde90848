package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/report"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/watcher"
)

func (c *cli) watchCommand() *cobra.Command {
	var (
		dirs     []string
		noServer bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Track analyzer reports as they are written",
		Long: `Watch report directories and track every report file (.json, .yaml, .yml)
that is created or rewritten, once writes settle for the debounce delay.

Directories default to watch.reports_dir from the configuration, else the
base directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if len(dirs) == 0 {
				dirs = []string{c.cfg.BaseDir}
				if c.cfg.Watch.ReportsDir != "" {
					dirs = []string{c.cfg.Watch.ReportsDir}
				}
			}

			b, err := c.openBackend(nil)
			if err != nil {
				return err
			}
			defer b.Close()

			handler := &reportHandler{
				ctx:        ctx,
				tracker:    b.tracker,
				withServer: !noServer,
				out:        cmd.OutOrStdout(),
			}
			w, err := watcher.New(watcher.Config{
				Paths:         dirs,
				DebounceDelay: c.cfg.Watch.Debounce,
				FileFilter:    report.IsReportFile,
				Ignore:        b.tracker.ignore.Under(c.cfg.BaseDir),
			}, handler)
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			if err := w.Start(); err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}

			<-ctx.Done()
			log.Info("stopping watcher")
			return w.Stop()
		},
	}
	cmd.Flags().StringSliceVar(&dirs, "dir", nil, "directories to watch (repeatable)")
	cmd.Flags().BoolVar(&noServer, "no-server", false, "ignore server findings in the reports")
	return cmd
}

// reportHandler tracks each changed report as its own analysis.
type reportHandler struct {
	ctx        context.Context
	tracker    *tracker
	withServer bool

	mu  sync.Mutex
	out io.Writer
}

func (h *reportHandler) OnChanges(files map[string]fsnotify.Op) {
	for _, path := range watcher.Changed(files) {
		if h.ctx.Err() != nil {
			return
		}
		summary, err := h.tracker.track(h.ctx, path, h.withServer)
		if err != nil {
			log.WithError(err).WithField("report", path).Error("tracking failed")
			continue
		}
		log.WithFields(logrus.Fields{
			"report":  path,
			"new":     summary.New,
			"matched": summary.Matched,
		}).Debug("report tracked")

		h.mu.Lock()
		printSummaryLine(h.out, path, summary)
		h.mu.Unlock()
	}
}
