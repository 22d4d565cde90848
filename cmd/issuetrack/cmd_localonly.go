package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/store"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking"
)

func (c *cli) localOnlyCommand() *cobra.Command {
	var (
		allScopes bool
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "local-only",
		Short: "List the issues of server-bound files the server does not know",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := c.openBackend(nil)
			if err != nil {
				return err
			}
			defer b.Close()

			scope := c.cfg.Scope
			if allScopes {
				scope = ""
			}
			records, err := b.store.ListLocalOnlyIssues(scope)
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}
			if asJSON {
				if records == nil {
					records = []*store.LocalOnlyRecord{}
				}
				return printJSON(cmd.OutOrStdout(), records)
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No local-only issues")
				return nil
			}
			out := cmd.OutOrStdout()
			gray := color.New(color.FgHiBlack).SprintFunc()
			for _, r := range records {
				state := "open"
				if r.Resolution != nil {
					state = string(r.Resolution.Status)
				}
				fmt.Fprintf(out, "%s  %-14s %-28s %s %s\n", shortID(r.ID), state,
					location(r.FilePath, r.Line()), r.RuleKey, gray(truncate(r.Message, 60)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&allScopes, "all-scopes", false, "include every configuration scope")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func (c *cli) resolveCommand() *cobra.Command {
	var (
		comment string
		reopen  bool
	)
	cmd := &cobra.Command{
		Use:   "resolve <id> [wont-fix|false-positive|accept]",
		Short: "Resolve or reopen a local-only issue of the current scope",
		Long: `Record a resolution for an issue the server does not know. The resolution
follows the issue through later runs, the way a server resolution does.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resolution *tracking.LocalResolution
			switch {
			case reopen && len(args) == 2:
				return errors.New("--reopen takes no status")
			case !reopen && len(args) == 1:
				return errors.New("a status is required unless --reopen is set")
			case !reopen:
				status, err := tracking.ParseResolutionStatus(args[1])
				if err != nil {
					return err
				}
				resolution = &tracking.LocalResolution{Status: status, Date: time.Now().UTC(), Comment: comment}
			}

			b, err := c.openBackend(nil)
			if err != nil {
				return err
			}
			defer b.Close()

			r, err := b.store.ResolveLocalOnlyIssue(c.cfg.Scope, args[0], resolution)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no local-only issue %s in scope %s", args[0], c.cfg.Scope)
			}
			if err != nil {
				return err
			}
			if resolution == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Reopened %s\n", shortID(r.ID))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Resolved %s as %s\n", shortID(r.ID), resolution.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "resolution comment")
	cmd.Flags().BoolVar(&reopen, "reopen", false, "drop the resolution")
	return cmd
}
