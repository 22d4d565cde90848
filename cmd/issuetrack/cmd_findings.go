package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/SonarSource/sonarlint-core-sub018/pkg/store"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/tracking"
)

// filterFlags are the known-finding filters shared by list, search and stats.
type filterFlags struct {
	allScopes bool
	file      string
	category  string
	rule      string
	limit     int
	asJSON    bool
}

func (f *filterFlags) register(fs *pflag.FlagSet, defaultLimit int) {
	fs.BoolVar(&f.allScopes, "all-scopes", false, "include every configuration scope")
	fs.StringVar(&f.file, "file", "", "filter by file path (substring)")
	fs.StringVar(&f.category, "category", "", "filter by category: issue, hotspot")
	fs.StringVar(&f.rule, "rule", "", "filter by rule key")
	if defaultLimit > 0 {
		fs.IntVar(&f.limit, "limit", defaultLimit, "maximum results (-1 for no limit)")
	}
	fs.BoolVar(&f.asJSON, "json", false, "output as JSON")
}

func (f *filterFlags) options(scope string) (store.ListOptions, error) {
	opts := store.ListOptions{
		FilePath: f.file,
		RuleKey:  f.rule,
		Limit:    f.limit,
	}
	if !f.allScopes {
		opts.Scope = scope
	}
	if f.category != "" {
		cat, err := tracking.ParseCategory(f.category)
		if err != nil {
			return opts, err
		}
		opts.Category = cat
	}
	return opts, nil
}

func (c *cli) listCommand() *cobra.Command {
	var f filterFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known findings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := f.options(c.cfg.Scope)
			if err != nil {
				return err
			}
			b, err := c.openBackend(nil)
			if err != nil {
				return err
			}
			defer b.Close()

			records, err := b.store.ListKnownFindings(opts)
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}
			if f.asJSON {
				return printJSON(cmd.OutOrStdout(), records)
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No known findings")
				return nil
			}
			return printRecords(cmd.OutOrStdout(), records)
		},
	}
	f.register(cmd.Flags(), store.DefaultListLimit)
	return cmd
}

func (c *cli) searchCommand() *cobra.Command {
	var f filterFlags
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over known findings",
		Long: `Search the messages and rule keys of known findings. The query supports
the bleve query string syntax, e.g. "password", "+ruleKey:go:S2068" or "msg*".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.options(c.cfg.Scope)
			if err != nil {
				return err
			}
			b, err := c.openBackend(nil)
			if err != nil {
				return err
			}
			defer b.Close()

			results, err := b.store.SearchKnownFindings(strings.Join(args, " "), opts)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if f.asJSON {
				return printJSON(cmd.OutOrStdout(), results)
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No known findings")
				return nil
			}
			records := make([]*store.Record, len(results))
			for i, r := range results {
				records[i] = r.Record
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Found %d known findings:\n", len(records))
			return printRecords(cmd.OutOrStdout(), records)
		},
	}
	f.register(cmd.Flags(), store.DefaultSearchLimit)
	return cmd
}

func (c *cli) showCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one known finding of the current scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := c.openBackend(nil)
			if err != nil {
				return err
			}
			defer b.Close()

			r, err := b.store.GetKnownFinding(c.cfg.Scope, args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no known finding %s in scope %s", args[0], c.cfg.Scope)
			}
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), r)
			}

			out := cmd.OutOrStdout()
			bold := color.New(color.Bold).SprintFunc()
			fmt.Fprintf(out, "%s %s\n", bold("ID:        "), r.ID)
			fmt.Fprintf(out, "%s %s\n", bold("Location:  "), location(r.FilePath, r.Line()))
			fmt.Fprintf(out, "%s %s\n", bold("Category:  "), r.Category)
			fmt.Fprintf(out, "%s %s\n", bold("Rule:      "), r.RuleKey)
			fmt.Fprintf(out, "%s %s\n", bold("Message:   "), r.Message)
			fmt.Fprintf(out, "%s %s\n", bold("Introduced:"), r.IntroductionDate.Local().Format(dateLayout))
			if r.ServerKey != "" {
				fmt.Fprintf(out, "%s %s\n", bold("Server key:"), r.ServerKey)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func (c *cli) statsCommand() *cobra.Command {
	var f filterFlags
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show known finding counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := f.options(c.cfg.Scope)
			if err != nil {
				return err
			}
			b, err := c.openBackend(nil)
			if err != nil {
				return err
			}
			defer b.Close()

			stats, err := b.store.Stats(opts)
			if err != nil {
				return fmt.Errorf("stats failed: %w", err)
			}
			if f.asJSON {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			fmt.Fprint(cmd.OutOrStdout(), formatStats(stats))
			return nil
		},
	}
	f.register(cmd.Flags(), 0)
	return cmd
}

func formatStats(stats *store.Stats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Known findings: %d in %d files\n", stats.Total, stats.Files)
	if len(stats.ByCategory) > 0 {
		sb.WriteString("\nBy category:\n")
		for _, cat := range sortedCounts(stats.ByCategory) {
			fmt.Fprintf(&sb, "  %-24s %d\n", cat, stats.ByCategory[cat])
		}
	}
	if len(stats.ByRule) > 0 {
		sb.WriteString("\nBy rule:\n")
		for _, rule := range sortedCounts(stats.ByRule) {
			fmt.Fprintf(&sb, "  %-24s %d\n", rule, stats.ByRule[rule])
		}
	}
	return sb.String()
}

func (c *cli) clearCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget known findings of the current scope (or all with --all)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := c.openBackend(nil)
			if err != nil {
				return err
			}
			defer b.Close()

			if all {
				if err := b.store.Clear(); err != nil {
					return fmt.Errorf("clear failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cleared all known findings")
				return nil
			}
			n, err := b.store.ClearScope(c.cfg.Scope)
			if err != nil {
				return fmt.Errorf("clear failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d known findings of scope %s\n", n, c.cfg.Scope)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "clear every scope")
	return cmd
}
