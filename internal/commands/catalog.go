package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/FACorreiaa/statement-ledger/cmd/api"
	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
)

func newSeedCommand(flags *globalFlags) *cobra.Command {
	var ruleSet string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default categories and optionally load a shipped rule set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.run(cmd, func(ctx context.Context, deps *api.Dependencies) error {
				created, err := deps.CategorizationService.EnsureDefaults(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "categories: %d created\n", created)

				if ruleSet == "" {
					return nil
				}
				res, err := deps.CategorizationService.SeedRules(ctx, ruleSet)
				if err != nil {
					return err
				}
				printSeedResult(cmd, ruleSet, res)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&ruleSet, "rules", "", fmt.Sprintf("Rule set to import (%s, %s)",
		strings.Join(categorization.RuleSetNames, ", "), categorization.RuleSetAll))
	return cmd
}

func printSeedResult(cmd *cobra.Command, name string, res categorization.SeedResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "rules %s: %d imported, %d skipped\n", name, res.Imported, res.Skipped)
	for _, msg := range res.Errors {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", msg)
	}
}

func newCategoriesCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage categories",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List categories with their transaction counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.run(cmd, func(ctx context.Context, deps *api.Dependencies) error {
				usage, err := deps.CategorizationService.CategoryUsage(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tCOLOR\tTRANSACTIONS")
				for _, u := range usage {
					color := ""
					if u.Color != nil {
						color = *u.Color
					}
					fmt.Fprintf(w, "%s\t%s\t%d\n", u.Name, color, u.TransactionCount)
				}
				return w.Flush()
			})
		},
	}

	var palettePath string
	sync := &cobra.Command{
		Use:   "sync",
		Short: "Create missing palette categories and update their colors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var palette []categorization.PaletteEntry
			if palettePath != "" {
				data, err := os.ReadFile(palettePath)
				if err != nil {
					return fmt.Errorf("failed to read palette: %w", err)
				}
				if err := yaml.Unmarshal(data, &palette); err != nil {
					return fmt.Errorf("failed to parse palette: %w", err)
				}
			}
			return flags.run(cmd, func(ctx context.Context, deps *api.Dependencies) error {
				res, err := deps.CategorizationService.SyncCategories(ctx, palette)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "categories: %d created, %d updated\n", res.Created, res.Updated)
				return nil
			})
		},
	}
	sync.Flags().StringVar(&palettePath, "palette", "", "YAML list of {name, color}; defaults to the embedded palette")

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete categories no transaction, split or rule references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.run(cmd, func(ctx context.Context, deps *api.Dependencies) error {
				n, err := deps.CategorizationService.DeleteUnused(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "categories: %d deleted\n", n)
				return nil
			})
		},
	}

	cmd.AddCommand(list, sync, prune)
	return cmd
}

func newRulesCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and load categorization rules",
	}

	var isRegex bool
	test := &cobra.Command{
		Use:   "test PATTERN TEXT",
		Short: "Check whether a pattern matches a text",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := categorization.TestPattern(args[0], isRegex, args[1])
			if err != nil {
				return err
			}
			if ok {
				fmt.Fprintln(cmd.OutOrStdout(), "match")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "no match")
			}
			return nil
		},
	}
	test.Flags().BoolVar(&isRegex, "regex", false, "Treat PATTERN as a case-insensitive regular expression")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored rules in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.run(cmd, func(ctx context.Context, deps *api.Dependencies) error {
				rules, err := deps.CategorizationService.ListRules(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "PRIORITY\tFIELD\tPATTERN\tREGEX\tACTIVE\tCATEGORY")
				for _, r := range rules {
					fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%t\t%s\n", r.Priority, r.Field, r.Pattern, r.IsRegex, r.IsActive, r.CategoryName)
				}
				return w.Flush()
			})
		},
	}

	load := &cobra.Command{
		Use:   "import FILE",
		Short: "Import literal rules from a YAML list of {category, field, pattern, priority}",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read rules: %w", err)
			}
			var rules []categorization.LearnedRule
			if err := yaml.Unmarshal(data, &rules); err != nil {
				return fmt.Errorf("failed to parse rules: %w", err)
			}
			return flags.run(cmd, func(ctx context.Context, deps *api.Dependencies) error {
				res, err := deps.CategorizationService.ImportRules(ctx, rules)
				if err != nil {
					return err
				}
				printSeedResult(cmd, args[0], res)
				return nil
			})
		},
	}

	var limit int
	search := &cobra.Command{
		Use:   "search QUERY",
		Short: "Find rules and corrections that mention a text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.run(cmd, func(ctx context.Context, deps *api.Dependencies) error {
				hits, err := deps.CategorizationService.SearchRules(ctx, args[0], limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "KIND\tTEXT\tCATEGORY\tSCORE")
				for _, h := range hits {
					fmt.Fprintf(w, "%s\t%s\t%s\t%.3f\n", h.Document.Kind, h.Document.Text, h.Document.Category, h.Score)
				}
				return w.Flush()
			})
		},
	}
	search.Flags().IntVar(&limit, "limit", 20, "Maximum hits")

	cmd.AddCommand(test, list, load, search)
	return cmd
}
