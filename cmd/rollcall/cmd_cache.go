package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rollcall/internal/normalize"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or reset the entity lookup cache",
	}
	cmd.AddCommand(cacheShowCmd(), cacheClearCmd())
	return cmd
}

func cacheShowCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List cached entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := wire(ctx)
			if err != nil {
				return fmt.Errorf("cache show: %w", err)
			}
			defer deps.Close()

			if err := deps.Cache.Load(ctx); err != nil {
				return fmt.Errorf("cache show: %w", err)
			}
			snap := deps.Cache.Snapshot()
			if outputJSON {
				out := make(map[string]*normalize.Entity, len(snap))
				for k := range snap {
					e := snap[k]
					out[k] = &e
				}
				return printJSON(cmd.OutOrStdout(), out)
			}

			keys := make([]string, 0, len(snap))
			for k := range snap {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			fmt.Fprintf(cmd.OutOrStdout(), "Cached entities (%s): %d\n\n", cfg.LookupCacheBackend, len(snap))
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tROLE\tNAME\tEMAIL")
			for _, k := range keys {
				e := snap[k]
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", k, e.Role, e.DisplayName, e.Email)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	return cmd
}

func cacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached entity so the next passes refetch them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := wire(ctx)
			if err != nil {
				return fmt.Errorf("cache clear: %w", err)
			}
			defer deps.Close()

			if err := deps.Cache.Load(ctx); err != nil {
				deps.Logger.Warn("lookup cache unreadable, overwriting", "err", err)
			}
			n := deps.Cache.Len()
			if err := deps.Cache.Clear(ctx); err != nil {
				return fmt.Errorf("cache clear: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cached entities.\n", n)
			return nil
		},
	}
}
