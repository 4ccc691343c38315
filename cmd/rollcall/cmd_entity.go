package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"rollcall/internal/normalize"
)

func entityCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:       "entity <student|teacher> [id]",
		Short:     "Show one person, from the lookup cache unless --refresh",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"student", "teacher"},
		RunE: func(cmd *cobra.Command, args []string) error {
			role := normalize.Role(args[0])
			if role != normalize.RoleStudent && role != normalize.RoleTeacher {
				return fmt.Errorf("entity: role must be student or teacher, got %q", args[0])
			}
			id, ok := normalize.ParseID(args[1])
			if !ok {
				return fmt.Errorf("entity: invalid id %q", args[1])
			}

			ctx := cmd.Context()
			deps, err := wire(ctx)
			if err != nil {
				return fmt.Errorf("entity: %w", err)
			}
			defer deps.Close()

			e, err := deps.Rosters.Entity(ctx, role, id, refresh)
			if err != nil {
				return fmt.Errorf("entity: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), e)
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch from the backend and overwrite the cached copy")
	return cmd
}
