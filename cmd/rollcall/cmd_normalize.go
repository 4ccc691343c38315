package main

import (
	"bytes"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"rollcall/internal/normalize"
)

var normalizeKinds = []string{"student", "teacher", "user", "course", "subject", "enrollment", "attendance"}

func normalizeCmd() *cobra.Command {
	var asList bool

	cmd := &cobra.Command{
		Use:       "normalize <student|teacher|user|course|subject|enrollment|attendance>",
		Short:     "Normalize backend JSON read from stdin",
		Long:      "Reads one record or a list of records (bare or wrapped) from stdin and prints the normalized form.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: normalizeKinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := loadTables(cfg.AliasFile)
			if err != nil {
				return fmt.Errorf("normalize: %w", err)
			}
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("normalize: reading stdin: %w", err)
			}
			out, err := normalizePayload(tables, args[0], data, asList)
			if err != nil {
				return fmt.Errorf("normalize: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().BoolVar(&asList, "list", false, "treat an object payload as a wrapped list")
	return cmd
}

func loadTables(aliasFile string) (*normalize.Tables, error) {
	tables := normalize.DefaultTables()
	if aliasFile == "" {
		return tables, nil
	}
	o, err := normalize.LoadOverrides(aliasFile)
	if err != nil {
		return nil, err
	}
	return tables.With(o)
}

// normalizePayload converts a record, or a list when data is an array or
// asList is set. List items that do not normalize are left out.
func normalizePayload(tables *normalize.Tables, kind string, data []byte, asList bool) (any, error) {
	convert, err := converter(tables, kind)
	if err != nil {
		return nil, err
	}
	if asList || bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		rows, err := normalize.UnwrapList(data)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(rows))
		for _, row := range rows {
			if v, ok := convert(row); ok {
				out = append(out, v)
			}
		}
		return out, nil
	}
	row, err := normalize.DecodeObject(data)
	if err != nil {
		return nil, err
	}
	v, ok := convert(row)
	if !ok {
		return nil, nil
	}
	return v, nil
}

func converter(tables *normalize.Tables, kind string) (func(map[string]any) (any, bool), error) {
	switch kind {
	case "student", "teacher", "user":
		role := normalize.Role(kind)
		if kind == "user" {
			role = normalize.RoleAdmin
		}
		return func(raw map[string]any) (any, bool) { return tables.Entity(raw, role) }, nil
	case "course":
		return func(raw map[string]any) (any, bool) { return tables.Course(raw) }, nil
	case "subject":
		return func(raw map[string]any) (any, bool) { return tables.Subject(raw) }, nil
	case "enrollment":
		return func(raw map[string]any) (any, bool) { return tables.Enrollment(raw) }, nil
	case "attendance":
		return func(raw map[string]any) (any, bool) { return tables.Attendance(raw) }, nil
	}
	return nil, fmt.Errorf("unknown record kind %q", kind)
}
