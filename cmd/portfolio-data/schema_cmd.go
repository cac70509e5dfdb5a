package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gestio-pm/gestio/modules/portfolio"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the portfolio DDL",
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := portfolio.SchemaSQL()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), sql)
			return nil
		},
	}
}
