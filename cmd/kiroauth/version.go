package main

import (
	"fmt"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version of kiroauth",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if !short {
				fmt.Fprintln(cmd.OutOrStdout(), figure.NewFigure("kiroauth", "cybermedium", true).String())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "kiroauth version %s\n", version)
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print only the version line")
	return cmd
}
