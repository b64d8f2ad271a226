package main

import (
	"fmt"

	"github.com/pg-sharding/partmig/pkg"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of the member binary",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("partmig member " + pkg.PartmigVersionRevision)
	},
}
