package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "ragforge"}

	root.AddCommand(serveCMD(), migrateCMD(), ingestCMD(), queryCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
