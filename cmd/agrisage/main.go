package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:          "agrisage",
		Short:        "Agricultural advisory agent",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (YAML)")

	root.AddCommand(serveCMD(&cfgPath), buildIndexCMD(&cfgPath), askCMD(&cfgPath))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
