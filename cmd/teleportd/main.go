package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var Command = &cobra.Command{
	Use:           "teleportd",
	Short:         "teleport storage host",
	Long:          `teleportd hosts the home and permission storage units over a nutsdb database`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	Command.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file, defaults to ./teleport.yml or ./config/teleport.yml")
}

func main() {
	if err := Command.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
