package commands

import (
	"github.com/dyluth/tocsin/internal/printer"
	"github.com/dyluth/tocsin/internal/scaffold"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter tocsin.yml",
	Long: `Write a commented starter configuration to the path given by --config.

Use --force to overwrite an existing file.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	// Note: Cannot use -f shorthand because it conflicts with global --facility flag
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := scaffold.Initialize(configPath, forceInit); err != nil {
		return printer.Error(
			"initialization failed",
			err.Error(),
			[]string{"Use 'tocsin init --force' to overwrite the existing configuration"},
		)
	}

	scaffold.PrintSuccess(configPath)
	return nil
}
