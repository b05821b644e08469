package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the sheetspend application
var rootCmd = &cobra.Command{
	Use:   "sheetspend",
	Short: "Track personal expenses in Google Sheets over MCP",
	Long: `sheetspend is an MCP (Model Context Protocol) server that lets AI
assistants track personal expenses in Google Sheets: create expense
spreadsheets, record expenses, and list recent ones.

It authenticates against the Google Sheets API with OAuth2 and keeps the
obtained credential on disk, refreshing it as needed.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "sheetspend version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newVersionCmd())
}
