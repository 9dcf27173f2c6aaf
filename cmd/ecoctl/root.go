package main

import (
	"fmt"
	"os"

	"eco-agent-backend/config"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var configPath string

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)
)

var rootCmd = &cobra.Command{
	Use:   "ecoctl",
	Short: "Operator tools for the Eco Agent backend",
	Long: `Operator tools for the Eco Agent backend.

  ecoctl query "tree canopy goals"     # query the planning document index
  ecoctl migrate                       # create or update database tables
  ecoctl token --user 42               # sign a JWT for local testing
  ecoctl purge-owner --user 42         # delete all data of a user`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			return nil
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		config.Cfg = cfg
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $ECO_CONFIG or config.yaml)")
}
