package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/asp2131/storia/internal/config"
	"github.com/asp2131/storia/internal/home"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the storia home directory",
	Long: `Initialize the storia home directory.

Creates the home directory (default ~/.storia) with its audio subdirectory
and writes a commented default config.yaml. An existing config file is left
alone unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		if h.ConfigExists() && !initForce {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", h.ConfigPath())
		}

		if err := config.WriteDefault(h.ConfigPath()); err != nil {
			return err
		}

		fmt.Printf("Initialized %s\n", h.Path())
		fmt.Printf("  Config: %s\n", h.ConfigPath())
		fmt.Printf("  Store:  %s\n", h.DBPath())
		fmt.Printf("  Audio:  %s\n", h.AudioDir())
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
