package cmd

import (
	"fmt"

	"github.com/rbholmes/toolchat/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or initialize configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	dump, err := cfg.Dump()
	if err != nil {
		return err
	}
	fmt.Print(dump)

	if !config.Exists() {
		path, _ := config.GetConfigPath()
		fmt.Printf("\n# No config file; showing defaults. Create one: toolchat config init\n# Path: %s\n", path)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if config.Exists() {
		path, _ := config.GetConfigPath()
		return fmt.Errorf("config file already exists at %s", path)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return err
	}

	path, _ := config.GetConfigPath()
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
