package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "loreweave",
	Short: "Lore activation engine for LLM prompts",
	Long: `Evaluates world-info books against conversation text and reports which
lore entries activate, in what order, and into which prompt positions.

Books are JSON files in CCv2, CCv3 or SillyTavern export format. Engine
defaults come from an optional YAML config file.`,
	Version: "0.1.0",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
