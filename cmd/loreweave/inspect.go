package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loreweave/loreweave/pkg/lore"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [book files]",
	Short: "List the entries of book files",
	Long: `Decodes book JSON files and prints each entry's identity, keys and
activation settings, showing how the engine will interpret them.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	library := lore.NewLibrary()
	if err := library.LoadFiles(lore.SourceGlobal, args...); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, book := range library.Books() {
		fmt.Fprintf(w, "%s (%d entries", book.Name, len(book.Entries))
		if book.RecursiveScanning {
			fmt.Fprint(w, ", recursive")
		}
		if book.TokenBudget != nil {
			fmt.Fprintf(w, ", budget %d", *book.TokenBudget)
		}
		fmt.Fprintln(w, ")")

		for _, e := range book.Entries {
			var traits []string
			if !e.Enabled {
				traits = append(traits, "disabled")
			}
			if e.Constant {
				traits = append(traits, "constant")
			}
			if e.Selective {
				traits = append(traits, "selective:"+string(e.SelectiveLogic))
			}
			if e.Probability < 100 {
				traits = append(traits, fmt.Sprintf("probability:%d", e.Probability))
			}
			if e.Group != "" {
				traits = append(traits, "group:"+e.Group)
			}
			if e.Sticky > 0 || e.Cooldown > 0 || e.Delay > 0 {
				traits = append(traits, fmt.Sprintf("timed:%d/%d/%d", e.Sticky, e.Cooldown, e.Delay))
			}
			suffix := ""
			if len(traits) > 0 {
				suffix = " [" + strings.Join(traits, " ") + "]"
			}
			fmt.Fprintf(w, "  %s: keys=%s position=%s order=%d%s\n",
				e.UID, strings.Join(e.Keys, ","), e.Position, e.InsertionOrder, suffix)
		}
	}
	return nil
}
