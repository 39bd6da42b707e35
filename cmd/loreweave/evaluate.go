package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loreweave/loreweave/pkg/config"
	"github.com/loreweave/loreweave/pkg/engine"
	"github.com/loreweave/loreweave/pkg/logging"
	"github.com/loreweave/loreweave/pkg/lore"
	"github.com/loreweave/loreweave/pkg/vars"
)

var evaluateFlags struct {
	books        []string
	configPath   string
	text         string
	strategy     string
	budget       int
	messageCount int
	varsPath     string
	showDropped  bool
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate books against scan text",
	Long: `Runs the activation engine over the given books and scan text and prints
the selected entries grouped by prompt position.

The scan text comes from --text, or from stdin when --text is absent.`,
	RunE: runEvaluate,
}

func init() {
	f := evaluateCmd.Flags()
	f.StringArrayVarP(&evaluateFlags.books, "book", "b", nil, "book JSON file (repeatable)")
	f.StringVarP(&evaluateFlags.configPath, "config", "c", "", "YAML config file")
	f.StringVarP(&evaluateFlags.text, "text", "t", "", "scan text (stdin when omitted)")
	f.StringVarP(&evaluateFlags.strategy, "strategy", "s", "", "insertion strategy override")
	f.IntVar(&evaluateFlags.budget, "budget", 0, "token budget override (0 uses book budgets)")
	f.IntVar(&evaluateFlags.messageCount, "message-count", 0, "conversation message count for timed effects")
	f.StringVar(&evaluateFlags.varsPath, "vars", "", "sqlite file for persistent timed-effect state")
	f.BoolVar(&evaluateFlags.showDropped, "dropped", false, "also print dropped candidates")
	_ = evaluateCmd.MarkFlagRequired("book")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if evaluateFlags.configPath != "" {
		loaded, err := config.Load(evaluateFlags.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	outputs := []logging.Output{logging.NewConsoleOutput(true, logging.WithColor(cfg.Logging.Color))}
	if cfg.Logging.File != "" {
		fileOut, err := logging.NewFileOutput(cfg.Logging.File)
		if err != nil {
			return err
		}
		outputs = append(outputs, fileOut)
	}
	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: cfg.LogSeverity(),
		Outputs:  outputs,
	}))

	library := lore.NewLibrary()
	if err := library.LoadFiles(lore.SourceGlobal, evaluateFlags.books...); err != nil {
		return err
	}

	text := evaluateFlags.text
	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = strings.TrimSpace(string(data))
	}

	req := engine.Request{
		Books:                  library.Books(),
		ScanText:               text,
		Strategy:               cfg.Strategy(),
		TokenBudget:            cfg.TokenBudget(),
		MessageCount:           evaluateFlags.messageCount,
		MinActivations:         cfg.Engine.MinActivations,
		MinActivationsDepthMax: cfg.Engine.MinActivationsDepthMax,
		MaxRecursionSteps:      cfg.Engine.MaxRecursionSteps,
	}
	if evaluateFlags.strategy != "" {
		req.Strategy = engine.InsertionStrategy(evaluateFlags.strategy)
	}
	if evaluateFlags.budget > 0 {
		req.TokenBudget = &evaluateFlags.budget
	}
	if evaluateFlags.varsPath != "" {
		store, err := vars.NewSQLiteStore(vars.SQLiteConfig{Path: evaluateFlags.varsPath, EnableWAL: true})
		if err != nil {
			return err
		}
		defer store.Close()
		req.VarStore = store
	}

	eng := engine.New(engine.WithDefaults(cfg.EngineDefaults()))
	res, err := eng.Evaluate(req)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), res, req.Strategy)
}

func printResult(w io.Writer, res *engine.Result, strategy engine.InsertionStrategy) error {
	grouped, err := res.SelectedByPosition(strategy)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "evaluation %s: %d selected, %d tokens used\n",
		res.EvaluationID, len(res.Selected()), res.UsedTokens)
	if res.Budget != nil {
		fmt.Fprintf(w, "budget: %d", *res.Budget)
		if res.BudgetExceeded() {
			fmt.Fprintf(w, " (exceeded, %d dropped)", res.BudgetDroppedCount())
		}
		fmt.Fprintln(w)
	}

	for _, pos := range []lore.Position{
		lore.PosBeforeCharDefs, lore.PosAfterCharDefs,
		lore.PosBeforeExampleMessages, lore.PosAfterExampleMessages,
		lore.PosTopOfAN, lore.PosBottomOfAN,
		lore.PosAtDepth, lore.PosOutlet,
	} {
		group := grouped[pos]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n[%s]\n", pos)
		for _, c := range group {
			fmt.Fprintf(w, "  %s/%s (%s, %d tokens)\n",
				c.Entry.BookName, c.Entry.UID, c.ActivationType, c.TokenEstimate)
			fmt.Fprintf(w, "    %s\n", firstLine(c.Entry.Content))
		}
	}

	if outlets := res.Outlets(); len(outlets) > 0 {
		fmt.Fprintln(w, "\noutlets:")
		for name, content := range outlets {
			fmt.Fprintf(w, "  %s: %s\n", name, firstLine(content))
		}
	}

	if evaluateFlags.showDropped {
		fmt.Fprintln(w, "\ndropped:")
		for _, c := range res.Dropped() {
			fmt.Fprintf(w, "  %s/%s: %s\n", c.Entry.BookName, c.Entry.UID, c.DroppedReason)
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	if len(s) > 100 {
		s = s[:100] + "..."
	}
	return s
}
