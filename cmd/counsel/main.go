// counsel is the conversational business-assessment assistant engine.
// It selects response patterns per turn and assembles bounded generation
// context; actual text generation is an external collaborator.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"counsel/internal/assembler"
	"counsel/internal/catalog"
	"counsel/internal/config"
	"counsel/internal/engine"
	"counsel/internal/generate"
	"counsel/internal/logging"
	"counsel/internal/store"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	catalogDir  string
	offline     bool
	persistPath string
)

var rootCmd = &cobra.Command{
	Use:   "counsel",
	Short: "Conversation pattern selection engine",
	Long: `counsel detects conversational triggers, tracks knowledge state,
and selects response patterns with a bounded generation context.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return logging.Initialize(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Categories)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the trigger/behavior catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadCatalog()
		if err != nil {
			return err
		}
		fmt.Printf("catalog OK: %d triggers, %d behaviors, fallback=%s\n",
			len(cat.Triggers), len(cat.Behaviors), cat.FallbackID)
		return nil
	},
}

var turnCmd = &cobra.Command{
	Use:   "turn [message]",
	Short: "Process a single turn and print the selection and payload",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := buildEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		convID := engine.NewConversationID()
		result, err := eng.ProcessTurn(cmd.Context(), convID, strings.Join(args, " "))
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive conversation loop on stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := buildEngine()
		if err != nil {
			return err
		}
		defer cleanup()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		var gen generate.Generator = &generate.Static{}
		if !offline {
			gen = generate.NewHTTPClient(cfg.Generator)
		}

		convID := engine.NewConversationID()
		fmt.Printf("conversation %s — type a message, /restart, or /quit\n", convID)

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			switch {
			case line == "":
				continue
			case line == "/quit":
				return nil
			case line == "/restart":
				if err := eng.Restart(cmd.Context(), convID); err != nil {
					return err
				}
				fmt.Println("conversation restarted")
				continue
			}

			result, err := eng.ProcessTurn(cmd.Context(), convID, line)
			if err != nil {
				var oversized *assembler.OversizedContextError
				if errors.As(err, &oversized) {
					// Recoverable: the turn was aborted before any
					// mutation; the operator sees the overflow.
					fmt.Printf("context too large: %v\n", oversized)
					continue
				}
				return err
			}

			response, err := gen.Generate(cmd.Context(), result.Payload.Render())
			if err != nil {
				fmt.Printf("generation failed: %v\n", err)
				continue
			}
			eng.RecordResponse(convID, response)

			fmt.Printf("[patterns: %s]\n", patternList(result))
			fmt.Println(response)
		}
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config YAML")
	rootCmd.PersistentFlags().StringVar(&catalogDir, "catalog", "", "directory of catalog YAML overrides")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "use the offline echo generator")
	rootCmd.PersistentFlags().StringVar(&persistPath, "db", "", "snapshot database path (empty disables persistence)")

	rootCmd.AddCommand(validateCmd, turnCmd, chatCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func loadCatalog() (*catalog.Catalog, error) {
	if catalogDir != "" {
		return catalog.LoadDir(catalogDir)
	}
	return catalog.Load()
}

func buildEngine() (*engine.Engine, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	cat, err := loadCatalog()
	if err != nil {
		return nil, nil, err
	}

	var snapshots store.SnapshotStore
	cleanup := func() {}
	if persistPath != "" {
		s, err := store.NewSQLiteStore(persistPath)
		if err != nil {
			return nil, nil, err
		}
		snapshots = s
		cleanup = func() { s.Close() }
	}

	return engine.New(cat, cfg, snapshots), cleanup, nil
}

func printResult(result *engine.TurnResult) {
	fmt.Printf("turn %d: %d trigger(s)\n", result.Turn, len(result.Triggers))
	for _, m := range result.Triggers {
		fmt.Printf("  trigger %-22s strength=%.2f priority=%s", m.TriggerID, m.Strength, m.Priority)
		if m.EmotionalIntensity != "" {
			fmt.Printf(" intensity=%s", m.EmotionalIntensity)
		}
		fmt.Println()
	}
	for _, sel := range result.Selected {
		fmt.Printf("selected %-22s score=%.3f priority=%s forced=%v\n",
			sel.Behavior.ID, sel.Score, sel.Priority, sel.Forced)
	}
	if result.FellBack {
		fmt.Println("(fallback pattern)")
	}
	fmt.Printf("payload: %d tokens\n---\n%s", result.Payload.Tokens, result.Payload.Render())
}

func patternList(result *engine.TurnResult) string {
	ids := make([]string, len(result.Selected))
	for i, sel := range result.Selected {
		ids[i] = sel.Behavior.ID
	}
	return strings.Join(ids, ", ")
}
