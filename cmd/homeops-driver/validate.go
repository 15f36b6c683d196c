package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"homeops-driver/internal/scenario"
)

var (
	validateScenarioPath string
	validateScenarioCue  string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a scenario file and print its shape",
	Long:  "validate loads a scenario JSON through schema validation and event decoding, then prints a chapter summary. Useful before pointing a long run at real targets.",
	RunE: func(cmd *cobra.Command, args []string) error {
		scn, err := scenario.Load(validateScenarioPath, validateScenarioCue)
		if err != nil {
			return err
		}

		fmt.Printf("scenario: %s\n", scn.Metadata.Description)
		fmt.Printf("initial entities: %d\n", len(scn.InitialState))
		for _, name := range scenario.CanonicalChapters {
			ch, ok := scn.Chapters[name]
			if !ok {
				continue
			}
			rules := 0
			if ch.Generator != nil {
				rules = len(ch.Generator.Rules)
			}
			fmt.Printf("chapter %-18s events=%-3d generator_rules=%d\n", name, len(ch.Events), rules)
		}
		for name := range scn.Chapters {
			known := false
			for _, c := range scenario.CanonicalChapters {
				if c == name {
					known = true
					break
				}
			}
			if !known {
				fmt.Printf("warning: chapter %q is not in the canonical order and will never play\n", name)
			}
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateScenarioPath, "scenario", "scenarios/day-in-the-life.json", "Path to scenario JSON")
	validateCmd.Flags().StringVar(&validateScenarioCue, "scenario-schema", "schemas/scenario.cue", "Path to scenario CUE schema")
}
