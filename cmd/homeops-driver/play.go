package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"homeops-driver/internal/config"
	"homeops-driver/internal/logging"
	"homeops-driver/internal/noise"
	"homeops-driver/internal/player"
	"homeops-driver/internal/recovery"
	"homeops-driver/internal/scenario"
	"homeops-driver/internal/state"
	"homeops-driver/internal/target"
)

var (
	playConfigPath   string
	playConfigSchema string
	playScenarioPath string
	playScenarioCue  string
	playSpeed        float64
	playChapter      string
	playDebug        bool
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Replay a scenario against the configured targets",
	Long:  "play loads a scenario file, seeds initial state on every target, and plays the canonical chapter sequence. All runtime failures degrade to logging; the process exits 0 once playback completes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(playConfigPath, playConfigSchema)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("speed") {
			cfg.Speed = playSpeed
		}
		if cmd.Flags().Changed("chapter") {
			cfg.Chapter = playChapter
		}
		scenarioPath := cfg.ScenarioPath
		if cmd.Flags().Changed("scenario") || scenarioPath == "" {
			scenarioPath = playScenarioPath
		}

		scn, err := scenario.Load(scenarioPath, playScenarioCue)
		if err != nil {
			return err
		}

		log := logging.New(playDebug).With("run_id", uuid.New().String()[:8])
		ctx := logging.NewContext(context.Background(), log)

		var targets []*target.Target
		for _, tc := range cfg.Targets {
			t, err := target.Open(tc, log)
			if err != nil {
				return err
			}
			defer t.Close()
			targets = append(targets, t)
		}

		st := state.New(scn.InitialState)
		injector := recovery.NewInjector(targets, cfg.Targets, log)
		p := player.New(targets, st, noise.NewEngine(), injector, cfg.Speed, cfg.SunsetAutomation)

		log.Info("run starting",
			"scenario", scenarioPath,
			"description", scn.Metadata.Description,
			"targets", len(targets),
			"speed", cfg.Speed)

		p.Seed(ctx, scn.InitialState)
		p.PlayAll(ctx, scn, cfg.Chapter)

		log.Info("run complete")
		return nil
	},
}

func init() {
	playCmd.Flags().StringVar(&playConfigPath, "config", "config/driver.yaml", "Path to driver configuration YAML")
	playCmd.Flags().StringVar(&playConfigSchema, "config-schema", "schemas/driver.cue", "Path to driver config CUE schema")
	playCmd.Flags().StringVar(&playScenarioPath, "scenario", "scenarios/day-in-the-life.json", "Path to scenario JSON")
	playCmd.Flags().StringVar(&playScenarioCue, "scenario-schema", "schemas/scenario.cue", "Path to scenario CUE schema")
	playCmd.Flags().Float64Var(&playSpeed, "speed", 1, "Sim-time speed multiplier (2 = twice as fast)")
	playCmd.Flags().StringVar(&playChapter, "chapter", "", "Play only this chapter")
	playCmd.Flags().BoolVar(&playDebug, "debug", false, "Enable debug logging")
}
