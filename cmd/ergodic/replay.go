package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/ergodic"
	"gopkg.in/yaml.v3"
)

// Scenario is a recorded session to replay. Config starts from
// ergodic.DefaultConfig and the scenario's config block overrides only the
// fields it sets.
type Scenario struct {
	Config       ergodic.Config `yaml:"config,omitempty"`
	Technique    string         `yaml:"technique"`
	Problem      string         `yaml:"problem"`
	StartTime    time.Time      `yaml:"start_time"`
	StepInterval time.Duration  `yaml:"step_interval"`
	Steps        []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one visible step of a recorded session.
type ScenarioStep struct {
	Technique string         `yaml:"technique,omitempty"`
	Decision  string         `yaml:"decision"`
	Impact    ergodic.Impact `yaml:"impact,omitempty"`
	Insight   string         `yaml:"insight,omitempty"`
}

const defaultStepInterval = time.Minute

var (
	replayAutoEscape bool
	replaySeed       uint64
)

var replayCmd = &cobra.Command{
	Use:   "replay <scenario.yaml>",
	Short: "Replay a recorded session and print each step's result as JSON",
	Long: `Replay feeds every step of a YAML scenario through the ledger and the
warning coordinator on a simulated clock, then prints one JSON document per
step.

Scenario format:
  technique: six_hats
  problem: reduce onboarding churn
  start_time: 2026-01-01T09:00:00Z
  step_interval: 2m
  steps:
    - decision: list the facts we have
      impact: {options_opened: [survey, interviews]}
    - decision: we commit to the survey only
      impact: {options_closed: [interviews], commitment_level: 0.8}`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayAutoEscape, "auto-escape", false, "execute recommended low-level protocols automatically")
	replayCmd.Flags().Uint64Var(&replaySeed, "seed", 1, "seed for protocol outcome rolls")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read scenario: %w", err)
	}
	scenario, err := ParseScenario(data)
	if err != nil {
		return err
	}
	return Replay(cmd.Context(), scenario, replayAutoEscape, replaySeed, cmd.OutOrStdout())
}

// ParseScenario decodes a YAML scenario and fills defaults.
func ParseScenario(data []byte) (*Scenario, error) {
	s := Scenario{Config: ergodic.DefaultConfig()}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("parse scenario: no steps")
	}
	if s.StartTime.IsZero() {
		s.StartTime = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	}
	if s.StepInterval <= 0 {
		s.StepInterval = defaultStepInterval
	}
	return &s, nil
}

// Replay runs every scenario step through a fresh Ergodicity on a fake
// clock and writes the results to w.
func Replay(ctx context.Context, s *Scenario, autoEscape bool, seed uint64, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	clock := clockz.NewFakeClockAt(s.StartTime)

	opts := []ergodic.Option{
		ergodic.WithConfig(s.Config),
		ergodic.WithClock(clock),
		ergodic.WithRand(rand.New(rand.NewPCG(seed, seed))),
	}
	if autoEscape {
		opts = append(opts, ergodic.WithAutoEscape())
	}
	e := ergodic.New(opts...)

	session := &ergodic.SessionData{
		Technique: s.Technique,
		Problem:   s.Problem,
		StartTime: s.StartTime,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	for i, step := range s.Steps {
		clock.Advance(s.StepInterval)
		technique := step.Technique
		if technique == "" {
			technique = s.Technique
		}
		session.History = append(session.History, ergodic.HistoryEntry{
			Technique: technique,
			Step:      i + 1,
			Output:    step.Decision,
			Timestamp: clock.Now(),
		})
		if step.Insight != "" {
			session.Insights = append(session.Insights, step.Insight)
		}

		res, err := e.RecordThinkingStep(ctx, technique, i+1, step.Decision, step.Impact, session)
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("write step %d: %w", i+1, err)
		}
	}
	return nil
}
