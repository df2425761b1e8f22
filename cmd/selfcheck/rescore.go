package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/mqag"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/replay"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/scoring"
)

func newRescoreCmd(a *app) *cobra.Command {
	var (
		runID       string
		fixturePath string
		method      string
		tolerance   float64
		jsonOut     bool
		pf          paramFlags
	)

	cmd := &cobra.Command{
		Use:   "rescore",
		Short: "Recompute scores of a stored run or fixture without new inference calls",
		Long: "Recompute scores of a stored run or fixture without new inference calls.\n\n" +
			"With --fixture and no --method, the fixture is checked against its expected_scores\n" +
			"and the command fails if any sentence drifts by more than --tolerance.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fixturePath != "" {
				f, err := replay.LoadFixture(fixturePath)
				if err != nil {
					return err
				}
				if method == "" && len(f.ExpectedScores) > 0 {
					return checkFixture(cmd, f, tolerance)
				}
				m := f.Method
				if method != "" {
					m = scoring.Method(method)
				}
				params := pf.params(cmd).Merge(f.Params).Merge(a.cfg.Scoring.Params)
				out, err := replay.Rescore(f.Sentences, m, params)
				if err != nil {
					return err
				}
				return printRescored(cmd, "", m, out, jsonOut)
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			run, err := st.GetRun(runID)
			if err != nil {
				a.audit(st, runID, "rescore", err, nil)
				return err
			}
			m := run.Method
			if method != "" {
				m = scoring.Method(method)
			}
			params := pf.params(cmd).Merge(run.Params).Merge(a.cfg.Scoring.Params)

			out, err := replay.Rescore(run.Sentences, m, params)
			a.audit(st, runID, "rescore", err, map[string]any{"method": m})
			if err != nil {
				return err
			}
			return printRescored(cmd, runID, m, out, jsonOut)
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "stored run ID")
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "JSON replay fixture")
	cmd.Flags().StringVar(&method, "method", "", "scoring method (default: the run's own)")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 1e-9, "allowed drift when checking a fixture")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON instead of table")
	pf.register(cmd)
	cmd.MarkFlagsOneRequired("run", "fixture")
	cmd.MarkFlagsMutuallyExclusive("run", "fixture")
	return cmd
}

func checkFixture(cmd *cobra.Command, f *replay.Fixture, tolerance float64) error {
	mismatches, err := f.Check(tolerance)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(mismatches) == 0 {
		fmt.Fprintf(w, "fixture ok: %d sentences match (%s)\n", len(f.Sentences), f.Method)
		return nil
	}
	for _, m := range mismatches {
		fmt.Fprintf(w, "sentence %d: expected %.6f, got %.6f\n", m.Index, m.Expected, m.Actual)
	}
	return fmt.Errorf("%d of %d sentences drifted", len(mismatches), len(f.Sentences))
}

func printRescored(cmd *cobra.Command, runID string, m scoring.Method, out []mqag.SentenceResult, jsonOut bool) error {
	if jsonOut {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"run_id":  runID,
			"method":  m,
			"scores":  mqag.Scores(out),
			"summary": replay.Summarize(out),
		})
	}
	printSentenceTable(cmd.OutOrStdout(), out)
	s := replay.Summarize(out)
	fmt.Fprintf(cmd.OutOrStdout(), "\nmethod=%s mean=%.4f max=%.4f neutral=%d\n", m, s.MeanScore, s.MaxScore, s.Neutral)
	return nil
}
