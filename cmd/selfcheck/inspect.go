package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/store"
)

func newInspectCmd(a *app) *cobra.Command {
	var (
		runID   string
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List stored runs or show one run with its question traces",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if runID != "" {
				return runDetailMode(cmd.OutOrStdout(), st, runID, jsonOut)
			}
			return runListMode(cmd.OutOrStdout(), st, limit, jsonOut)
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "show single run detail")
	cmd.Flags().IntVar(&limit, "limit", 20, "show N most recent runs")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON instead of table")
	return cmd
}

// #region list-mode
func runListMode(w io.Writer, st *store.Store, limit int, jsonOut bool) error {
	runs, err := st.ListRuns(limit)
	if err != nil {
		return err
	}
	if jsonOut {
		if runs == nil {
			runs = []store.RunSummary{}
		}
		return printJSON(w, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs found")
		return nil
	}

	fmt.Fprintf(w, "%-12s  %-16s  %7s  %9s  %7s  %s\n", "Run", "Method", "Samples", "Sentences", "Mean", "Time")
	fmt.Fprintf(w, "%-12s+-%-16s+-%7s+-%9s+-%7s+-%s\n",
		"------------", "----------------", "-------", "---------", "-------", "--------------------")
	for _, r := range runs {
		fmt.Fprintf(w, "%-12s  %-16s  %7d  %9d  %7.4f  %s\n",
			shortID(r.ID), r.Method, r.NumSamples, r.NumSentences, r.MeanScore,
			r.CreatedAt.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

// #endregion list-mode

// #region detail-mode
func runDetailMode(w io.Writer, st *store.Store, runID string, jsonOut bool) error {
	run, err := st.GetRun(runID)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(w, run)
	}

	fmt.Fprintf(w, "Run:        %s\n", run.ID)
	fmt.Fprintf(w, "Created:    %s\n", run.CreatedAt.Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(w, "Method:     %s\n", run.Method)
	fmt.Fprintf(w, "Params:     %s\n", formatParams(run.Params.AT, run.Params.Beta1, run.Params.Beta2))
	fmt.Fprintf(w, "Samples:    %d\n", run.NumSamples)
	fmt.Fprintf(w, "Questions:  %d per sentence\n\n", run.QuestionsPerSentence)

	for _, s := range run.Sentences {
		fmt.Fprintf(w, "[%d] %.4f  %s\n", s.Index, s.Score, s.Sentence)
		for _, q := range s.Questions {
			a := q.Prob.Argmax()
			fmt.Fprintf(w, "    %.4f  %s -> %s (u=%.2f)\n", q.Score, q.Item.Question, q.Item.Options[a], q.Answerability)
		}
	}
	return nil
}

func formatParams(at, beta1, beta2 *float64) string {
	f := func(v *float64) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%g", *v)
	}
	return fmt.Sprintf("AT=%s beta1=%s beta2=%s", f(at), f(beta1), f(beta2))
}

// #endregion detail-mode

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
