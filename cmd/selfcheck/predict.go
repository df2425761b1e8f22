package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/mqag"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/orchestrator"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/scoring"
	"github.com/danielpatrickdp/selfcheck-mqag/internal/store"
)

// predictInput is the JSON document read by `selfcheck predict`.
type predictInput struct {
	Sentences       []string `json:"sentences"`
	Passage         string   `json:"passage"`
	SampledPassages []string `json:"sampled_passages"`
}

func loadPredictInput(path string) (predictInput, error) {
	var in predictInput
	data, err := os.ReadFile(path)
	if err != nil {
		return in, fmt.Errorf("read input %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("parse input %s: %w", path, err)
	}
	return in, nil
}

func newPredictCmd(a *app) *cobra.Command {
	var (
		inputPath string
		method    string
		questions int
		persist   bool
		jsonOut   bool
		pf        paramFlags
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score every sentence of a passage against sampled passages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := loadPredictInput(inputPath)
			if err != nil {
				return err
			}

			orch, closeConn, err := a.buildOrchestrator(prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer closeConn()

			req := orchestrator.Request{
				Sentences:            in.Sentences,
				Passage:              in.Passage,
				SampledPassages:      in.SampledPassages,
				QuestionsPerSentence: a.cfg.Scoring.QuestionsPerSentence,
				Method:               a.cfg.Scoring.Method,
				Params:               pf.params(cmd).Merge(a.cfg.Scoring.Params),
			}
			if method != "" {
				req.Method = scoring.Method(method)
			}
			if questions > 0 {
				req.QuestionsPerSentence = questions
			}

			res, runErr := orch.Run(cmd.Context(), req)

			runID := ""
			if persist {
				st, err := a.openStore()
				if err != nil {
					return err
				}
				defer st.Close()
				if runErr == nil {
					run, err := st.SaveRun(store.Run{
						Method:               res.Method,
						Params:               res.Params,
						Passage:              in.Passage,
						NumSamples:           res.NumSamples,
						QuestionsPerSentence: res.QuestionsPerSentence,
						Sentences:            res.Sentences,
					})
					if err != nil {
						return err
					}
					runID = run.ID
				}
				a.audit(st, runID, "predict", runErr, map[string]any{
					"sentences": len(in.Sentences),
					"samples":   len(in.SampledPassages),
					"method":    req.Method,
				})
			}
			if runErr != nil {
				return runErr
			}

			if jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"run_id": runID,
					"method": res.Method,
					"scores": res.Scores(),
				})
			}
			printSentenceTable(cmd.OutOrStdout(), res.Sentences)
			if runID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "\nrun: %s\n", runID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "JSON file with sentences, passage and sampled_passages")
	cmd.Flags().StringVar(&method, "method", "", "counting|bayes|bayes_with_alpha (default from config)")
	cmd.Flags().IntVar(&questions, "questions", 0, "questions per sentence (default from config)")
	cmd.Flags().BoolVar(&persist, "persist", false, "store the run with all question traces")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON instead of table")
	pf.register(cmd)
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// #region output
func printSentenceTable(w io.Writer, sentences []mqag.SentenceResult) {
	fmt.Fprintf(w, "%-5s  %7s  %9s  %s\n", "Idx", "Score", "Questions", "Sentence")
	fmt.Fprintf(w, "%-5s+-%7s+-%9s+-%s\n", "-----", "-------", "---------", "--------------------")
	for _, s := range sentences {
		fmt.Fprintf(w, "%-5d  %7.4f  %9d  %s\n", s.Index, s.Score, len(s.Questions), truncate(s.Sentence, 72))
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// #endregion output

// #region param-flags
// paramFlags exposes scoring.Params on the command line; only flags the user
// actually set end up in the result.
type paramFlags struct {
	at, beta1, beta2 float64
}

func (p *paramFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&p.at, "at", 0.5, "answerability threshold for counting/bayes")
	cmd.Flags().Float64Var(&p.beta1, "beta1", 0.8, "first class-conditional agreement rate, in (0,1)")
	cmd.Flags().Float64Var(&p.beta2, "beta2", 0.8, "second class-conditional agreement rate, in (0,1)")
}

func (p *paramFlags) params(cmd *cobra.Command) scoring.Params {
	var out scoring.Params
	if cmd.Flags().Changed("at") {
		out.AT = scoring.Float(p.at)
	}
	if cmd.Flags().Changed("beta1") {
		out.Beta1 = scoring.Float(p.beta1)
	}
	if cmd.Flags().Changed("beta2") {
		out.Beta2 = scoring.Float(p.beta2)
	}
	return out
}

// #endregion param-flags
