package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/selfcheck-mqag/internal/scoring"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, scoring.MethodBayesWithAlpha, cfg.Scoring.Method)
	assert.Equal(t, 5, cfg.Scoring.QuestionsPerSentence)
	assert.Equal(t, 4096, cfg.Infer.MaxLength)
	assert.Equal(t, 128, cfg.Infer.MaxNewTokens)
	assert.Equal(t, "<sep>", cfg.Tokens.Sep)
	assert.Equal(t, "<s>", cfg.Tokens.BOS)
	assert.Equal(t, BackendGRPC, cfg.Gen.Backend)
}

func TestLoad_NoFiles(t *testing.T) {
	cfg, err := LoadFiles("", "")
	require.NoError(t, err)
	assert.Equal(t, Default().DBPath, cfg.DBPath)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, "selfcheck.yaml", `
workers: 4
inference:
  addr: infer:9000
scoring:
  method: counting
  params:
    at: 0.7
tokens:
  sep: "<SEP>"
`)
	cfg, err := LoadFiles(path, "")
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "infer:9000", cfg.Infer.Addr)
	assert.Equal(t, 4096, cfg.Infer.MaxLength, "unset YAML keys keep defaults")
	assert.Equal(t, scoring.MethodCounting, cfg.Scoring.Method)
	assert.InDelta(t, 0.7, *cfg.Scoring.Params.AT, 1e-12)
	assert.InDelta(t, 0.8, *cfg.Scoring.Params.Beta1, 1e-12)
	assert.Equal(t, "<SEP>", cfg.Tokens.Sep)
	assert.Equal(t, "<pad>", cfg.Tokens.Pad)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "selfcheck.yaml", "workers: 4\nscoring:\n  method: counting\n")
	t.Setenv("SELFCHECK_WORKERS", "8")
	t.Setenv("SELFCHECK_METHOD", "bayes")
	t.Setenv("SELFCHECK_BETA1", "0.3")

	cfg, err := LoadFiles(path, "")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, scoring.MethodBayes, cfg.Scoring.Method)
	assert.InDelta(t, 0.3, *cfg.Scoring.Params.Beta1, 1e-12)
}

func TestLoad_DotEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "SELFCHECK_DB_TEST_ONLY=x\nSELFCHECK_HTTP_ADDR=:9999\n")
	t.Cleanup(func() {
		os.Unsetenv("SELFCHECK_DB_TEST_ONLY")
		os.Unsetenv("SELFCHECK_HTTP_ADDR")
	})

	cfg, err := LoadFiles("", envFile)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
}

func TestLoad_MissingDotEnvIgnored(t *testing.T) {
	_, err := LoadFiles("", filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
}

func TestLoad_Errors(t *testing.T) {
	_, err := LoadFiles(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)

	bad := writeFile(t, "bad.yaml", "workers: [1, 2\n")
	_, err = LoadFiles(bad, "")
	assert.Error(t, err)

	t.Setenv("SELFCHECK_WORKERS", "many")
	t.Setenv("SELFCHECK_AT", "high")
	_, err = LoadFiles("", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SELFCHECK_WORKERS")
	assert.Contains(t, err.Error(), "SELFCHECK_AT")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Workers = 0
	cfg.Scoring.QuestionsPerSentence = 0
	cfg.Scoring.Method = "median"
	cfg.Gen.Backend = "carrier-pigeon"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "workers")
	assert.Contains(t, msg, "questions_per_sentence")
	assert.Contains(t, msg, "unknown scoring method")
	assert.Contains(t, msg, "carrier-pigeon")
}

func TestValidate_OpenAIRequiresKey(t *testing.T) {
	cfg := Default()
	cfg.Gen.Backend = BackendOpenAI
	assert.Error(t, cfg.Validate())

	cfg.Gen.OpenAIKey = "sk-test"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_BetaOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.Scoring.Params.Beta2 = scoring.Float(1.0)
	assert.ErrorIs(t, cfg.Validate(), scoring.ErrInvalidParam)
}
