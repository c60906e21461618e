package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/HendryAvila/blueprint/internal/config"
	"github.com/HendryAvila/blueprint/internal/embedding"
	"github.com/HendryAvila/blueprint/internal/prediction"
	"github.com/HendryAvila/blueprint/internal/session"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	return &cfg
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	app, cleanup, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return app
}

func confidenceOf(t *testing.T, app *App, id string) float64 {
	t.Helper()
	for _, p := range app.Manager.Patterns() {
		if p.ID == id {
			return p.Confidence
		}
	}
	t.Fatalf("pattern %s not listed", id)
	return 0
}

func TestNew_WiresEverything(t *testing.T) {
	app := newApp(t, testConfig(t))

	require.NotNil(t, app.MCP)
	require.NotNil(t, app.Store)
	assert.Equal(t, 6, app.Library.Len())
	assert.True(t, app.Index.IsInitialized())
	assert.Equal(t, 6, app.Index.Len())

	out, err := app.Manager.Predict(context.Background(), session.PredictInput{UserInput: "create assessment module"})
	require.NoError(t, err)
	assert.True(t, out.Result.Success)
	assert.NotEmpty(t, out.SessionID)

	stats, err := app.Store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, stats.PatternVectors)
}

func TestNew_GroundingSurvivesRestart(t *testing.T) {
	cfg := testConfig(t)

	app, cleanup, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = app.Manager.Ground(context.Background(), "site-inspection", true)
	require.NoError(t, err)
	cleanup()

	restarted := newApp(t, cfg)
	assert.InDelta(t, 0.93, confidenceOf(t, restarted, "site-inspection"), 1e-3)
	assert.InDelta(t, 0.9, confidenceOf(t, restarted, "incident-report"), 1e-9)
}

func TestNew_WithoutPersistence(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(cfg.DataDir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))
	cfg.DataDir = blocker

	app := newApp(t, cfg)
	assert.Nil(t, app.Store)
	assert.True(t, app.Index.IsInitialized(), "the index works from memory")

	_, err := app.Manager.Predict(context.Background(), session.PredictInput{UserInput: "create incident report"})
	assert.NoError(t, err)
}

func TestNew_NoEmbeddings(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.Provider = embedding.ProviderNone

	app := newApp(t, cfg)
	assert.False(t, app.Index.IsAvailable())
	assert.False(t, app.Index.IsInitialized())

	out, err := app.Manager.Predict(context.Background(), session.PredictInput{UserInput: "create assessment module"})
	require.NoError(t, err)
	assert.True(t, out.Result.Success, "rule matching still works")
}

func TestNew_DefaultConfigNonsenseIsGeneric(t *testing.T) {
	app := newApp(t, testConfig(t))
	require.True(t, app.Index.IsInitialized())

	for _, input := range []string{"asdf", "ipsum", "qwerty zxcv"} {
		out, err := app.Manager.Predict(context.Background(), session.PredictInput{UserInput: input})
		require.NoError(t, err, input)
		require.NotNil(t, out.Result.Prediction, input)
		assert.Equal(t, prediction.SourceGeneric, out.Result.Prediction.Source, input)
		assert.Empty(t, out.Result.Prediction.PatternID, input)
	}
}

func TestNew_ExtraCatalogue(t *testing.T) {
	cfg := testConfig(t)
	cfg.CatalogDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.CatalogDir, "permit.yaml"), []byte(`id: permit-to-work
name: Permit To Work
category: permit
description: Authorise hazardous work before it starts.
structure:
  default_fields: [permit_title, permit_date, issuer_email, status]
  sections:
    - name: Permit Details
      field_types: [text, date]
  workflows: [request permit, approve permit]
applicability_rules:
  - {field: domain, operator: equals, value: permit, weight: 0.6}
`), 0600))

	app := newApp(t, cfg)
	assert.Equal(t, 7, app.Library.Len())
	_, err := app.Library.Get("permit-to-work")
	assert.NoError(t, err)
}

func TestNew_BadCatalogue(t *testing.T) {
	cfg := testConfig(t)
	cfg.CatalogDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.CatalogDir, "broken.yaml"), []byte("name: no id\n"), 0600))

	_, cleanup, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	cleanup()
}
