package usecase

import (
	"context"
	"testing"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigHolderReplace(t *testing.T) {
	store := repository.NewMemoryConfigStore()
	h, err := NewConfigHolder(models.DefaultRuntimeConfig(), store, nil)
	require.NoError(t, err)
	ctx := context.Background()

	cfg, err := h.Replace(ctx, []byte(`{"threshold":0.5,"watchlist_symbols":["SOLUSDT"]}`))
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Threshold)
	assert.Equal(t, []string{"SOLUSDT"}, h.Current().WatchlistSymbols)
	assert.Equal(t, 1800, h.Current().TFWindows[models.TF4h], "absent fields keep defaults")

	saved, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(saved), `"SOLUSDT"`)
}

func TestConfigHolderRejectsInvalidReplacement(t *testing.T) {
	h := newHolder(t)
	for _, doc := range []string{`{"threshold":0}`, `{"strength_mode":"loud"}`, `not json`} {
		_, err := h.Replace(context.Background(), []byte(doc))
		assert.ErrorIs(t, err, ErrInvalidConfig, doc)
	}
	assert.Equal(t, 0.35, h.Current().Threshold)
}

func TestConfigHolderLoad(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryConfigStore()
	h, err := NewConfigHolder(models.DefaultRuntimeConfig(), store, nil)
	require.NoError(t, err)

	require.NoError(t, h.Load(ctx), "missing document keeps defaults")
	assert.Equal(t, 0.35, h.Current().Threshold)

	require.NoError(t, store.Save(ctx, []byte(`{"refresh_rules_seconds":60}`)))
	require.NoError(t, h.Load(ctx))
	assert.Equal(t, 60, h.Current().RefreshRulesSeconds)

	require.NoError(t, store.Save(ctx, []byte(`{"threshold":-1}`)))
	assert.ErrorIs(t, h.Load(ctx), ErrInvalidConfig)
}

func TestNewConfigHolderValidatesInitial(t *testing.T) {
	cfg := models.DefaultRuntimeConfig()
	cfg.Threshold = 0
	_, err := NewConfigHolder(cfg, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
