package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/services/rules"
	"SignalDesk/pkg/logger"
)

// ConfigHolder publishes the current RuntimeConfig to every reader through
// an atomic pointer. A replacement is validated and persisted before the swap,
// so readers observe either the old or the new value.
type ConfigHolder struct {
	cur   atomic.Pointer[models.RuntimeConfig]
	store domrepo.RuntimeConfigStore
	log   *logger.Logger
}

func NewConfigHolder(initial models.RuntimeConfig, store domrepo.RuntimeConfigStore, log *logger.Logger) (*ConfigHolder, error) {
	if err := rules.ValidateConfig(initial); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if log == nil {
		log = logger.Nop()
	}
	h := &ConfigHolder{store: store, log: log.With("config")}
	cfg := initial.Clone()
	h.cur.Store(&cfg)
	return h, nil
}

// Current returns the active configuration. Callers must not mutate its maps.
func (h *ConfigHolder) Current() models.RuntimeConfig { return *h.cur.Load() }

// Load replaces the initial value with the persisted document, if any.
// A persisted document that fails validation is a fatal error.
func (h *ConfigHolder) Load(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	data, err := h.store.Load(ctx)
	if errors.Is(err, domrepo.ErrNotFound) {
		h.log.Info("no persisted runtime config, using file defaults")
		return nil
	}
	if err != nil {
		h.log.Warn("runtime config store unavailable, using file defaults", logger.Error(err))
		return nil
	}
	cfg, err := models.DecodeRuntimeConfig(data)
	if err != nil {
		return fmt.Errorf("%w: persisted document: %v", ErrInvalidConfig, err)
	}
	h.cur.Store(&cfg)
	h.log.Info("runtime config loaded", logger.Strings("watchlist", cfg.WatchlistSymbols))
	return nil
}

// Replace decodes data over the defaults, validates, persists and swaps.
func (h *ConfigHolder) Replace(ctx context.Context, data []byte) (models.RuntimeConfig, error) {
	cfg, err := models.DecodeRuntimeConfig(data)
	if err != nil {
		return models.RuntimeConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := rules.ValidateConfig(cfg); err != nil {
		return models.RuntimeConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if h.store != nil {
		canonical, err := json.Marshal(cfg)
		if err != nil {
			return models.RuntimeConfig{}, fmt.Errorf("encode runtime config: %w", err)
		}
		if err := h.store.Save(ctx, canonical); err != nil {
			return models.RuntimeConfig{}, fmt.Errorf("persist runtime config: %w", err)
		}
	}
	h.cur.Store(&cfg)
	h.log.Info("runtime config replaced",
		logger.Strings("watchlist", cfg.WatchlistSymbols),
		logger.Float64("threshold", cfg.Threshold))
	return cfg, nil
}
