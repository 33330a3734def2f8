package usecase

import (
	"context"
	"fmt"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/services/normalizer"
	"SignalDesk/pkg/logger"
)

// AdminService exposes runtime configuration and event maintenance.
type AdminService struct {
	config *ConfigHolder
	events domrepo.EventStore
	log    *logger.Logger
}

func NewAdminService(config *ConfigHolder, events domrepo.EventStore, log *logger.Logger) *AdminService {
	if log == nil {
		log = logger.Nop()
	}
	return &AdminService{config: config, events: events, log: log.With("admin")}
}

func (a *AdminService) Config() models.RuntimeConfig { return a.config.Current() }

func (a *AdminService) ReplaceConfig(ctx context.Context, data []byte) (models.RuntimeConfig, error) {
	return a.config.Replace(ctx, data)
}

// DeleteEvent removes one stored event. Removing nothing is not an error.
func (a *AdminService) DeleteEvent(ctx context.Context, symbol, eventID string) (models.DeleteEventResponse, error) {
	symbol = normalizer.NormalizeSymbol(symbol)
	n, err := a.events.Delete(ctx, symbol, eventID)
	if err != nil {
		return models.DeleteEventResponse{}, fmt.Errorf("delete event %s/%s: %w", symbol, eventID, err)
	}
	a.log.Info("event deleted", logger.String("symbol", symbol), logger.String("event_id", eventID), logger.Int("removed", n))
	return models.DeleteEventResponse{Symbol: symbol, EventID: eventID, Removed: n}, nil
}
