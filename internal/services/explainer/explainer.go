// Package explainer turns a rules snapshot into a short text for the slow tier.
package explainer

import (
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/domain/service"
	"SignalDesk/pkg/logger"
)

// New picks the OpenAI-compatible provider when it is configured with a key
// and the template otherwise.
func New(provider string, cfg OpenAIConfig, log *logger.Logger, metrics domrepo.Metrics) service.Explainer {
	if provider == "openai" && cfg.APIKey != "" {
		return NewOpenAI(cfg, log, metrics)
	}
	return Template{}
}
