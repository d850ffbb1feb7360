package handlers

import (
	"github.com/rs/zerolog"

	"canvas-server/services/media-engine/internal/config"
	domain "canvas-server/services/media-engine/internal/domain/media"
)

// Provider wires HTTP handlers.
type Provider struct {
	Media *MediaHandler
}

func NewProvider(cfg *config.Config, service *domain.Service, sweeper *domain.Sweeper, log zerolog.Logger) *Provider {
	return &Provider{
		Media: NewMediaHandler(cfg, service, sweeper, log),
	}
}
