package cmd

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/threefoldtech/shipgate/internal/config"
	"github.com/threefoldtech/shipgate/internal/gate"
)

// Webhook serves the webhook receiver until ctx is done, logging every delivery
func Webhook(ctx context.Context, conf config.Config, logger zerolog.Logger) error {
	// nothing waits here, deliveries are only logged
	listener := gate.NewListener(conf.Project.Key, conf.Gate.WebhookSecret, logger, gate.WithRetention(0, 0))
	if err := listener.Start(conf.Gate.WebhookListen); err != nil {
		return err
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := listener.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("graceful shutdown complete")
	return nil
}
