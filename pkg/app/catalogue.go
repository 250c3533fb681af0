package app

import (
	"context"

	"github.com/flemzord/toolgate/internal/config"
	"github.com/flemzord/toolgate/internal/logging"
	"github.com/flemzord/toolgate/internal/security"
	"github.com/flemzord/toolgate/internal/tool"
)

// Catalogue discovers the tool catalogue without starting a session. The
// tools that were found are returned even when some servers failed; the
// error then wraps tool.ErrDiscoveryFailure.
func Catalogue(ctx context.Context, cfg *config.Config, lookup func(string) (string, bool)) ([]tool.Descriptor, error) {
	if lookup == nil {
		lookup = RunParams{}.lookupEnv()
	}
	rt := &runtime{cfg: cfg}
	defer func() { _ = rt.Close(context.Background()) }()

	rt.creds = loadCredentials(cfg, lookup)
	rt.redactor = security.NewRedactor()
	rt.redactor.SyncCredentials(rt.creds)

	logger, closeLog, err := logging.New(cfg.Logging, rt.redactor)
	if err != nil {
		return nil, err
	}
	rt.onClose("log output", func(context.Context) error { return closeLog() })
	rt.logger = logger

	if err := rt.buildRegistry(ctx); err != nil {
		return nil, err
	}
	return rt.registry.Catalogue(), rt.discoveryErr
}
