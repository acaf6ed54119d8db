package app

import (
	"context"
	"log/slog"
	"os"

	"github.com/shandysiswandi/otplogin/internal/login"
)

func (a *App) initModules() {
	if a.config.GetBool("modules.login.enabled") {
		mod, err := login.New(login.Dependency{
			Ctx:         a.ctx,
			Config:      a.config,
			Instrument:  a.ins,
			UUID:        a.uuid,
			UID:         a.uid,
			Clock:       a.clock,
			Goroutine:   a.goroutine,
			Validator:   a.validator,
			Router:      a.router,
			Messaging:   a.messaging,
			Idempotency: a.idemp,
		})
		if err != nil {
			slog.Error("failed to init module login", "error", err)
			os.Exit(1)
		}
		a.login = mod

		// open event streams only end when their flows close
		a.sseServer.RegisterOnShutdown(func() {
			if err := mod.Close(context.Background()); err != nil {
				slog.Error("failed to close login flows", "error", err)
			}
		})
	}
}
