package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"player/cmd"
	applog "player/internal/log"
	"player/pkg/build"
)

// main wires the CLI to process signals. Playback shuts down cleanly on
// SIGINT or SIGTERM: the player drains, recordings are finalized and the
// clock publisher sends its last update.
func main() {
	// Development builds carry no ldflags and keep the "unknown" defaults.
	if err := build.Initialize(); err != nil {
		applog.Debugf("build info: %v", err)
	}
	applog.Infof("%s", build.GetBuildFlags())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	if err != nil {
		applog.Fatalf("%v", err)
	}
	applog.Close()
}
