package main

import (
	"flag"

	"go.uber.org/fx"

	"github.com/mneme-app/mneme/internal/daemon"
	"github.com/mneme-app/mneme/internal/device"
)

func main() {
	dirFlag := flag.String("data-dir", "", "data directory (default ~/.mneme)")
	flag.Parse()

	baseDir := *dirFlag
	if baseDir == "" {
		baseDir = device.BaseDir()
	}

	app := fx.New(
		daemon.Module(daemon.Params{BaseDir: baseDir}),
	)

	app.Run()
}
