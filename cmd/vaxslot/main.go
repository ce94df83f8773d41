// Command vaxslot serves the catalog and appointment APIs from one process.
// It is the only layout in which STORE_BACKEND=memory shares state between
// the two.
package main

import (
	"vaxslot/internal/wiring"
	"vaxslot/pkg/app"
	"vaxslot/pkg/auth"
	"vaxslot/pkg/config"
	"vaxslot/pkg/contracts"
)

const ServiceName = "vaxslot"

func main() {
	cfg := config.Load(ServiceName)
	wiring.Connect(cfg)
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting combined service")
	repos := wiring.NewRepositories(cfg)
	appointments, err := wiring.Appointments(cfg, repos, wiring.Publisher(cfg, ServiceName))
	if err != nil {
		cfg.Log.Fatal("Failed to initialize appointment services", "error", err)
	}

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL),
		contracts.Handlers{wiring.Catalog(cfg, repos), appointments},
	)
	serverApp.Run()
}
