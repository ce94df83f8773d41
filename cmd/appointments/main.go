package main

import (
	"vaxslot/internal/wiring"
	"vaxslot/pkg/app"
	"vaxslot/pkg/auth"
	"vaxslot/pkg/config"
)

const ServiceName = "appointments"

func main() {
	cfg := config.Load(ServiceName)
	wiring.Connect(cfg)
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Appointments service")
	handlers, err := wiring.Appointments(cfg, wiring.NewRepositories(cfg), wiring.Publisher(cfg, ServiceName))
	if err != nil {
		cfg.Log.Fatal("Failed to initialize appointment services", "error", err)
	}

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL), handlers)
	serverApp.Run()
}
