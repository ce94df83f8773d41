package main

import (
	"vaxslot/internal/wiring"
	"vaxslot/pkg/app"
	"vaxslot/pkg/auth"
	"vaxslot/pkg/config"
)

const ServiceName = "catalog"

func main() {
	cfg := config.Load(ServiceName)
	wiring.Connect(cfg)
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Catalog service")
	handlers := wiring.Catalog(cfg, wiring.NewRepositories(cfg))

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL), handlers)
	serverApp.Run()
}
