package main

import (
	"context"
	"time"

	"lenddash-backend/lib/configutil"
	"lenddash-backend/lib/serviceutil"
	"lenddash-backend/lib/telemetry"
	"lenddash-backend/services/dashboard"
	"lenddash-backend/services/dashboard/sources"

	"github.com/gin-gonic/gin"
)

type Config struct {
	Port            int    `json:"port"`
	CacheTtlSeconds int    `json:"cache_ttl_seconds"`
	GinMode         string `json:"gin_mode"`

	Eli sources.PortalConfig `json:"eli"`
	Nbl sources.PortalConfig `json:"nbl"`
	Cp  sources.PortalConfig `json:"cp"`
	Lr  sources.PortalConfig `json:"lr"`

	Targets dashboard.Targets `json:"targets"`
}

func main() {
	ctx := serviceutil.SignalContext()

	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if config.Port == 0 {
		config.Port = 8450
	}
	if config.GinMode != "" {
		gin.SetMode(config.GinMode)
	}

	t, err := telemetry.SetupFromEnv(ctx, "dashboard")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer t.Shutdown(context.Background())

	adapters := []dashboard.Adapter{}
	for _, src := range sources.ForConfig(config.Eli, config.Nbl, config.Cp, config.Lr) {
		adapters = append(adapters, src)
	}

	service := dashboard.NewService(dashboard.Options{
		Sources:  adapters,
		CacheTTL: time.Duration(config.CacheTtlSeconds) * time.Second,
		Targets:  config.Targets,
	})
	go serviceutil.StartHttpServer(config.Port, service.Router())

	<-ctx.Done()
}
