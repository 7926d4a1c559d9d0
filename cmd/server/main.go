package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"

	"medbill/internal/config"
	"medbill/internal/handler"
	"medbill/internal/logger"
	"medbill/internal/mineru"
	"medbill/internal/port"
	"medbill/internal/router"
	"medbill/internal/service"
	"medbill/internal/storage/memory"
	s3storage "medbill/internal/storage/s3"
	"medbill/internal/structurer"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Setup(&cfg.Log)
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Remote clients
	parser := mineru.NewClient(&cfg.MinerU)
	zhipu := structurer.NewZhipu(&cfg.Zhipu)

	// Artifact store
	var artifacts port.ArtifactStore
	switch cfg.Artifacts.Backend {
	case "s3":
		artifacts, err = s3storage.NewStore(&cfg.Artifacts)
		if err != nil {
			return fmt.Errorf("failed to initialize artifact store: %w", err)
		}
	default:
		artifacts = memory.NewStore()
	}

	// Pipeline
	pipeline := service.NewPipelineService(parser, zhipu, artifacts, service.PipelineConfig{
		Concurrency: cfg.Pipeline.Concurrency,
	})

	// Handlers
	convertH := handler.NewConvertHandler(pipeline, cfg.Pipeline.MaxFileSizeMB)
	debugH := handler.NewDebugHandler(pipeline, zhipu, artifacts)
	healthH := handler.NewHealthHandler()

	r := router.Setup(convertH, debugH, healthH, cfg.CORS.AllowedOrigins)

	logger.WithComponent("server").Infof("server starting on %s", cfg.Server.Port)
	if err := r.Run(cfg.Server.Port); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}
