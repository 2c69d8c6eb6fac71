// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command pipeline starts the ConfigPilot patch API server.
//
// ConfigPilot turns natural language instructions into validated,
// single-field configuration patches:
//   - Resolves which service an instruction targets (keywords first,
//     model fallback)
//   - Locates the schema field and proposed value
//   - Validates against the service schema before writing anything
//
// Usage:
//
//	go run ./cmd/pipeline
//	go run ./cmd/pipeline -port 9090
//
// With Ollama:
//
//	OLLAMA_BASE_URL=http://localhost:11434 OLLAMA_MODEL=llama3.2 go run ./cmd/pipeline
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/health
//
//	# Apply a patch
//	curl -X POST http://localhost:8080/v1/patch \
//	  -H "Content-Type: application/json" \
//	  -d '{"input": "set the chat motd to welcome back"}'
//
//	# Patch history for a service
//	curl http://localhost:8080/v1/patch/history/chat | jq
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/ConfigPilot/services/audit"
	"github.com/AleutianAI/ConfigPilot/services/llm"
	"github.com/AleutianAI/ConfigPilot/services/pipeline"
	"github.com/AleutianAI/ConfigPilot/services/pipeline/config"
	"github.com/AleutianAI/ConfigPilot/services/pipeline/locate"
	"github.com/AleutianAI/ConfigPilot/services/pipeline/resolve"
	"github.com/AleutianAI/ConfigPilot/services/store"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext propagation so trace IDs flow in from callers
	// and out through the pipeline spans.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(sdkresource.NewSchemaless(
			attribute.String("service.name", "configpilot-pipeline"),
		)),
	)
	otel.SetTracerProvider(tp)

	rules, err := config.GetServiceRules(context.Background())
	if err != nil {
		slog.Error("Failed to load service rules", slog.String("error", err.Error()))
		os.Exit(1)
	}

	model, err := llm.NewFromEnv()
	if err != nil {
		slog.Error("Failed to create model client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	schemaURL := envOr("SCHEMA_STORE_URL", "http://localhost:8081")
	valuesURL := envOr("VALUES_STORE_URL", "http://localhost:8082")
	schemas := store.NewSchemaClient(schemaURL)
	values := store.NewValuesClient(valuesURL)

	// Audit journal. Graceful degradation: if BadgerDB cannot open,
	// patching continues without history.
	journal := openJournal()

	resolver := resolve.NewResolver(rules, model)
	locator := locate.NewLocator(model, rules.FieldSynonyms)
	svc := pipeline.NewService(resolver, locator, schemas, values, journal)
	handlers := pipeline.NewHandlers(svc)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("configpilot-pipeline"))
	if *debug {
		router.Use(gin.Logger())
	}
	pipeline.RegisterRoutes(router.Group(""), handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	go runWarmup(schemas, values)

	printBanner(*port, schemaURL, valuesURL)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down ConfigPilot pipeline server")
		if journal != nil {
			if err := journal.Close(); err != nil {
				slog.Warn("Failed to close audit journal", slog.String("error", err.Error()))
			}
		}
		if err := tp.Shutdown(context.Background()); err != nil {
			slog.Warn("Failed to shut down tracer provider", slog.String("error", err.Error()))
		}
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Starting ConfigPilot pipeline server", slog.String("address", addr))
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func openJournal() *audit.Journal {
	dir := os.Getenv("AUDIT_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			slog.Warn("Audit journal disabled, no home directory", slog.String("error", err.Error()))
			return nil
		}
		dir = filepath.Join(home, ".configpilot", "audit")
	}
	journal, err := audit.Open(dir)
	if err != nil {
		slog.Warn("Audit journal unavailable, history disabled",
			slog.String("path", dir),
			slog.String("error", err.Error()),
		)
		return nil
	}
	slog.Info("Audit journal opened", slog.String("path", dir))
	return journal
}

// runWarmup checks every dependency concurrently, pulls and warms the
// model when the backend is Ollama, then opens patch traffic. The
// flag is always set eventually so one dead dependency degrades
// behavior instead of wedging the server in 503.
func runWarmup(schemas *store.SchemaClient, values *store.ValuesClient) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			slog.Error("Panic in warmup goroutine recovered",
				slog.Any("panic", r),
				slog.String("stack", string(buf[:n])),
			)
			pipeline.MarkWarmupComplete()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	start := time.Now()

	var warmupGroup errgroup.Group
	warmupGroup.Go(func() error {
		if err := schemas.Healthy(ctx); err != nil {
			return fmt.Errorf("schema store: %w", err)
		}
		return nil
	})
	warmupGroup.Go(func() error {
		if err := values.Healthy(ctx); err != nil {
			return fmt.Errorf("values store: %w", err)
		}
		return nil
	})
	warmupGroup.Go(func() error {
		if os.Getenv("MODEL_PROVIDER") != "" && os.Getenv("MODEL_PROVIDER") != "ollama" {
			return nil
		}
		ollama := llm.NewOllamaClient()
		if err := ollama.WaitForReady(ctx, 2*time.Second); err != nil {
			return fmt.Errorf("ollama: %w", err)
		}
		if err := warmModel(ctx, ollama); err != nil {
			return fmt.Errorf("ollama model: %w", err)
		}
		return nil
	})

	if err := warmupGroup.Wait(); err != nil {
		slog.Warn("Warmup finished with degraded dependencies",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
	} else {
		slog.Info("Warmup completed", slog.Duration("duration", time.Since(start)))
	}
	pipeline.MarkWarmupComplete()
	slog.Info("Server ready to accept patch requests")
}

// warmModel makes sure the configured model is pulled and loaded into
// memory so the first real patch request does not pay cold-start cost.
func warmModel(ctx context.Context, ollama *llm.OllamaClient) error {
	name := ollama.Model()
	present, err := ollama.HasModel(ctx, name)
	if err != nil {
		return err
	}
	if !present {
		slog.Info("Pulling model", slog.String("model", name))
		if err := ollama.EnsureModelPulled(ctx, name); err != nil {
			return err
		}
	}
	_, err = ollama.Generate(ctx, "Reply with OK.", llm.GenerationParams{
		Temperature: llm.Float32Ptr(0.0),
		MaxTokens:   llm.IntPtr(5),
	})
	return err
}

func printBanner(port int, schemaURL, valuesURL string) {
	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                    CONFIGPILOT PIPELINE SERVER                    ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Natural language configuration patching with schema validation.  ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%-5d/health                          │  ║
║  │                                                             │  ║
║  │ # List known services                                       │  ║
║  │ curl http://localhost:%-5d/v1/services | jq                │  ║
║  │                                                             │  ║
║  │ # Apply a patch                                             │  ║
║  │ curl -X POST http://localhost:%-5d/v1/patch \              │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"input": "set the chat motd to hello"}'              │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Schema store: %-50s ║
║  Values store: %-50s ║
║                                                                   ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, port, port, port, schemaURL, valuesURL)
}
