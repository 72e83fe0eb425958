// Command gateway boots the policy-enforcing reverse proxy: it loads and
// validates runtime configuration, connects the audit store, external UI
// datastore, and quota store, wires the policy engine and usage pipeline,
// and serves the proxy and admin HTTP surfaces. Grounded on gateway/app.go's
// boot sequence (env load, DB init, gin engine construction, route mount),
// generalized from a single-DB Fiber/Gin split into one Gin process backed
// by Postgres, Redis, and a second read-only Postgres connection.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/admin"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/cache"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/config"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/configbus"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/db"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/middleware"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/obslog"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/pipeline"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/policy"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/proxy"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/quota"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/tracing"
	"github.com/ptrpspeen/openwebui-openrouter-gateway/internal/webuidb"
)

func main() {
	_ = godotenv.Load()

	env := config.EnvDefaults()
	if err := config.Validate(env); err != nil {
		log.Fatalf("boot: %v", err)
	}

	auditStore, err := db.Open(env["DATABASE_URL"])
	if err != nil {
		log.Fatalf("boot: open audit store: %v", err)
	}
	defer auditStore.Close()

	runtimeValues, err := loadSystemConfig(auditStore, env)
	if err != nil {
		log.Fatalf("boot: load system config: %v", err)
	}
	if err := config.Validate(runtimeValues); err != nil {
		log.Fatalf("boot: %v", err)
	}
	runtime := config.NewRuntime()
	runtime.Reload(runtimeValues)

	uiStore, err := webuidb.Open(runtimeValues["WEBUI_DATABASE_URL"])
	if err != nil {
		log.Fatalf("boot: open external UI datastore: %v", err)
	}
	defer uiStore.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	quotaStore, err := quota.Open(ctx, runtimeValues["REDIS_URL"])
	if err != nil {
		log.Fatalf("boot: open quota store: %v", err)
	}
	defer quotaStore.Client.Close()

	bus := configbus.New(quotaStore.Client)

	tp := tracing.InitTracer(ctx)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Printf("tracing: shutdown: %v", err)
		}
	}()

	cacheLayer := cache.New()
	engine := policy.New(auditStore, auditStore, uiStore, quotaStore, cacheLayer)
	pipe := pipeline.New(quotaStore, auditStore)
	proxyHandler := proxy.New(runtime, auditStore, engine, pipe)
	adminSurface := admin.New(auditStore, uiStore, quotaStore, bus, cacheLayer, runtime)

	go pipe.RunDrainLoop(ctx)
	go func() {
		if err := bus.Subscribe(ctx, func(notice configbus.Notice) {
			reloaded, err := loadSystemConfig(auditStore, env)
			if err != nil {
				obslog.Global().Warn("config reload after notice: %v", err)
				return
			}
			runtime.Reload(reloaded)
			obslog.Global().Info("config reloaded: %v", notice.Changed)
		}); err != nil && ctx.Err() == nil {
			obslog.Global().Error("config bus subscribe stopped: %v", err)
		}
	}()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(tracing.Middleware())
	r.Use(middleware.Prometheus())
	r.Use(middleware.RequestLogger())

	r.GET("/health", func(c *gin.Context) { c.Status(200) })

	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.AdminAuth(runtime))
	adminSurface.Register(adminGroup)

	r.Any("/v1/*path", proxyHandler.ServeHTTP)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("starting gateway on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}

// loadSystemConfig reads the persisted SystemConfig rows, seeding from the
// environment any recognized key that has no row yet, and returns the
// merged effective config (rows take precedence over the environment).
func loadSystemConfig(store *db.Store, env map[string]string) (map[string]string, error) {
	rows, err := store.ListSystemConfig()
	if err != nil {
		return nil, err
	}

	merged := map[string]string{}
	for k, v := range env {
		merged[k] = v
	}
	for _, r := range rows {
		merged[r.Key] = r.Value
	}

	seeded := map[string]string{}
	rowKeys := map[string]bool{}
	for _, r := range rows {
		rowKeys[r.Key] = true
	}
	for k, v := range env {
		if !rowKeys[k] {
			seeded[k] = v
		}
	}
	if len(seeded) > 0 {
		if err := store.UpsertSystemConfigBatch(seeded); err != nil {
			return nil, err
		}
	}

	return merged, nil
}
