package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/kimgyuhyun/ott-project-sub001/app/repository"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/cache"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/database"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/env"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/gateway"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/idempotency"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/ledger"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/membership"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/router"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/scheduler"
)

func main() {
	app, billing := NewApplication()

	billing.Start()
	defer billing.Stop()

	// graceful shutdown on SIGINT/SIGTERM
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		billing.Stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *scheduler.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 1048576, // 1 MiB, JSON API only
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app, newBillingScheduler()
}

// newBillingScheduler wires the renewal loop. The scheduler and the webhook
// path share one membership repository so both observe the same rows.
func newBillingScheduler() *scheduler.Manager {
	db := database.GetDB()
	plans := repository.GetGlobalFactory().GetPlanRepository()
	subs := membership.NewRepository(db)
	members := membership.NewService(subs, plans, nil, nil)
	ledgerSvc := ledger.NewServiceFromDB(db, members)
	guard := idempotency.NewGuard(idempotency.NewRepository(db))
	return scheduler.NewManager(subs, members, plans, ledgerSvc, gateway.NewHTTPClientFromEnv(), guard)
}
