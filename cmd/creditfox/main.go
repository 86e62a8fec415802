package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CreditFox/CreditFox/internal/pkg/billing"
	"github.com/CreditFox/CreditFox/internal/pkg/cache"
	"github.com/CreditFox/CreditFox/internal/pkg/database"
	"github.com/CreditFox/CreditFox/internal/pkg/env"
	"github.com/CreditFox/CreditFox/internal/pkg/router"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := NewApplication()

	// Containers stop with SIGTERM; drain in-flight webhook deliveries
	// before exiting so no verified event is dropped mid-processing.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-quit
		log.Printf("Received %s, shutting down", sig)
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
	if err := app.Listen(addr); err != nil {
		log.Fatal(err)
	}
	log.Println("Server stopped")
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	billing.SetupStripe()
	if err := billing.SetupCatalog(); err != nil {
		log.Fatalf("invalid product catalog: %v", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1048576, // 1 MiB, webhook payloads are small
	})
	app.Use(recover.New(), logger.New())

	// Fiber's monitor page is a dev tool; deployments scrape the admin
	// counter endpoint instead.
	if env.IsDev() {
		app.Get("/metrics", monitor.New())
	}

	router.InstallRouter(app)

	return app
}
