package main

import (
	"fmt"
	"log"

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

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
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
	app.Get("/metrics", monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
