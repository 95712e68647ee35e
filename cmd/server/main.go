package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"calendar-service/internal/app"
	"calendar-service/internal/server"
)

func main() {
	ctx := context.Background()
	_ = godotenv.Load()

	logger := app.NewLogger(os.Getenv("LOG_LEVEL"))

	var store app.Store
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// DB-less runs keep everything in memory; fine for local development.
		logger.Warn("DATABASE_URL not set, using in-memory store")
		store = app.NewMemoryStore()
	} else {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			logger.Error("failed to connect to db", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		store = app.NewPostgresStore(pool)
	}

	appInstance := app.NewApp(store, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(app.RequestLogger(logger))

	// OAuth2 callback (must be before auth middleware)
	router.GET("/oauth2callback", appInstance.GoogleOAuth2CallbackHandler)

	router.Use(app.AuthMiddlewareFromEnv())

	api := router.Group("/api/v1")
	{
		availability := api.Group("/availability")
		{
			availability.POST("/check", appInstance.CheckAvailabilityHandler)
			availability.POST("/suggestions", appInstance.SuggestSlotsHandler)
			availability.POST("/block", appInstance.BlockTimeHandler)
		}

		api.POST("/calendars", appInstance.CreateCalendarHandler)
		api.GET("/calendars/:id", appInstance.GetCalendarHandler)

		api.POST("/events", appInstance.CreateEventHandler)
		api.GET("/events", appInstance.ListEventsHandler)
		api.DELETE("/events/:id", appInstance.DeleteEventHandler)

		api.GET("/settings/:user_id", appInstance.GetSettingsHandler)
		api.PUT("/settings/:user_id", appInstance.PutSettingsHandler)

		// Google Calendar feed
		calendar := api.Group("/calendar")
		{
			calendar.GET("/auth", appInstance.GoogleAuthHandler)
			calendar.GET("/busy", appInstance.GoogleBusyHandler)
		}
	}

	server.Run(router)
}
