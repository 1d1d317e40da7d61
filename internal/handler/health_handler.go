package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tablemate/notifyd/internal/domain"
	"github.com/tablemate/notifyd/internal/store"
)

const readinessTimeout = 2 * time.Second

// ConnectivityReader exposes the last observed network state.
type ConnectivityReader interface {
	IsOnline() bool
}

func RegisterHealthRoutes(app fiber.Router, st store.Store, connectivity ConnectivityReader) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(st, connectivity))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(st store.Store, connectivity ConnectivityReader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		// A missing key still proves the store answers.
		_, storeErr := st.Get(ctx, store.KeyNotificationQueue)
		if errors.Is(storeErr, domain.ErrNotFound) {
			storeErr = nil
		}

		storeStatus := "ok"
		if storeErr != nil {
			storeStatus = "down"
		}

		networkStatus := "online"
		if connectivity != nil && !connectivity.IsOnline() {
			networkStatus = "offline"
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if storeErr != nil {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": fiber.Map{
				"store":   storeStatus,
				"network": networkStatus,
			},
		})
	}
}
