package main

import (
	"log/slog"
	"os"

	"captainpulse/internal/app"
	"captainpulse/pkg/contracts"
)

func main() {
	// Create application instance
	application, err := app.NewApplication()
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("Starting "+contracts.GetFullVersionString())

	// Start application
	if err := application.Run(); err != nil {
		slog.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
