package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"screentime/internal/apiclient"
	"screentime/internal/config"
	"screentime/internal/dashboard"
	"screentime/internal/feed"
	"screentime/internal/logger"
)

func main() {
	cfg := config.LoadClient()

	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open log file:", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger.InitWriter(logFile, cfg.LogLevel, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := apiclient.New(cfg.BackendURL, cfg.AccessToken)
	me, err := api.Me(ctx)
	if err != nil {
		if apiclient.IsUnauthorized(err) {
			fmt.Fprintln(os.Stderr, "access token rejected, sign in again")
		} else {
			fmt.Fprintln(os.Stderr, "load profile:", err)
		}
		os.Exit(1)
	}

	userID := me.ID
	if cfg.UserOverride != "" {
		userID, err = uuid.Parse(cfg.UserOverride)
		if err != nil {
			fmt.Fprintln(os.Stderr, "DASHBOARD_USER_ID:", err)
			os.Exit(1)
		}
	}

	endpoint, err := feed.EndpointFromBase(cfg.BackendURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	usageFeed := feed.New(endpoint, feed.Options{
		ReconnectDelay: cfg.ReconnectDelay,
		MaxRetries:     cfg.MaxRetries,
		Header:         api.AuthHeader(),
	})

	m := dashboard.New(ctx, dashboard.Deps{
		UserID:    userID,
		ReadOnly:  userID != me.ID,
		Backend:   api,
		Feed:      usageFeed,
		MaxPasses: cfg.SyncMaxPasses,
	})
	defer m.Shutdown()

	logger.Info("dashboard started", "user_id", userID, "read_only", userID != me.ID)
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		logger.Error("dashboard exited", "error", err)
		fmt.Fprintln(os.Stderr, "dashboard:", err)
	}
}
