package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aarthig0611/face-recognition-app/internal/config"
	"github.com/aarthig0611/face-recognition-app/internal/notify/mqtt"
	"github.com/aarthig0611/face-recognition-app/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the face recognition web server.
The server exposes the gallery, registration, single-photo analysis and
capture sessions over REST, and streams session events over SSE and
WebSocket. When MQTT_BROKER is set, events are also published to MQTT.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().String("replay-dir", "", "Root directory for directory sources (overrides WEB_REPLAY_DIR)")
}

// applyServeFlags lets flags override the environment.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	if dir := mustGetString(cmd, "replay-dir"); dir != "" {
		cfg.Web.ReplayDir = dir
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyServeFlags(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	a.printGallery()

	if err := a.detector.Health(ctx); err != nil {
		fmt.Printf("Warning: face detector at %s is not healthy: %v\n", cfg.Detector.URL, err)
	}

	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("failed to connect to MQTT: %w", err)
		}
		defer pub.Close()
		a.manager.AddSink(pub)
		fmt.Printf("Publishing events to MQTT %s (topic %s)\n", cfg.MQTT.Broker, cfg.MQTT.Topic)
	}

	server := web.NewServer(cfg, a.manager, a.store)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting face recognition server on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
