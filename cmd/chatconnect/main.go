package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"chatconnect/internal/app"
	"chatconnect/internal/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("CHATCONNECT_CONFIG_FILE"), "path to a JSON config file")
	flag.Parse()

	code, err := run(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	os.Exit(code)
}

// run starts the server and blocks until a shutdown signal has been handled
func run(configPath string) (int, error) {
	cfg, err := config.LoadConfigWithPrecedence(configPath)
	if err != nil {
		if cfg == nil {
			return 1, err
		}
		log.Printf("Config file ignored: %v", err)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return 1, fmt.Errorf("failed to create application: %w", err)
	}

	if err := application.Start(context.Background()); err != nil {
		return 1, fmt.Errorf("failed to start application: %w", err)
	}

	log.Printf("Serving WebSocket on ws://%s/ws", application.GetAddr())
	log.Println("Press Ctrl+C to shutdown")

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.HTTP.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"chatconnect": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return application.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("chatconnect exited with code: %d", exitCode)
	return exitCode, nil
}
