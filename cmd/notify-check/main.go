// Command notify-check sends one message through the configured notification
// transport. It is an operational smoke test for chat credentials and contacts.
//
// Usage:
//
//	notify-check -config configs/config.yaml -to ou_xxx [-message "hello"]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/record-workflow/internal/config"
	"github.com/garyjia/record-workflow/internal/container"
	"github.com/garyjia/record-workflow/internal/infrastructure/external/lark"
	"github.com/garyjia/record-workflow/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	to := flag.String("to", "", "recipient contact (open_id, chat_id, union_id, email or user_id)")
	message := flag.String("message", "", "message text")
	timeout := flag.Duration("timeout", 15*time.Second, "send timeout")
	flag.Parse()

	if *to == "" {
		fmt.Fprintln(os.Stderr, "-to is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewDevelopmentLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	containerCfg, err := cfg.ToContainerConfig()
	if err != nil {
		logger.Fatal("Failed to build container config", zap.Error(err))
	}
	transport, err := container.ProvideTransport(containerCfg, logger)
	if err != nil {
		logger.Fatal("Failed to create transport", zap.Error(err))
	}

	text := *message
	if text == "" {
		text = fmt.Sprintf("Notification check from record workflow at %s", time.Now().Format(time.RFC3339))
	}

	logger.Info("Sending test notification",
		zap.String("transport", cfg.Notification.Transport),
		zap.String("receive_id_type", lark.ReceiveIDType(*to)),
		zap.String("to", *to))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := transport.Send(ctx, *to, text); err != nil {
		logger.Fatal("Notification failed", zap.Error(err))
	}
	logger.Info("Notification delivered")
}
