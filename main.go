package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/example/pulse-dashboard/config"
	"github.com/example/pulse-dashboard/modules/api"
	"github.com/example/pulse-dashboard/modules/broadcast"
	"github.com/example/pulse-dashboard/modules/channel"
	"github.com/example/pulse-dashboard/modules/poller"
	"github.com/example/pulse-dashboard/modules/render"
	"github.com/example/pulse-dashboard/modules/search"
	"github.com/example/pulse-dashboard/modules/toast"
	"github.com/example/pulse-dashboard/modules/upstream"
	"github.com/example/pulse-dashboard/modules/view"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
	"github.com/jonboulle/clockwork"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log.Println("=== PulseAI Support Dashboard - Fiber + EventBus Pubsub ===")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(logLevel(cfg.LogLevel)),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	logger := app.Logger()

	// Shared collaborators
	clock := clockwork.NewRealClock()
	client := upstream.NewClient(cfg.UpstreamURL, upstream.DefaultTimeout)
	toaster := toast.New(cfg.NotificationTimeout, toast.WithClock(clock))
	service := view.NewService(
		render.New(cfg.TruncateLimit),
		client,
		toaster,
		toast.LogNotifier{Logger: logger},
		logger,
	)
	controller := search.NewController(client, service, toaster, logger, search.Options{
		Debounce: cfg.SearchDebounce,
		Clock:    clock,
	})

	// Create modules
	channelModule := channel.NewModule(&cfg, logger)
	pollerModule := poller.NewModule(cfg.UpdateInterval, channelModule, client, logger)
	viewModule := view.NewModule(service, controller, clock, logger)
	broadcastModule := broadcast.NewModule(logger)
	apiModule := api.NewModule(cfg.Port, logger)

	// These collaborators are not exposed via ServiceContainer.
	apiModule.SetDashboard(service)
	apiModule.SetSearch(controller)
	apiModule.SetNotifications(toaster)
	apiModule.SetChannel(channelModule)
	apiModule.SetChatLinker(client)
	apiModule.SetHub(broadcastModule.Hub())

	// Register modules with the framework.
	// Order: emitters first, then consumers, then the driving adapter
	// - channel: push channel (EventEmitterModule)
	// - poller: 30s fallback while the channel is down (EventEmitterModule)
	// - view: panel state (EventConsumerModule + EventEmitterModule)
	// - broadcast: viewer hub (EventConsumerModule)
	// - api: Fiber HTTP/WebSocket server
	app.Register(channelModule)
	app.Register(pollerModule)
	app.Register(viewModule)
	app.Register(broadcastModule)
	app.Register(apiModule)

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

// logLevel maps a validated LOG_LEVEL value to the framework level.
func logLevel(level string) mono.LogLevel {
	switch level {
	case "debug":
		return mono.LogLevelDebug
	case "warn":
		return mono.LogLevelWarn
	case "error":
		return mono.LogLevelError
	default:
		return mono.LogLevelInfo
	}
}

func printStartupInfo(cfg config.Config) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Architecture:")
	log.Println("  - HTTP Framework: Fiber with WebSocket support")
	log.Println("  - Event Bus: NATS JetStream (internal pubsub)")
	log.Printf("  - Upstream: %s", cfg.UpstreamURL)
	log.Printf("  - Push channel: %s", channel.PushURL(cfg.UpstreamURL))
	log.Println("")
	log.Println("Event flow:")
	log.Println("  - ChannelFrame events (stats, new_message, status) -> view module, in arrival order")
	log.Println("  - StatsPolled events -> view module -> PanelChanged")
	log.Println("  - new_message frames -> toast + message refresh")
	log.Println("  - PanelChanged events -> broadcast module -> live viewers")
	log.Println("")
	log.Printf("HTTP Endpoints (http://localhost:%s):", cfg.Port)
	log.Println("  GET    /                    - Dashboard page")
	log.Println("  GET    /health              - Health check")
	log.Println("  GET    /fragments/:panel    - Rendered panel (stats, chats, messages, notifications, status)")
	log.Println("  GET    /api/view            - Dashboard state as JSON")
	log.Println("  POST   /search              - Search box input {\"q\": \"...\"}")
	log.Println("  DELETE /notifications/:id   - Dismiss a notification")
	log.Println("  GET    /open/:username      - Open the upstream chat page")
	log.Println("  POST   /reload              - Reconnect and refresh everything")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/live):", cfg.Port)
	log.Println("  Optional filter: /live?panels=stats,chats")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
