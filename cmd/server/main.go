package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agent-hub/backend/api/handlers"
	"github.com/agent-hub/backend/internal/bridge"
	"github.com/agent-hub/backend/internal/config"
	"github.com/agent-hub/backend/internal/handler"
	"github.com/agent-hub/backend/internal/hub"
	"github.com/agent-hub/backend/internal/llm"
	"github.com/agent-hub/backend/internal/logger"
	"github.com/agent-hub/backend/internal/router"
	"github.com/agent-hub/backend/internal/transcript"
	"github.com/agent-hub/backend/internal/ws"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "agent-hub: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("agent-hub", flag.ContinueOnError)
	configPath := fs.StringP("config", "c", os.Getenv("CONFIG_PATH"), "Path to YAML config file")
	addr := fs.String("addr", "", "Listen address, overrides server.host and server.port")
	logLevel := fs.String("log-level", "", "Log level, overrides log.level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize transcript store
	store, err := transcript.Open(ctx, cfg.Transcript.Driver, cfg.Transcript.DSN)
	if err != nil {
		return fmt.Errorf("failed to open transcript store: %w", err)
	}
	defer store.Close()

	// Initialize LLM client
	var llmClient *llm.Client
	if cfg.LLM.APIKey != "" {
		llmClient, err = llm.NewClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model, log.Named("llm"))
		if err != nil {
			return err
		}
		llmClient.Descriptions = descriptions(cfg.Handlers)
	} else {
		log.Warn("no LLM API key configured, using static replies and keyword routing only")
	}

	registry, err := buildRegistry(cfg, llmClient)
	if err != nil {
		return err
	}

	var classifier router.Classifier
	if llmClient != nil {
		classifier = llmClient
	}
	rt := router.New(routerConfig(cfg), classifier, log.Named("router"))

	// Initialize hub
	h := hub.New(rt, registry, hub.Config{
		HistoryWindow:  cfg.Hub.HistoryWindow,
		InboxSize:      cfg.Hub.InboxSize,
		HandlerTimeout: cfg.Hub.HandlerTimeout,
		Typing:         cfg.Hub.TypingEnabled(),
		Welcome:        cfg.Hub.Welcome,
	}, log.Named("hub"))
	h.SetRecorder(store)
	defer h.Close()

	// Initialize external bridge
	var ext handlers.Bridge
	var br *bridge.Bridge
	if cfg.Bridge.Enabled {
		br = bridge.New(bridge.Config{
			URL:            cfg.Bridge.URL,
			SessionID:      cfg.Bridge.SessionID,
			ConnectTimeout: cfg.Bridge.ConnectTimeout,
			PingInterval:   cfg.Bridge.PingInterval,
			Backoff: bridge.Backoff{
				Base:        cfg.Bridge.BackoffBase,
				Max:         cfg.Bridge.BackoffMax,
				MaxAttempts: cfg.Bridge.MaxAttempts,
			},
			Hello: cfg.Bridge.Hello,
		}, h, log)
		ext = br
	}

	// Initialize handlers
	if len(cfg.Server.AllowedOrigins) > 0 {
		ws.SetCheckOrigin(originChecker(cfg.Server.AllowedOrigins))
	}
	var transcripts handlers.TranscriptLister
	if cfg.Transcript.Driver != transcript.DriverNone {
		transcripts = store
	}
	healthHandler := handlers.NewHealthHandler(h, rt, ext, descriptions(cfg.Handlers))
	sessionHandler := handlers.NewSessionHandler(h, transcripts, log)
	wsHandler := handlers.NewWebSocketHandler(ws.NewHandler(h, log.Named("ws")), log)
	externalHandler := handlers.NewExternalHandler(ext, log)

	// Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(logger.GinMiddleware(log.Named("http")), gin.Recovery())
	r.Use(corsMiddleware(cfg.Server.AllowedOrigins))

	api := r.Group("")
	{
		healthHandler.RegisterRoutes(api)
		sessionHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
		externalHandler.RegisterRoutes(api)
	}

	listen := *addr
	if listen == "" {
		listen = net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	}
	srv := &http.Server{Addr: listen, Handler: r}

	if br != nil {
		if err := br.Start(ctx); err != nil {
			return fmt.Errorf("failed to start bridge: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting server", zap.String("addr", listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		if br != nil {
			br.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildRegistry registers one handler per configured tag. Handlers with a
// system prompt use the LLM when one is configured.
func buildRegistry(cfg *config.Config, completer *llm.Client) (*handler.Registry, error) {
	registry := handler.NewRegistry()
	for _, hc := range cfg.Handlers {
		label := hc.Label
		if label == "" {
			label = hc.Tag
		}

		var hd handler.Handler
		if completer != nil && hc.SystemPrompt != "" {
			hd = handler.NewPromptHandler(label, hc.SystemPrompt, completer, cfg.LLM.ContextMessages)
		} else {
			hd = handler.NewStaticHandler(label, hc.Reply)
		}
		if err := registry.Register(hc.Tag, hd); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func routerConfig(cfg *config.Config) router.Config {
	rc := router.Config{
		DefaultHandler:     cfg.Router.DefaultHandler,
		FallbackConfidence: cfg.Router.FallbackConfidence,
		FallbackTimeout:    cfg.Router.FallbackTimeout,
		ContextMessages:    cfg.Router.ContextMessages,
		MentionPrefix:      cfg.Router.MentionPrefix,
		KeywordBase:        cfg.Router.KeywordBase,
		KeywordIncrement:   cfg.Router.KeywordIncrement,
		KeywordCap:         cfg.Router.KeywordCap,
	}
	for _, hc := range cfg.Handlers {
		rc.Handlers = append(rc.Handlers, hc.Tag)
		if len(hc.Keywords) > 0 {
			rc.Rules = append(rc.Rules, router.Rule{
				Handler:  hc.Tag,
				Keywords: hc.Keywords,
				Base:     hc.KeywordBase,
			})
		}
	}
	return rc
}

func descriptions(hcs []config.HandlerConfig) map[string]string {
	out := make(map[string]string, len(hcs))
	for _, hc := range hcs {
		out[hc.Tag] = hc.Description
	}
	return out
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

// corsMiddleware returns a CORS middleware. An empty list allows any origin.
func corsMiddleware(allowed []string) gin.HandlerFunc {
	check := originChecker(allowed)
	return func(c *gin.Context) {
		origin := "*"
		if len(allowed) > 0 {
			if !check(c.Request) {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			if o := c.Request.Header.Get("Origin"); o != "" {
				origin = o
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
