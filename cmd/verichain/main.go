package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/verichain/internal/api/handler"
	"github.com/jmerrifield20/verichain/internal/certledger"
	"github.com/jmerrifield20/verichain/internal/classifier"
	"github.com/jmerrifield20/verichain/internal/health"
	"github.com/jmerrifield20/verichain/internal/identity"
	"github.com/jmerrifield20/verichain/internal/service"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// grpcServiceName is the service name reported by the gRPC health service.
const grpcServiceName = "verichain.Classifier"

func main() {
	found, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var logger *zap.Logger
	if viper.GetBool("log.development") {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync() //nolint:errcheck

	if !found {
		logger.Warn("no config file found, using defaults and env vars")
	}
	if err := run(logger); err != nil {
		logger.Fatal("verichain exited with error", zap.Error(err))
	}
}

// loadConfig registers defaults and reads verichain.yaml. It reports whether a
// config file was found.
func loadConfig() (bool, error) {
	viper.SetConfigName("verichain")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 5000)
	viper.SetDefault("server.grpc_port", 0)
	viper.SetDefault("server.cors_origins", []string{"*"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("server.max_upload_bytes", 10<<20)
	viper.SetDefault("ledger.capacity", certledger.DefaultCapacity)
	viper.SetDefault("ledger.block_base", certledger.DefaultBlockBase)
	viper.SetDefault("ledger.block_numbering", string(certledger.NumberBySequence))
	viper.SetDefault("classifier.mode", "static")
	viper.SetDefault("classifier.endpoint", "")
	viper.SetDefault("classifier.readiness_url", "")
	viper.SetDefault("classifier.timeout", "30s")
	viper.SetDefault("classifier.cache_size", 256)
	viper.SetDefault("classifier.static_label", "unknown_product")
	viper.SetDefault("classifier.static_confidence", 0.5)
	viper.SetDefault("classifier.oauth.token_url", "")
	viper.SetDefault("classifier.oauth.client_id", "")
	viper.SetDefault("classifier.oauth.client_secret", "")
	viper.SetDefault("classifier.oauth.scopes", []string{})
	viper.SetDefault("health.check_interval", "30s")
	viper.SetDefault("health.fail_threshold", 3)
	viper.SetDefault("auth.token_secret", "")
	viper.SetDefault("auth.token_issuer", "verichain")
	viper.SetDefault("log.development", false)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return false, fmt.Errorf("read config: %w", err)
		}
		return false, nil
	}
	return true, nil
}

func run(logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Ledger ────────────────────────────────────────────────────────────────
	numbering, err := certledger.ParseNumbering(viper.GetString("ledger.block_numbering"))
	if err != nil {
		return err
	}
	ledger := certledger.New(certledger.Config{
		Capacity:  viper.GetInt("ledger.capacity"),
		BlockBase: viper.GetInt64("ledger.block_base"),
		Numbering: numbering,
	}, logger)
	logger.Info("certification ledger ready",
		zap.Int("capacity", ledger.Capacity()),
		zap.String("numbering", string(numbering)),
	)

	// ── Classifier ────────────────────────────────────────────────────────────
	clf, err := newClassifier(logger)
	if err != nil {
		return err
	}
	cached, err := classifier.NewCaching(clf, viper.GetInt("classifier.cache_size"), logger)
	if err != nil {
		return fmt.Errorf("classifier cache: %w", err)
	}

	// ── gRPC health ───────────────────────────────────────────────────────────
	healthSvc := grpchealth.NewServer()
	healthSvc.SetServingStatus(grpcServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	checker := health.New(cached, health.Config{
		CheckInterval: viper.GetDuration("health.check_interval"),
		FailThreshold: viper.GetInt("health.fail_threshold"),
	}, logger)
	checker.SetMetricsRecord(handler.RecordClassifierProbe)
	checker.SetStatusChange(func(loaded bool) {
		handler.SetClassifierLoaded(loaded)
		status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
		if loaded {
			status = grpc_health_v1.HealthCheckResponse_SERVING
		}
		healthSvc.SetServingStatus(grpcServiceName, status)
	})

	// ── Service + handlers ────────────────────────────────────────────────────
	svc := service.NewCertificationService(ledger, cached, health.NewReporter(checker, ledger), logger)
	svc.SetCertifiedHook(handler.RecordCertification)
	svc.SetClassifiedHook(handler.RecordClassification)

	var tokens *identity.TokenIssuer
	if secret := viper.GetString("auth.token_secret"); secret != "" {
		tokens, err = identity.NewTokenIssuer([]byte(secret), viper.GetString("auth.token_issuer"), 0)
		if err != nil {
			return fmt.Errorf("operator tokens: %w", err)
		}
		logger.Info("operator auth enabled for POST /certify")
	} else {
		logger.Warn("operator auth disabled (set auth.token_secret to enable)")
	}

	certHandler := handler.NewCertificationHandler(svc, tokens, logger)

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("server.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	router.Use(handler.SecurityHeaders())
	router.Use(handler.BodyLimit(viper.GetInt64("server.max_upload_bytes")))

	if rps := viper.GetInt("server.rate_limit_rps"); rps > 0 {
		router.Use(handler.RateLimiter(ctx, rps, rps*2))
	}

	router.Use(handler.RequestID())
	router.Use(handler.PrometheusMiddleware())
	router.Use(handler.RequestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())
	certHandler.Register(router)

	httpPort := viper.GetInt("server.port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── gRPC server (optional) ───────────────────────────────────────────────
	var (
		grpcServer *grpc.Server
		grpcLis    net.Listener
	)
	grpcPort := viper.GetInt("server.grpc_port")
	if grpcPort > 0 {
		grpcLis, err = net.Listen("tcp", fmt.Sprintf(":%d", grpcPort))
		if err != nil {
			return fmt.Errorf("gRPC listen on :%d: %w", grpcPort, err)
		}
		grpcServer = grpc.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthSvc)
		reflection.Register(grpcServer)
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return checker.Start(gctx)
	})

	g.Go(func() error {
		logger.Info("verichain HTTP listening", zap.Int("port", httpPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down verichain...")
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutCtx); err != nil {
			logger.Error("HTTP shutdown error", zap.Error(err))
		}
		return nil
	})

	if grpcServer != nil {
		g.Go(func() error {
			logger.Info("verichain gRPC health listening", zap.Int("port", grpcPort))
			return grpcServer.Serve(grpcLis)
		})
		g.Go(func() error {
			<-gctx.Done()
			healthSvc.Shutdown()
			grpcServer.GracefulStop()
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("verichain stopped")
	return nil
}

func newClassifier(logger *zap.Logger) (classifier.Classifier, error) {
	switch mode := viper.GetString("classifier.mode"); mode {
	case "static":
		label := viper.GetString("classifier.static_label")
		logger.Warn("using static classifier; every image gets the same label", zap.String("label", label))
		return classifier.NewStatic(label, viper.GetFloat64("classifier.static_confidence")), nil
	case "http":
		c, err := classifier.NewHTTP(classifier.HTTPConfig{
			Endpoint:     viper.GetString("classifier.endpoint"),
			ReadinessURL: viper.GetString("classifier.readiness_url"),
			Timeout:      viper.GetDuration("classifier.timeout"),
			OAuth: classifier.OAuthConfig{
				TokenURL:     viper.GetString("classifier.oauth.token_url"),
				ClientID:     viper.GetString("classifier.oauth.client_id"),
				ClientSecret: viper.GetString("classifier.oauth.client_secret"),
				Scopes:       viper.GetStringSlice("classifier.oauth.scopes"),
			},
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("http classifier: %w", err)
		}
		logger.Info("using HTTP classifier", zap.String("endpoint", viper.GetString("classifier.endpoint")))
		return c, nil
	default:
		return nil, fmt.Errorf("unknown classifier.mode %q", mode)
	}
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
