package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/chi-demo/app"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vlinder/social-grant/pkg/application"
	applicationapi "github.com/vlinder/social-grant/pkg/application/api"
	"github.com/vlinder/social-grant/pkg/assertion"
	"github.com/vlinder/social-grant/pkg/config"
	"github.com/vlinder/social-grant/pkg/credential"
	"github.com/vlinder/social-grant/pkg/esignet"
	esignetapi "github.com/vlinder/social-grant/pkg/esignet/api"
	"github.com/vlinder/social-grant/pkg/events"
	"github.com/vlinder/social-grant/pkg/metrics"
	"github.com/vlinder/social-grant/pkg/notice"
	noticeapi "github.com/vlinder/social-grant/pkg/notice/api"
	"github.com/vlinder/social-grant/pkg/notification"
	"github.com/vlinder/social-grant/pkg/outbox"
	"github.com/vlinder/social-grant/pkg/ratelimit"
	"github.com/vlinder/social-grant/pkg/upload"
	"github.com/vlinder/social-grant/pkg/userinfo"
)

const welcomeMessage = "Welcome to Social Grant Application REST APIs!!"

type Services struct {
	applicationService *application.ApplicationService
	noticeService      *notice.Service
	esignetClient      *esignet.Client
	uploadStore        upload.Store
	dispatcher         *outbox.Dispatcher
	metrics            *metrics.Metrics
	closers            []func()
}

func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting Social Grant Service")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to read configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := initializeServices(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize services", "error", err)
		os.Exit(1)
	}
	defer services.Close()

	if err := services.dispatcher.Start(ctx); err != nil {
		slog.Error("Failed to start outbox dispatcher", "error", err)
		os.Exit(1)
	}
	defer services.dispatcher.Stop()

	server := app.NewApp(
		app.WithCORS(&cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           cfg.CORS.MaxAge,
		}),
	)
	setupRoutes(server.R, services, cfg)

	slog.Info("Social Grant Service Ready",
		"store", cfg.Store,
		"mailTransport", cfg.Email.Transport,
		"kafka", cfg.Kafka.Enabled(),
		"s3", cfg.Storage.UseS3(),
		"adminAuth", cfg.AdminAuth.Enabled,
	)

	server.Run()
}

func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	s := &Services{}
	if cfg.Metrics.Enabled {
		s.metrics = metrics.New()
	}

	repo, seq, store, err := initializeStorage(ctx, cfg, s)
	if err != nil {
		s.Close()
		return nil, err
	}

	var publisher application.EventPublisher
	managerOpts := []notification.NotificationManagerOption{}
	switch cfg.Email.Transport {
	case config.MailTransportSMTP:
		managerOpts = append(managerOpts, notification.WithSMTP(cfg.Email.ToSMTPConfig()))
	default:
		managerOpts = append(managerOpts, notification.WithNexus(cfg.Nexus.ToNexusConfig(cfg.Email), nil))
	}
	if cfg.Kafka.Enabled() {
		client, err := events.NewClient(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create kafka client: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		publisher = events.NewKafkaPublisher(client, cfg.Kafka.EventsTopic)
		managerOpts = append(managerOpts, notification.WithEvents(client, cfg.Kafka.NoticesTopic))
		slog.Info("Kafka events enabled", "brokers", cfg.Kafka.Brokers)
	}

	manager, err := notification.NewNotificationManagerWithOptions(managerOpts...)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize notification manager: %w", err)
	}
	transportName := "Nexus Email Service"
	if cfg.Email.Transport == config.MailTransportSMTP {
		transportName = "SMTP"
	}
	s.noticeService, err = notice.NewService(manager,
		notice.WithWalletURL(cfg.Email.WalletURL),
		notice.WithTransportName(transportName),
		notice.WithLocation(cfg.Email.Location()),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize notice service: %w", err)
	}

	dispatcherOpts := []outbox.Option{
		outbox.WithSchedule(cfg.Outbox.Schedule),
		outbox.WithMaxAttempts(cfg.Outbox.MaxAttempts),
		outbox.WithBackoff(cfg.Outbox.Backoff),
	}
	serviceOpts := []application.Option{
		application.WithSequence(seq),
		application.WithCredentialFeed(credential.NewCSVFeed(cfg.CredentialFeed.CSVPath)),
		application.WithNotifier(s.noticeService),
		application.WithOutbox(store),
	}
	if publisher != nil {
		serviceOpts = append(serviceOpts, application.WithEventPublisher(publisher))
	}
	if s.metrics != nil {
		dispatcherOpts = append(dispatcherOpts, outbox.WithObserver(s.metrics))
		serviceOpts = append(serviceOpts, application.WithMetrics(s.metrics))
	}
	s.dispatcher = outbox.NewDispatcher(store, dispatcherOpts...)
	s.applicationService = application.NewApplicationService(repo, serviceOpts...)
	s.applicationService.RegisterOutboxHandlers(s.dispatcher)

	if s.uploadStore, err = initializeUploadStore(ctx, cfg.Storage); err != nil {
		s.Close()
		return nil, err
	}

	if s.esignetClient, err = initializeEsignet(ctx, cfg.Esignet, s.metrics); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// initializeStorage opens the configured application store. The outbox shares the
// Postgres pool when one is open and is kept in memory otherwise.
func initializeStorage(ctx context.Context, cfg *config.Config, s *Services) (application.ApplicationRepository, application.Sequence, outbox.Store, error) {
	var (
		repo  application.ApplicationRepository
		seq   application.Sequence
		store outbox.Store = outbox.NewInMemoryStore()
	)

	switch cfg.Store {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.Database.ToDatabaseURL())
		if err != nil {
			slog.Error("Failed to connect to database",
				"host", cfg.Database.Host,
				"port", cfg.Database.Port,
				"database", cfg.Database.Database,
				"schema", cfg.Database.Schema,
				"error", err)
			return nil, nil, nil, err
		}
		s.closers = append(s.closers, pool.Close)
		repo = application.NewPostgresApplicationRepository(pool)
		seq = application.NewPostgresSequence(pool)
		store = outbox.NewPostgresStore(pool)
		slog.Info("Database connected", "database", cfg.Database.Database, "schema", cfg.Database.Schema)

	case config.StoreMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		s.closers = append(s.closers, func() { _ = client.Disconnect(context.Background()) })
		if err := client.Ping(ctx, nil); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to reach mongodb: %w", err)
		}
		db := client.Database(cfg.Mongo.Database)
		mongoRepo := application.NewMongoApplicationRepository(db)
		if err := mongoRepo.EnsureIndexes(ctx); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create mongodb indexes: %w", err)
		}
		repo = mongoRepo
		seq = application.NewMongoSequence(db)
		slog.Info("MongoDB connected", "database", cfg.Mongo.Database)

	default:
		repo = application.NewInMemoryApplicationRepository()
		seq = application.NewInMemorySequence()
		slog.Warn("Using in-memory application store; data is lost on restart")
	}

	if cfg.Redis.Enabled() {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		s.closers = append(s.closers, func() { _ = client.Close() })
		seq = application.NewRedisSequence(client, cfg.Redis.Key)
		slog.Info("Using redis application sequence", "key", cfg.Redis.Key)
	}

	return repo, seq, store, nil
}

func initializeUploadStore(ctx context.Context, cfg config.StorageConfig) (upload.Store, error) {
	if cfg.UseS3() {
		client, err := upload.NewS3Client(ctx, cfg.S3Region, cfg.S3Endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 client: %w", err)
		}
		slog.Info("Storing uploads in S3", "bucket", cfg.S3Bucket, "prefix", cfg.S3Prefix)
		return upload.NewS3Store(client, cfg.S3Bucket, cfg.S3Prefix, cfg.Limits()), nil
	}

	store, err := upload.NewLocalStore(cfg.UploadDir, cfg.Limits())
	if err != nil {
		return nil, fmt.Errorf("failed to prepare upload directory: %w", err)
	}
	slog.Info("Storing uploads on disk", "dir", store.Dir())
	return store, nil
}

func initializeEsignet(ctx context.Context, cfg config.EsignetConfig, m *metrics.Metrics) (*esignet.Client, error) {
	signerOpts := []assertion.Option{}
	if cfg.ClientKeyID != "" {
		signerOpts = append(signerOpts, assertion.WithKeyID(cfg.ClientKeyID))
	}
	var (
		signer *assertion.Signer
		err    error
	)
	if cfg.ClientPrivateKeyFile != "" {
		signer, err = assertion.NewSignerFromFile(cfg.ClientPrivateKeyFile, signerOpts...)
	} else {
		signer, err = assertion.NewSignerFromPEM(cfg.ClientPrivateKey, signerOpts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load client signing key: %w", err)
	}

	decoderOpts := []userinfo.Option{}
	if cfg.UserInfoPrivateKey != "" {
		decoderOpts = append(decoderOpts, userinfo.WithDecryptionKey(cfg.UserInfoPrivateKey))
	} else if cfg.UserInfoResponseType == userinfo.ResponseTypeJWE {
		slog.Warn("JWE_USERINFO_PRIVATE_KEY is not set; encrypted userinfo responses will fail to decode")
	}
	if cfg.VerifyUserInfo() {
		decoderOpts = append(decoderOpts, userinfo.WithSignatureVerifier(oidc.NewRemoteKeySet(ctx, cfg.JWKSURL)))
		slog.Info("Verifying userinfo signatures", "jwks", cfg.JWKSURL)
	}

	clientOpts := []esignet.Option{
		esignet.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
	}
	if m != nil {
		clientOpts = append(clientOpts, esignet.WithObserver(m))
	}
	return esignet.NewClient(cfg.ToEsignetConfig(), signer, userinfo.NewDecoder(decoderOpts...), clientOpts...), nil
}

func setupRoutes(r chi.Router, services *Services, cfg *config.Config) {
	app.RoutesHealthz(r)
	app.RoutesHealthzReady(r)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]interface{}{"success": false, "message": "Route not found"})
	})

	if services.metrics != nil {
		r.Handle(cfg.Metrics.Path, services.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if limits := cfg.RateLimit.ToRateLimitConfig(); limits != nil {
			var opts []ratelimit.Option
			if services.metrics != nil {
				opts = append(opts, ratelimit.WithObserver(services.metrics))
			}
			r.Use(ratelimit.NewMiddleware(limits, opts...).Handler)
		}

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			render.PlainText(w, r, welcomeMessage)
		})

		if local, ok := services.uploadStore.(*upload.LocalStore); ok {
			r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(local.Dir()))))
		}

		esignetapi.NewHandle(services.esignetClient).RegisterRoutes(r)

		handleOpts := []applicationapi.Option{
			applicationapi.WithMaxUploadBytes(cfg.Storage.UploadMaxBytes),
		}
		if cfg.AdminAuth.Enabled {
			handleOpts = append(handleOpts, applicationapi.WithAdminAuth(jwtauth.New("HS256", []byte(cfg.AdminAuth.Secret), nil)))
		}
		applicationapi.NewHandle(services.applicationService, services.uploadStore, handleOpts...).RegisterRoutes(r)

		if cfg.TestEmailEndpointEnabled {
			noticeapi.NewHandle(services.noticeService).RegisterRoutes(r)
		}
	})
}
