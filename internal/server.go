package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/coachprogress/internal/auth"
	"github.com/2beens/coachprogress/internal/config"
	"github.com/2beens/coachprogress/internal/db"
	"github.com/2beens/coachprogress/internal/middleware"
	"github.com/2beens/coachprogress/internal/misc"
	"github.com/2beens/coachprogress/internal/progress"
	"github.com/2beens/coachprogress/internal/progress/cycle"
	"github.com/2beens/coachprogress/internal/progress/details"
	"github.com/2beens/coachprogress/internal/progress/events"
	"github.com/2beens/coachprogress/internal/telemetry/metrics"
	"github.com/2beens/coachprogress/internal/telemetry/tracing"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "coachprogress"

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config      *config.Config
	dbPool      *pgxpool.Pool
	redisClient *redis.Client
	authConfig  auth.Config
	revocations *auth.RevocationChecker

	resolver         *cycle.Resolver
	eventsService    *events.Service
	eventsDispatcher *events.Dispatcher
	detailsCache     *details.Cache
	stopBackground   context.CancelFunc

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	VersionInfo             string
	JWTSecret               string
	JWTIssuer               string
	DBUser                  string
	DBPassword              string
	RedisPassword           string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	if params.JWTSecret == "" {
		return nil, errors.New("jwt secret not set")
	}

	resolver, err := cycle.NewResolverForZone(params.Config.Timezone)
	if err != nil {
		return nil, fmt.Errorf("plan day resolver: %w", err)
	}

	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         params.Config.PostgresHost,
		DBPort:         params.Config.PostgresPort,
		DBName:         params.Config.PostgresDBName,
		DBUser:         params.DBUser,
		DBPassword:     params.DBPassword,
		TracingEnabled: params.HoneycombTracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": params.Config.PostgresDBName},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager(serviceName, "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, serviceName, rdb)
	if err != nil {
		return nil, err
	}

	var publisher events.Publisher = events.LogPublisher{}
	if len(params.Config.KafkaBrokers) > 0 {
		log.Debugf("publishing progress events to kafka topic [%s]", params.Config.KafkaEventsTopic)
		publisher = events.NewKafkaPublisher(params.Config.KafkaBrokers, params.Config.KafkaEventsTopic)
	}
	eventsRepo := events.NewRepo(dbPool)

	return &Server{
		config:      params.Config,
		dbPool:      dbPool,
		redisClient: rdb,
		versionInfo: params.VersionInfo,
		authConfig: auth.Config{
			Secret: params.JWTSecret,
			Issuer: params.JWTIssuer,
		},
		revocations:   auth.NewRevocationChecker(rdb),
		resolver:      resolver,
		eventsService: events.NewService(eventsRepo),
		eventsDispatcher: events.NewDispatcher(
			eventsRepo,
			publisher,
			metricsManager,
			params.Config.EventsPollInterval(),
			params.Config.EventsBatchSize,
		),

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	miscHandler := misc.NewHandler(s.versionInfo, map[string]misc.PingFunc{
		"postgres": s.dbPool.Ping,
		"redis": func(ctx context.Context) error {
			return s.redisClient.Ping(ctx).Err()
		},
	})
	miscHandler.SetupRoutes(r)

	s.detailsCache = details.NewCache(
		s.redisClient,
		details.NewCatalogRepo(s.dbPool),
		s.config.ItemDetailsCacheTTL(),
		s.metricsManager,
	)
	progressService := progress.NewService(
		progress.NewRepo(s.dbPool),
		s.detailsCache,
		s.eventsService,
		s.resolver,
		s.metricsManager,
	)
	progressHandler := progress.NewHandler(progressService, s.resolver)
	r.HandleFunc("/plan/day", progressHandler.HandlePlanDay).Methods("GET", "OPTIONS").Name("plan-day")

	progressRouter := r.PathPrefix("/progress").Subrouter()
	progressRouter.HandleFunc("/activities/{activityId}/days/{date}", progressHandler.HandleGetDay).Methods("GET", "OPTIONS").Name("progress-day")
	progressRouter.HandleFunc("/activities/{activityId}/calendar/{year}/{month}", progressHandler.HandleMonth).Methods("GET", "OPTIONS").Name("progress-calendar")
	progressRouter.HandleFunc("/days/move", progressHandler.HandleMoveDay).Methods("POST", "OPTIONS").Name("progress-move-day")
	progressRouter.HandleFunc("/enrollments/{id}/start", progressHandler.HandleStartEnrollment).Methods("POST", "OPTIONS").Name("enrollment-start")

	eventsHandler := events.NewHandler(s.eventsService)
	progressRouter.HandleFunc("/events", eventsHandler.HandleList).Methods("GET", "OPTIONS").Name("progress-events")

	// toggles are the hot write path, rate limited per user
	toggleRouter := progressRouter.PathPrefix("/activities/{activityId}/days/{date}").Subrouter()
	toggleRouter.HandleFunc("/toggle", progressHandler.HandleToggle).Methods("POST", "OPTIONS").Name("progress-toggle")
	toggleRouter.Use(middleware.RateLimit(
		redis_rate.NewLimiter(s.redisClient),
		"toggle",
		s.config.ToggleRateLimitPerMin,
		s.metricsManager,
	))

	authHandler := auth.NewHandler(s.revocations)
	r.HandleFunc("/auth/revoke", authHandler.HandleRevoke).Methods("POST", "OPTIONS").Name("auth-revoke")

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	authMiddleware := middleware.NewAuthMiddlewareHandler(s.authConfig, s.revocations)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.RequestID())
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors(s.config.CorsAllowedOrigins))
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.LimitAndDrainRequest(middleware.DefaultMaxBodyBytes))

	return r
}

func (s *Server) Serve(host string, port int) {
	router := s.routerSetup()

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", otelhttp.NewHandler(
		promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}),
		"metrics",
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	backgroundCtx, stopBackground := context.WithCancel(context.Background())
	s.stopBackground = stopBackground
	go s.eventsDispatcher.Start(backgroundCtx)
	go s.detailsCache.ListenInvalidations(backgroundCtx)

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	// stop taking requests first, the stores below are still needed by in-flight ones
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown http server")
		}
		log.Warnln("server shut down")
	}

	if s.stopBackground != nil {
		s.stopBackground()
		s.eventsDispatcher.Wait()
		if err := s.eventsDispatcher.Close(); err != nil {
			log.Errorf("failed to close events publisher: %s", err)
		}
		log.Debugln("events dispatcher stopped")
	}

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown metrics http server")
		}
		log.Warnln("metrics server shut down")
	}
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
