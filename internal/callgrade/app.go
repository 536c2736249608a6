package callgrade

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/abandonment"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/deadletter"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/grade"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/healthchecker"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/httpapi"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/interaction"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/kafka"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/minio"
	"github.com/panjf2000/ants/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const httpShutdownTimeout = 10 * time.Second

type App struct {
	DBConn               *gorm.DB
	RedisClient          *redis.Client
	MinioClient          *minio.MinioClient
	InteractionConsumer  *kafka.Consumer
	GradeConsumer        *kafka.Consumer
	KafkaProducer        *kafka.Producer
	WorkerPool           *ants.Pool
	EventHandler         *EventHandler
	Sweeper              *abandonment.Sweeper
	SweepWorker          *abandonment.SweepWorker
	DeadLetterService    *deadletter.DeadLetterService
	DeadLetterWorker     *deadletter.DeadLetterWorker
	HTTPServer           *http.Server
	HealthCheckerService *healthchecker.Healthchecker
}

func NewApp(ctxCancelFunc context.CancelFunc) (*App, error) {
	logging.Logger.Info("[NewApp] Initializing callgrade application...")

	circuitbreak.Init()

	app := &App{HealthCheckerService: healthchecker.NewService(ctxCancelFunc)}

	dbConn, err := database.NewDatabase()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to initialize database", zap.Error(err))
		return nil, err
	}

	app.DBConn = dbConn

	logging.Logger.Info("[NewApp] Database connection established")

	app.RedisClient = newRedisOrNil()

	if config.Conf.MinioEnabled {
		app.MinioClient, err = minio.NewMinioClient()
		if err != nil {
			logging.Logger.Error("[NewApp] Failed to initialize Minio client", zap.Error(err))
			return nil, err
		}

		logging.Logger.Info("[NewApp] Minio client created")
	}

	if config.Conf.KafkaEnabled {
		err = app.initializeKafka()
		if err != nil {
			return nil, err
		}
	}

	app.WorkerPool, err = ants.NewPool(config.Conf.PoolSize, ants.WithPreAlloc(true))
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create worker pool", zap.Error(err))
		return nil, err
	}

	err = app.initializeServices()
	if err != nil {
		app.WorkerPool.Release()
		return nil, err
	}

	logging.Logger.Info("[NewApp] Application initialized",
		zap.Bool("kafka_enabled", config.Conf.KafkaEnabled),
		zap.Bool("minio_enabled", config.Conf.MinioEnabled),
		zap.Bool("redis_enabled", app.RedisClient != nil),
	)

	return app, nil
}

// newRedisOrNil returns nil when Redis is not configured or unreachable; the
// sweeper then falls back to an in-process lock.
func newRedisOrNil() *redis.Client {
	redisClient, err := database.NewRedis(context.Background())
	if err != nil {
		if !errors.Is(err, database.ErrRedisNotConfigured) {
			logging.Logger.Warn("[NewApp] Redis unavailable, using local sweep lock", zap.String("error", err.Error()))
		}

		return nil
	}

	return redisClient
}

func (app *App) initializeKafka() error {
	logging.Logger.Info("[NewApp] Creating Kafka producer...")

	producer, err := kafka.NewProducer()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create Kafka producer", zap.Error(err))
		return err
	}

	app.KafkaProducer = producer

	app.InteractionConsumer, err = kafka.NewConsumer(config.Conf.KafkaInteractionGroupID, "interactions")
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create interaction consumer", zap.Error(err))
		return err
	}

	app.GradeConsumer, err = kafka.NewConsumer(config.Conf.KafkaGradeGroupID, "grades")
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create grade consumer", zap.Error(err))
		return err
	}

	logging.Logger.Info("[NewApp] Kafka clients created")

	return nil
}

func (app *App) initializeServices() error {
	app.EventHandler = &EventHandler{
		Interactions:  interaction.NewService(app.DBConn),
		Grades:        grade.NewService(app.DBConn),
		FeedbackTopic: config.Conf.KafkaFeedbackTopic,
	}

	var publisher abandonment.Publisher

	if app.KafkaProducer != nil {
		app.EventHandler.Publisher = app.KafkaProducer
		publisher = &AbandonedPublisher{Publisher: app.KafkaProducer, Topic: config.Conf.KafkaAbandonedTopic}
	}

	sweeper, err := abandonment.NewSweeper(app.DBConn, app.RedisClient, publisher)
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create abandonment sweeper", zap.Error(err))
		return err
	}

	app.Sweeper = sweeper
	app.SweepWorker = abandonment.NewWorker(sweeper)

	app.DeadLetterService = deadletter.NewService(app.DBConn, map[string]deadletter.Handler{
		config.Conf.KafkaInteractionTopic: app.EventHandler.HandleInteraction,
		config.Conf.KafkaGradeTopic:       app.EventHandler.HandleGradeSubmitted,
	})

	app.DeadLetterWorker, err = deadletter.NewWorker(app.DeadLetterService)
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create dead letter worker", zap.Error(err))
		sweeper.Close()

		return err
	}

	handlers := httpapi.NewHandlers(app.DBConn, nil)
	if app.MinioClient != nil {
		handlers.Uploader = app.MinioClient
	}

	app.HTTPServer = httpapi.NewServer(httpapi.NewRouter(handlers))

	logging.Logger.Info("[NewApp] Services created")

	return nil
}

// Run blocks until ctx is canceled, then releases everything NewApp created.
func (app *App) Run(ctx context.Context) {
	logging.Logger.Info("[Run] Starting app goroutines...")

	go app.HealthCheckerService.Monitor(ctx)

	go app.SweepWorker.Run(ctx)

	go app.DeadLetterWorker.Run(ctx)

	go app.serveHTTP()

	if config.Conf.KafkaEnabled {
		app.runConsumers(ctx)
	} else {
		<-ctx.Done()
	}

	app.shutdown()
}

func (app *App) serveHTTP() {
	logging.Logger.Info("[Run] HTTP server listening", zap.String("addr", app.HTTPServer.Addr))

	err := app.HTTPServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Logger.Error("[Run] HTTP server stopped", zap.String("error", err.Error()))
	}
}

func (app *App) runConsumers(ctx context.Context) {
	var waitGroup sync.WaitGroup

	consumers := []struct {
		consumer *kafka.Consumer
		topic    string
		handle   deadletter.Handler
	}{
		{app.InteractionConsumer, config.Conf.KafkaInteractionTopic, app.EventHandler.HandleInteraction},
		{app.GradeConsumer, config.Conf.KafkaGradeTopic, app.EventHandler.HandleGradeSubmitted},
	}

	for _, entry := range consumers {
		waitGroup.Add(1)

		go func() {
			defer waitGroup.Done()

			logging.Logger.Info("[Run] Starting Kafka consumer",
				zap.String("topic", entry.topic),
				zap.Int("worker_pool_size", config.Conf.PoolSize),
			)

			entry.consumer.Consume(
				ctx,
				entry.topic,
				newMessageHandler(app.WorkerPool, app.DeadLetterService, entry.topic, entry.handle),
			)
		}()
	}

	waitGroup.Wait()

	logging.Logger.Warn("[Run] Kafka consumers returned, beginning shutdown...")
}

func (app *App) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()

	err := app.HTTPServer.Shutdown(shutdownCtx)
	if err != nil {
		logging.Logger.Error("[Run] Failed to shut down HTTP server", zap.String("error", err.Error()))
	}

	for _, consumer := range []*kafka.Consumer{app.InteractionConsumer, app.GradeConsumer} {
		if consumer != nil {
			_ = consumer.Close()
		}
	}

	logging.Logger.Info("[Run] Releasing worker pool...",
		zap.Int("running_workers", app.WorkerPool.Running()),
		zap.Int("free_workers", app.WorkerPool.Free()),
	)
	app.WorkerPool.Release()

	app.Sweeper.Close()
	app.DeadLetterWorker.Close()

	if app.KafkaProducer != nil {
		err = app.KafkaProducer.Close()
		if err != nil {
			logging.Logger.Error("[Run] Failed to close producer", zap.String("error", err.Error()))
		}
	}

	if app.RedisClient != nil {
		_ = app.RedisClient.Close()
	}

	sqlDB, err := app.DBConn.DB()
	if err == nil {
		_ = sqlDB.Close()
	}

	logging.Logger.Info("[Run] ===== App shutdown complete =====")
}
