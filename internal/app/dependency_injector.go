package app

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/you-humble/chatmover/internal/batch"
	"github.com/you-humble/chatmover/internal/domain"
	"github.com/you-humble/chatmover/internal/infra/config"
	"github.com/you-humble/chatmover/internal/infra/status"
	"github.com/you-humble/chatmover/internal/infra/store/archive"
	credstore "github.com/you-humble/chatmover/internal/infra/store/creds"
	workstore "github.com/you-humble/chatmover/internal/infra/store/work"
	"github.com/you-humble/chatmover/internal/libs/mio"
	"github.com/you-humble/chatmover/internal/libs/natsq"
	"github.com/you-humble/chatmover/internal/libs/rediscli"
	"github.com/you-humble/chatmover/internal/limiter"
	"github.com/you-humble/chatmover/internal/platform"
	"github.com/you-humble/chatmover/internal/platform/natsrpc"
	"github.com/you-humble/chatmover/internal/progress"
	"github.com/you-humble/chatmover/internal/registry"
	"github.com/you-humble/chatmover/internal/service"
	"github.com/you-humble/chatmover/internal/transport"
	"github.com/you-humble/chatmover/internal/worker"
)

const cfgPath = "./configs/local.yaml"

type Router interface {
	MountRoutes(*http.ServeMux) *http.ServeMux
}

type dependencyInjector struct {
	cfg    *config.Config
	logger *slog.Logger

	redis     *redis.Client
	credStore batch.CredStore

	natsConn *nats.Conn
	js       nats.JetStreamContext
	sink     progress.Sink

	botClient platform.Client
	connector platform.Connector

	workStore    *workstore.Store
	archiveStore *archive.Store
	replicator   *archive.Replicator
	archiver     *archive.Archiver

	registry *registry.Registry
	limiter  *limiter.Limiter
	tracker  *progress.Tracker
	renderer *progress.Renderer

	worker     *worker.Worker
	controller *batch.Controller
	service    *service.Service

	handler transport.Handler
	router  Router
}

func newDI() *dependencyInjector {
	return &dependencyInjector{}
}

func (di *dependencyInjector) Config() *config.Config {
	if di.cfg == nil {
		di.cfg = config.MustLoad(cfgPath)
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		di.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	slog.SetDefault(di.logger)
	return di.logger
}

func (di *dependencyInjector) RedisClient() *redis.Client {
	if di.redis == nil {
		cfg := di.Config().Redis
		client, err := rediscli.NewClient(rediscli.Config{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err != nil {
			log.Fatalf("DI redis: %+v", err)
		}

		di.redis = client
		di.Logger().Info("connected to redis", slog.String("addr", cfg.Addr))
	}
	return di.redis
}

func (di *dependencyInjector) CredStore() batch.CredStore {
	if di.credStore == nil {
		di.credStore = credstore.NewRedisStore(di.RedisClient())
	}
	return di.credStore
}

func (di *dependencyInjector) NATSConn() *nats.Conn {
	if di.natsConn == nil {
		cfg := di.Config().NATS
		nc, err := natsq.NewConnect(cfg.URL, cfg.Name, cfg.MaxReconnects)
		if err != nil {
			log.Fatalf("DI nats: %+v", err)
		}

		di.natsConn = nc
		di.Logger().Info("connected to nats", slog.String("url", cfg.URL))
	}
	return di.natsConn
}

func (di *dependencyInjector) JetStream() nats.JetStreamContext {
	if di.js == nil {
		cfg := di.Config().NATS
		js, err := natsq.NewJetStream(di.NATSConn(), cfg.StreamName, []string{cfg.StatusSubject})
		if err != nil {
			log.Fatalf("DI JetStream: %+v", err)
		}

		di.js = js
	}
	return di.js
}

func (di *dependencyInjector) StatusSink() progress.Sink {
	if di.sink == nil {
		di.sink = status.NewNATSSink(di.JetStream(), di.Config().NATS.StatusSubject)
	}
	return di.sink
}

func (di *dependencyInjector) BotClient() platform.Client {
	if di.botClient == nil {
		di.botClient = natsrpc.NewBotClient(di.NATSConn(), di.Config().NATS.PlatformSubject)
	}
	return di.botClient
}

func (di *dependencyInjector) Connector() platform.Connector {
	if di.connector == nil {
		di.connector = natsrpc.NewConnector(di.NATSConn(), di.Config().NATS.PlatformSubject)
	}
	return di.connector
}

func (di *dependencyInjector) WorkStore() *workstore.Store {
	if di.workStore == nil {
		cfg := di.Config()
		store, err := workstore.NewStore(cfg.WorkDir)
		if err != nil {
			log.Fatalf("DI work store: %+v", err)
		}
		// Crash recovery: anything left over belongs to a dead process.
		if err := store.Sweep(); err != nil {
			log.Fatalf("DI work store sweep: %+v", err)
		}

		di.workStore = store
		di.Logger().Info("staging root swept", slog.String("work_dir", cfg.WorkDir))
	}
	return di.workStore
}

// Archiver is nil when archiving is disabled; the worker treats that as
// "no off-host copies".
func (di *dependencyInjector) Archiver(ctx context.Context) *archive.Archiver {
	if di.archiver == nil && di.Config().Archive.Enabled {
		cfg := di.Config()

		remote, err := archive.NewMinIOStore(ctx, mio.Config{
			Endpoint:        cfg.Archive.MinIO.Endpoint,
			AccessKeyID:     cfg.Archive.MinIO.AccessKeyID,
			SecretAccessKey: cfg.Archive.MinIO.SecretAccessKey,
			UseSSL:          cfg.Archive.MinIO.UseSSL,
			Bucket:          cfg.Archive.MinIO.Bucket,
			BasePath:        cfg.Archive.MinIO.BasePath,
		})
		if err != nil {
			log.Fatalf("DI archive minio: %+v", err)
		}
		di.archiveStore = remote

		di.replicator = archive.NewReplicator(
			remote,
			cfg.Archive.QueueCapacity,
			cfg.Archive.PoolSize,
			cfg.Archive.MaxRetries,
		)
		di.replicator.Start(ctx)

		archiver, err := archive.NewArchiver(di.replicator, filepath.Join(cfg.WorkDir, ".spool"))
		if err != nil {
			log.Fatalf("DI archiver: %+v", err)
		}

		di.archiver = archiver
		di.Logger().Info("archive replication enabled",
			slog.String("endpoint", cfg.Archive.MinIO.Endpoint),
			slog.String("bucket", cfg.Archive.MinIO.Bucket),
			slog.Int("queue_size", cfg.Archive.QueueCapacity),
			slog.Int("worker_num", cfg.Archive.PoolSize),
		)
	}
	return di.archiver
}

func (di *dependencyInjector) Registry() *registry.Registry {
	if di.registry == nil {
		di.registry = registry.New()
	}
	return di.registry
}

func (di *dependencyInjector) Limiter() *limiter.Limiter {
	if di.limiter == nil {
		cfg := di.Config()

		admins := make([]domain.UserID, 0, len(cfg.Admins))
		for _, id := range cfg.Admins {
			admins = append(admins, domain.UserID(id))
		}

		di.limiter = limiter.New(
			cfg.Limits.MaxTasksPerUser,
			cfg.Limits.UploadSlots,
			admins,
			!cfg.LoginSystem,
		)
	}
	return di.limiter
}

func (di *dependencyInjector) Tracker() *progress.Tracker {
	if di.tracker == nil {
		di.tracker = progress.NewTracker()
	}
	return di.tracker
}

func (di *dependencyInjector) Renderer() *progress.Renderer {
	if di.renderer == nil {
		di.renderer = progress.NewRenderer(
			di.Tracker(),
			di.StatusSink(),
			di.Config().Status.RenderCadence,
		)
	}
	return di.renderer
}

func (di *dependencyInjector) Worker(ctx context.Context) *worker.Worker {
	if di.worker == nil {
		cfg := di.Config().Transfer

		// The worker takes the Archiver interface; a typed nil pointer must
		// not masquerade as a non-nil interface value.
		var archiver worker.Archiver
		if a := di.Archiver(ctx); a != nil {
			archiver = a
		}

		di.worker = worker.New(
			di.BotClient(),
			di.Limiter(),
			di.Tracker(),
			di.Renderer(),
			di.WorkStore(),
			archiver,
			worker.Config{
				SizeThreshold:        cfg.SizeThresholdMB << 20,
				ChunkSize:            cfg.ChunkSizeMB << 20,
				PremiumSizeThreshold: cfg.PremiumSizeThresholdMB << 20,
				PremiumChunkSize:     cfg.PremiumChunkSizeMB << 20,
				DownloadRetries:      cfg.DownloadRetries,
				RetryPause:           cfg.RetryPause,
				CaptionLimit:         cfg.CaptionLimit,
			},
		)
	}
	return di.worker
}

func (di *dependencyInjector) Controller(ctx context.Context) *batch.Controller {
	if di.controller == nil {
		cfg := di.Config()
		di.controller = batch.NewController(
			di.Worker(ctx),
			di.Connector(),
			di.CredStore(),
			di.Registry(),
			di.Limiter(),
			di.StatusSink(),
			batch.Config{
				LoginSystem: cfg.LoginSystem,
				SharedCreds: domain.Credentials{
					Session: cfg.SharedSession.Session,
					APIID:   cfg.SharedSession.APIID,
					APIHash: cfg.SharedSession.APIHash,
				},
				FetchMissPause: cfg.Transfer.FetchMissPause,
				ThrottleMargin: cfg.Transfer.ThrottleMargin,
				StatusInterval: cfg.Status.BatchInterval,
			},
		)
	}
	return di.controller
}

func (di *dependencyInjector) Service(ctx context.Context) *service.Service {
	if di.service == nil {
		di.service = service.New(
			di.Controller(ctx),
			di.Registry(),
			di.Limiter(),
			ctx,
			di.Config().Transfer.DefaultDelay,
		)
	}
	return di.service
}

func (di *dependencyInjector) Handler(ctx context.Context) transport.Handler {
	if di.handler == nil {
		di.handler = transport.NewHandler(di.Service(ctx))
	}
	return di.handler
}

func (di *dependencyInjector) Router(ctx context.Context) Router {
	if di.router == nil {
		di.router = transport.NewRouter(di.Handler(ctx))
	}
	return di.router
}
