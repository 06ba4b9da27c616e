package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/relay/pkg/blob"
	"github.com/Mindburn-Labs/relay/pkg/config"
	"github.com/Mindburn-Labs/relay/pkg/queue"
	"github.com/Mindburn-Labs/relay/pkg/ratelimit"
	"github.com/Mindburn-Labs/relay/pkg/store"
)

// liteDBPath is the embedded database used when DATABASE_URL is unset.
const liteDBPath = "relay.db"

// runtime bundles every backend the commands share. Without DATABASE_URL and
// REDIS_URL the relay runs in Lite Mode: embedded SQLite, in-process queue
// and limiter. Fine for one instance, not for a fleet.
type runtime struct {
	DB         *sql.DB
	Redis      *redis.Client
	Tenants    store.TenantStore
	Keys       store.APIKeyStore
	Targets    store.TargetStore
	Events     store.EventStore
	Deliveries store.DeliveryStore
	Blobs      blob.Store
	Queue      queue.Queue
	Limiter    ratelimit.Limiter
}

func openRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{}

	var err error
	if cfg.DatabaseURL != "" {
		rt.DB, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := rt.DB.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		log.Printf("[relay] postgres: connected")
	} else {
		rt.DB, err = sql.Open("sqlite", liteDBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		rt.DB.SetMaxOpenConns(1)
		if _, err := rt.DB.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("sqlite pragma: %w", err)
		}
		log.Printf("[relay] lite mode: embedded sqlite at %s (set DATABASE_URL for postgres)", liteDBPath)
	}
	if err := store.Init(ctx, rt.DB); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}

	rt.Tenants = store.NewSQLTenantStore(rt.DB)
	rt.Keys = store.NewSQLAPIKeyStore(rt.DB, cfg.APIKeySalt)
	rt.Targets = store.NewSQLTargetStore(rt.DB)
	rt.Events = store.NewSQLEventStore(rt.DB)
	rt.Deliveries = store.NewSQLDeliveryStore(rt.DB)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rt.Redis = redis.NewClient(opts)
		if err := rt.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		rt.Queue = queue.NewRedisQueue(rt.Redis)
		rt.Limiter = ratelimit.NewRedisLimiter(rt.Redis)
		log.Printf("[relay] redis: connected")
	} else {
		rt.Queue = queue.NewMemoryQueue()
		rt.Limiter = ratelimit.NewLocalLimiter()
		log.Printf("[relay] lite mode: in-process queue and limiter (set REDIS_URL for redis)")
	}

	rt.Blobs, err = openBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func openBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.BlobBackend {
	case "memory":
		log.Printf("[relay] blob: in-memory (payload archive is ephemeral)")
		return blob.NewMemoryStore(), nil
	case "gcs":
		return openGCSBlobStore(ctx, cfg)
	case "s3":
		s3store, err := blob.NewS3Store(ctx, blob.S3StoreConfig{
			Bucket:      cfg.EventsBucket,
			Region:      cfg.AWSRegion,
			Endpoint:    cfg.AWSEndpointURL,
			SSEKMSKeyID: cfg.SSEKMSKeyID,
		})
		if err != nil {
			return nil, fmt.Errorf("open s3: %w", err)
		}
		// Archival is best-effort; a bucket we cannot bootstrap must not
		// keep ingress down.
		if err := s3store.EnsureBucket(ctx); err != nil {
			log.Printf("[relay] s3: bucket bootstrap failed, continuing: %v", err)
		} else {
			log.Printf("[relay] s3: bucket %s ready", cfg.EventsBucket)
		}
		return s3store, nil
	default:
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}
}

func (rt *runtime) Close() {
	if rt.Redis != nil {
		_ = rt.Redis.Close()
	}
	if rt.DB != nil {
		_ = rt.DB.Close()
	}
}
