package cache

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/kapetan-io/errors"
	"github.com/kapetan-io/tackle/set"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	// Addr is the host:port of the redis server
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every tag key, defaults to 'entityqueue:tag:'
	Prefix string
	Log    *slog.Logger
}

// Redis keeps invalidation counts in redis such that every entityqueue instance and any
// other consumer of the tags sees the same checksum.
type Redis struct {
	invalidations *prometheus.CounterVec
	client        *redis.Client
	conf          RedisConfig
}

var _ Invalidator = &Redis{}

// NewRedis connects to redis and pings the server to ensure the connection is established
func NewRedis(ctx context.Context, conf RedisConfig) (*Redis, error) {
	set.Default(&conf.Prefix, "entityqueue:tag:")
	set.Default(&conf.Log, slog.Default())

	client := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Errorf("while connecting to redis '%s': %w", conf.Addr, err)
	}
	conf.Log.LogAttrs(ctx, slog.LevelInfo, "connected to redis",
		slog.String("code.namespace", "cache"), slog.String("address", conf.Addr))

	return &Redis{
		invalidations: newInvalidationCounter(),
		client:        client,
		conf:          conf,
	}, nil
}

func (r *Redis) InvalidateTags(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return nil
	}

	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, tag := range tags {
			p.Incr(ctx, r.conf.Prefix+tag)
		}
		return nil
	})
	if err != nil {
		return errors.Errorf("while invalidating tags %v: %w", tags, err)
	}

	for _, tag := range tags {
		r.invalidations.WithLabelValues(tag).Inc()
	}
	return nil
}

func (r *Redis) Checksum(ctx context.Context, tags ...string) (int64, error) {
	if len(tags) == 0 {
		return 0, nil
	}
	// A tag counts once no matter how many times it is requested
	tags = MergeTags(tags)

	keys := make([]string, len(tags))
	for i, tag := range tags {
		keys[i] = r.conf.Prefix + tag
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, errors.Errorf("while fetching tags %v: %w", tags, err)
	}

	var sum int64
	for i, v := range values {
		// A tag which was never invalidated has no key
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return 0, errors.Errorf("unexpected value type %T for tag '%s'", v, tags[i])
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, errors.Errorf("while parsing tag '%s': %w", tags[i], err)
		}
		sum += n
	}
	return sum, nil
}

func (r *Redis) Close(_ context.Context) error {
	return r.client.Close()
}

// Describe fetches prometheus metrics to be registered
func (r *Redis) Describe(ch chan<- *prometheus.Desc) {
	r.invalidations.Describe(ch)
}

// Collect fetches metrics for use by prometheus
func (r *Redis) Collect(ch chan<- prometheus.Metric) {
	r.invalidations.Collect(ch)
}
