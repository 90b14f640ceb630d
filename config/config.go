// Package config provides functionality for loading and parsing entityqueue
// daemon configuration from a YAML file. The package includes utilities to
// convert the parsed configuration into a form usable by the daemon runtime,
// initializing the storage backend, the cache tag invalidator and the
// queues which are loaded when the daemon starts.
//
// Additionally, provides access to the Queue structure in a generic format
// such that queues can be exported from and imported into a config file.

package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kapetan-io/entityqueue/daemon"
	"github.com/kapetan-io/entityqueue/internal/cache"
	"github.com/kapetan-io/entityqueue/internal/entitytype"
	"github.com/kapetan-io/entityqueue/internal/store"
	"github.com/kapetan-io/entityqueue/internal/types"
	"github.com/kapetan-io/errors"
	"github.com/kapetan-io/tackle/color"
	"gopkg.in/yaml.v3"
)

type File struct {
	Logging      Logging      `yaml:"logging"`
	QueueStorage QueueStorage `yaml:"queue-storage"`
	Cache        Cache        `yaml:"cache"`
	// EntityTypes when provided replace the default entity types
	EntityTypes []EntityType `yaml:"entity-types" validate:"dive"`
	// Queues are loaded when the daemon starts, queues which already exist are left untouched
	Queues []Queue `yaml:"queues" validate:"dive"`
	// ListenAddress is the address:port the daemon listens on
	ListenAddress string `yaml:"listen-address"`
	// DefaultActor is the uid recorded as the owner of subqueues created while loading Queues
	DefaultActor string `yaml:"default-actor"`
	// ConfigFile is the path to the config file that was loaded
	ConfigFile string `yaml:"-"`
}

type Logging struct {
	Level   string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Handler string `yaml:"handler"`
}

type QueueStorage struct {
	Driver string            `yaml:"driver"`
	Config map[string]string `yaml:"config"`
}

type Cache struct {
	Driver string            `yaml:"driver"`
	Config map[string]string `yaml:"config"`
}

// EntityType is a type of entity queues may target, IE: 'node' provided by the 'node' module
type EntityType struct {
	ID       string `yaml:"id" validate:"required"`
	Label    string `yaml:"label"`
	Provider string `yaml:"provider" validate:"required"`
}

// Queue is the configuration file representation of types.QueueInfo
type Queue struct {
	ID         string `yaml:"id" validate:"required"`
	Label      string `yaml:"label" validate:"required"`
	TargetType string `yaml:"target-type" validate:"required"`
	Handler    string `yaml:"handler" validate:"required"`
	// Status defaults to enabled when omitted
	Status               *bool             `yaml:"status,omitempty"`
	MinSize              int               `yaml:"min-size,omitempty" validate:"gte=0"`
	MaxSize              int               `yaml:"max-size,omitempty" validate:"gte=0"`
	ActAsQueue           bool              `yaml:"act-as-queue,omitempty"`
	HandlerConfiguration map[string]string `yaml:"handler-configuration,omitempty"`
}

// LoadFile reads and parses the config file at path
func LoadFile(path string) (File, error) {
	var file File
	reader, err := os.Open(path)
	if err != nil {
		return file, ErrFileNotExist{Msg: err.Error()}
	}
	defer func() { _ = reader.Close() }()

	if err := yaml.NewDecoder(reader).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			// An empty file is a valid config
			return File{ConfigFile: path}, nil
		}
		return file, ErrYAMLParse{Msg: err.Error()}
	}
	file.ConfigFile = path
	return file, nil
}

func ApplyConfigFile(ctx context.Context, conf *daemon.Config, file File, w io.Writer) error {
	if err := Validate(file); err != nil {
		return err
	}

	if err := setupLogger(file, w, conf); err != nil {
		return err
	}

	if err := setupQueueStorage(file, conf); err != nil {
		return err
	}

	if err := setupEntityTypes(file, conf); err != nil {
		return err
	}

	if err := setupCache(ctx, file, conf); err != nil {
		return err
	}

	for _, q := range file.Queues {
		conf.DefaultQueues = append(conf.DefaultQueues, q.ToQueueInfo())
	}

	conf.ListenAddress = file.ListenAddress
	if file.DefaultActor != "" {
		conf.DefaultActor = types.Actor{UID: file.DefaultActor}
	}

	// Apply defaults if there are required config items missing from the provided config file
	conf.SetDefaults()

	if file.ConfigFile != "" {
		conf.Log.Info("Loaded config from file", "file", file.ConfigFile)
	}
	return nil
}

// Validate checks the structure of the config file. Field names in the error are the yaml keys.
func Validate(file File) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	err := v.Struct(file)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}

	fields := make([]string, 0, len(errs))
	for _, fe := range errs {
		field := strings.TrimPrefix(fe.Namespace(), "File.")
		if fe.Param() != "" {
			fields = append(fields, fmt.Sprintf("'%s' failed '%s=%s' validation", field, fe.Tag(), fe.Param()))
			continue
		}
		fields = append(fields, fmt.Sprintf("'%s' failed '%s' validation", field, fe.Tag()))
	}
	return fmt.Errorf("invalid config; %s", strings.Join(fields, ", "))
}

func setupLogger(file File, w io.Writer, d *daemon.Config) error {
	switch file.Logging.Handler {
	case "color", "":
		d.Log = slog.New(color.NewLog(&color.LogOptions{
			HandlerOptions: slog.HandlerOptions{
				Level: toLogLevel(file.Logging.Level),
			},
			Writer: w,
		}))
		return nil
	case "text":
		d.Log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: toLogLevel(file.Logging.Level),
		}))
		return nil
	case "json":
		d.Log = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: toLogLevel(file.Logging.Level),
		}))
		return nil
	default:
		return fmt.Errorf("invalid handler; '%s' is not one of (color, text, json)",
			file.Logging.Handler)
	}
}

func toLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "error":
		return slog.LevelError
	case "warn":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}

func setupQueueStorage(file File, conf *daemon.Config) error {
	c := file.QueueStorage.Config

	switch strings.ToLower(file.QueueStorage.Driver) {
	case "memory", "":
		conf.StorageConfig = store.Config{
			Queues:    store.NewMemoryQueues(conf.Log),
			Subqueues: store.NewMemorySubqueues(conf.Log),
		}
	case "bolt":
		conf.StorageConfig = store.NewBoltConfig(store.BoltConfig{
			StorageDir: c["storage-dir"],
			Log:        conf.Log,
		})
	case "badger":
		conf.StorageConfig = store.NewBadgerConfig(store.BadgerConfig{
			StorageDir: c["storage-dir"],
			InMemory:   c["in-memory"] == "true",
			Log:        conf.Log,
		})
	case "buntdb":
		conf.StorageConfig = store.NewBuntConfig(store.BuntConfig{
			StorageDir: c["storage-dir"],
			Log:        conf.Log,
		})
	case "postgres":
		if c["connection-string"] == "" {
			return fmt.Errorf("invalid postgres config; 'connection-string' is required")
		}
		var maxConns int64
		if c["max-conns"] != "" {
			var err error
			if maxConns, err = strconv.ParseInt(c["max-conns"], 10, 32); err != nil {
				return fmt.Errorf("invalid postgres config; 'max-conns' must be an integer: %w", err)
			}
		}
		conf.StorageConfig = store.NewPostgresConfig(store.PostgresConfig{
			ConnectionString: c["connection-string"],
			MaxConns:         int32(maxConns),
			Log:              conf.Log,
		})
	default:
		return ErrUnsupportedDriver{Kind: "queue-storage", Driver: file.QueueStorage.Driver,
			Supported: "memory, bolt, badger, buntdb, postgres"}
	}
	return nil
}

func setupCache(ctx context.Context, file File, conf *daemon.Config) error {
	c := file.Cache.Config

	switch strings.ToLower(file.Cache.Driver) {
	case "memory", "":
		conf.Cache = cache.NewMemory()
	case "redis":
		var db int
		if c["db"] != "" {
			var err error
			if db, err = strconv.Atoi(c["db"]); err != nil {
				return fmt.Errorf("invalid redis config; 'db' must be an integer: %w", err)
			}
		}
		r, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     c["address"],
			Password: c["password"],
			Prefix:   c["prefix"],
			Log:      conf.Log,
			DB:       db,
		})
		if err != nil {
			return err
		}
		conf.Cache = r
	default:
		return ErrUnsupportedDriver{Kind: "cache", Driver: file.Cache.Driver, Supported: "memory, redis"}
	}
	return nil
}

func setupEntityTypes(file File, conf *daemon.Config) error {
	if len(file.EntityTypes) == 0 {
		return nil
	}

	r := entitytype.NewRegistry()
	for _, et := range file.EntityTypes {
		d := entitytype.Definition{ID: et.ID, Label: et.Label, Provider: et.Provider}
		if err := r.Register(d); err != nil {
			return err
		}
	}
	conf.EntityTypes = r
	return nil
}

// ToQueueInfo converts a config.Queue instance to a types.QueueInfo instance
func (q Queue) ToQueueInfo() types.QueueInfo {
	status := true
	if q.Status != nil {
		status = *q.Status
	}

	return types.QueueInfo{
		ID:                   q.ID,
		Label:                q.Label,
		Status:               status,
		TargetType:           q.TargetType,
		MinSize:              q.MinSize,
		MaxSize:              q.MaxSize,
		ActAsQueue:           q.ActAsQueue,
		Handler:              q.Handler,
		HandlerConfiguration: maps.Clone(q.HandlerConfiguration),
	}
}

// FromQueueInfo converts a types.QueueInfo into a config.Queue such that queues can be exported
// into a config file. Fields calculated by the service are not included.
func FromQueueInfo(info types.QueueInfo) Queue {
	status := info.Status
	return Queue{
		ID:                   info.ID,
		Label:                info.Label,
		Status:               &status,
		TargetType:           info.TargetType,
		MinSize:              info.MinSize,
		MaxSize:              info.MaxSize,
		ActAsQueue:           info.ActAsQueue,
		Handler:              info.Handler,
		HandlerConfiguration: maps.Clone(info.HandlerConfiguration),
	}
}
