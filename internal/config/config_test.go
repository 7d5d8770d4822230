package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"APP_PORT", "STORAGE_DRIVER", "MONGO_URI", "MONGO_DB", "REDIS_URL", "QUEUE_NAME", "QUEUE_BROKER", "WORKER_CONCURRENCY"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.App.Port)
	assert.Equal(t, StorageDriverMongo, cfg.Storage.Driver)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Storage.Mongo.URI)
	assert.Equal(t, "ticketing", cfg.Storage.Mongo.Database)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, "agentic", cfg.Queue.Name)
	assert.Equal(t, BrokerRedis, cfg.Queue.Broker)
	assert.Equal(t, 500*time.Second, cfg.Queue.ResultTTL())
	assert.Equal(t, 2, cfg.Worker.Concurrency)
	assert.NotEmpty(t, cfg.Worker.ID)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("POSTGRES_DSN", "postgres://u:p@localhost/db")
	t.Setenv("POSTGRES_RUN_MIGRATIONS", "false")
	t.Setenv("QUEUE_BROKER", "amqp")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("HTTP_REQUEST_TIMEOUT_SECONDS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.App.Addr())
	assert.Equal(t, StorageDriverPostgres, cfg.Storage.Driver)
	assert.False(t, cfg.Storage.Postgres.RunMigrations)
	assert.Equal(t, BrokerAMQP, cfg.Queue.Broker)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, 8, cfg.Worker.PrefetchCount(), "prefetch follows concurrency unless set")
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvFile(t *testing.T) {
	// godotenv never overrides a variable that is already present, even if empty.
	t.Setenv("QUEUE_NAME", "")
	require.NoError(t, os.Unsetenv("QUEUE_NAME"))
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("QUEUE_NAME=from-file\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Queue.Name)

	_, err = Load(filepath.Join(dir, "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load env files")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Storage: StorageConfig{
				Driver: StorageDriverMongo,
				Mongo:  MongoConfig{URI: "mongodb://localhost:27017", Database: "ticketing"},
			},
			Queue:  QueueConfig{Name: "agentic", Broker: BrokerRedis},
			Worker: WorkerConfig{Concurrency: 1},
		}
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "sqlite" }, errString: "unknown STORAGE_DRIVER"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Driver = StorageDriverPostgres }, errString: "POSTGRES_DSN"},
		{name: "mongo without db", mutate: func(c *Config) { c.Storage.Mongo.Database = "" }, errString: "MONGO_DB"},
		{name: "unknown broker", mutate: func(c *Config) { c.Queue.Broker = "kafka" }, errString: "unknown QUEUE_BROKER"},
		{name: "amqp without url", mutate: func(c *Config) { c.Queue.Broker = BrokerAMQP }, errString: "AMQP_URL"},
		{name: "empty queue name", mutate: func(c *Config) { c.Queue.Name = "" }, errString: "QUEUE_NAME"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Worker.Concurrency = 0 }, errString: "WORKER_CONCURRENCY"},
		{name: "negative prefetch", mutate: func(c *Config) { c.Worker.Prefetch = -1 }, errString: "WORKER_PREFETCH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestWorkerConfig_PrefetchCount(t *testing.T) {
	tests := []struct {
		name   string
		worker WorkerConfig
		want   int
	}{
		{name: "follows concurrency", worker: WorkerConfig{Concurrency: 4}, want: 4},
		{name: "explicit", worker: WorkerConfig{Concurrency: 4, Prefetch: 10}, want: 10},
		{name: "floor", worker: WorkerConfig{}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.worker.PrefetchCount())
		})
	}
}
