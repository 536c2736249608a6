// Package test holds integration tests that need a real Postgres. They are
// skipped when no docker daemon is reachable.
package test

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const (
	postgresImage    = "postgres"
	postgresTag      = "16-alpine"
	postgresUser     = "callgrade"
	postgresPassword = "callgrade"
	postgresDatabase = "callgrade"
	postgresMaxWait  = 90 * time.Second
	containerTTL     = 300
)

// StartPostgres runs a disposable Postgres, applies the migrations and
// returns a connection to it.
func StartPostgres(t *testing.T) *gorm.DB {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}

	err = pool.Client.Ping()
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}

	pool.MaxWait = postgresMaxWait

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: postgresImage,
		Tag:        postgresTag,
		Env: []string{
			"POSTGRES_USER=" + postgresUser,
			"POSTGRES_PASSWORD=" + postgresPassword,
			"POSTGRES_DB=" + postgresDatabase,
		},
	}, func(hostConfig *docker.HostConfig) {
		hostConfig.AutoRemove = true
		hostConfig.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = pool.Purge(resource)
	})

	_ = resource.Expire(containerTTL)

	url := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		postgresUser, postgresPassword, resource.GetHostPort("5432/tcp"), postgresDatabase)

	var db *gorm.DB

	err = pool.Retry(func() error {
		var openErr error

		db, openErr = gorm.Open(postgres.Open(url), &gorm.Config{
			Logger: gormLogger.Default.LogMode(gormLogger.Silent),
		})
		if openErr != nil {
			return openErr
		}

		sqlDB, openErr := db.DB()
		if openErr != nil {
			return openErr
		}

		return sqlDB.Ping()
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	applyMigrations(t, url)

	return db
}

func applyMigrations(t *testing.T, url string) {
	t.Helper()

	migrationsDir, err := filepath.Abs(filepath.Join("..", "migrations"))
	require.NoError(t, err)

	migrator, err := migrate.New("file://"+filepath.ToSlash(migrationsDir), url)
	require.NoError(t, err)

	defer func() {
		_, _ = migrator.Close()
	}()

	err = migrator.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err)
	}
}
