package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	ID   uint
	Name string
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{User: "forum", Password: "secret", Host: "db", Port: 3307, Database: "runs"}

	dsn := cfg.DSN()
	assert.Contains(t, dsn, "forum:secret@tcp(db:3307)/runs?")
	assert.Contains(t, dsn, "parseTime=True")
}

func TestConnect(t *testing.T) {
	t.Run("sqlite file with auto migration", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "data", "runs.db")
		db, err := Connect(Config{Driver: DriverSQLite, Path: path, MaxOpenConns: 1})
		require.NoError(t, err)
		sqlDB, err := db.DB()
		require.NoError(t, err)
		defer sqlDB.Close()

		require.NoError(t, AutoMigrate(db, &widget{}))
		require.NoError(t, db.Create(&widget{Name: "w"}).Error)

		var count int64
		require.NoError(t, db.Model(&widget{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
		assert.FileExists(t, path)
	})

	t.Run("sqlite without path", func(t *testing.T) {
		_, err := Connect(Config{Driver: DriverSQLite})
		assert.Error(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Connect(Config{Driver: "oracle"})
		assert.ErrorIs(t, err, ErrUnsupportedDriver)
	})
}
