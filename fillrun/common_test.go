package fillrun

import (
	"testing"

	"gorm.io/gorm"

	"github.com/hairizuanbinnoorazman/forum-autofill/logger"
	"github.com/hairizuanbinnoorazman/forum-autofill/testutil"
)

// setupTestStore creates a test database and run store.
func setupTestStore(t *testing.T) (*gorm.DB, Store) {
	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db, &Run{})

	log := logger.NewTestLogger()
	store := NewMySQLStore(db, log)

	return db, store
}
