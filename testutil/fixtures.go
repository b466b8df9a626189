package testutil

import (
	"testing"

	"gorm.io/gorm"
)

// CreateFixture inserts model, failing the test on error.
func CreateFixture(t *testing.T, db *gorm.DB, model interface{}) {
	t.Helper()
	if err := db.Create(model).Error; err != nil {
		t.Fatalf("failed to create fixture: %v", err)
	}
}
