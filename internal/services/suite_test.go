// internal/services/suite_test.go
package services

import (
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/studyhive/studyhive-backend/internal/config"
	"github.com/studyhive/studyhive-backend/internal/models"
)

// newTestDB opens a throwaway in-memory database migrated with the full
// schema. Each test gets its own named database so suites cannot see
// each other's rows.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Purchase{},
		&models.Review{},
		&models.WebhookEvent{},
		&models.Group{},
		&models.GroupMember{},
		&models.GroupMessage{},
		&models.GroupSharedFile{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Port: "8080",
		},
		JWT: config.JWTConfig{
			SecretKey:       "test-secret-key",
			AccessTokenTTL:  1,
			RefreshTokenTTL: 24,
		},
		Payment: config.PaymentConfig{
			StripeSecretKey:     "sk_test_dummy",
			StripeWebhookSecret: "whsec_test_secret",
			PlatformFeePercent:  10.0,
		},
		Frontend: config.FrontendConfig{
			BaseURL: "http://localhost:5173",
		},
	}
}

func createTestUser(t *testing.T, db *gorm.DB, username, email string) *models.User {
	t.Helper()

	user := &models.User{
		Username: username,
		Email:    email,
		Status:   models.UserStatusActive,
	}
	if err := user.SetPassword("TestPass123!"); err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

func createTestProduct(t *testing.T, db *gorm.DB, owner *models.User, title string, price float64, isFree bool) *models.Product {
	t.Helper()

	product := &models.Product{
		OwnerID:     owner.ID,
		Title:       title,
		Description: "Condensed lecture notes with worked examples.",
		Subject:     "calculus",
		Price:       price,
		IsFree:      isFree,
		FileKey:     "notes/" + title + ".pdf",
		FileURL:     "http://localhost:8080/uploads/notes/" + title + ".pdf",
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("failed to create test product: %v", err)
	}

	return product
}
