package database

import (
	"fmt"

	"github.com/circles/backend/internal/config"
	"github.com/circles/backend/internal/models"
	"github.com/circles/backend/pkg/utils"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	default:
		dialector = postgres.Open(cfg.DSN())
	}

	db, err := Open(dialector)
	if err != nil {
		return nil, err
	}

	if cfg.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite serialises writers; one connection avoids SQLITE_BUSY storms.
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

// Open wraps gorm.Open with the settings every caller needs: translated
// constraint errors and a quiet SQL logger.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.GroupMembership{},
		&models.JoinRequest{},
		&models.AuditLog{},
		&models.AuditExportCursor{},
	); err != nil {
		return err
	}

	// At most one pending request per (group, user); decided rows are history.
	pendingIndex := `CREATE UNIQUE INDEX IF NOT EXISTS idx_join_requests_pending
ON join_requests (group_id, user_id) WHERE status = 'pending'`
	if err := db.Exec(pendingIndex).Error; err != nil {
		return fmt.Errorf("creating pending join request index: %w", err)
	}

	if db.Dialector.Name() != "postgres" {
		return nil
	}

	for _, fk := range foreignKeys {
		stmt := fmt.Sprintf(`
DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1
    FROM pg_constraint
    WHERE conname = '%s'
  ) THEN
    ALTER TABLE %s
    ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (id);
  END IF;
END $$;`, fk.name, fk.table, fk.name, fk.column, fk.references)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("adding constraint %s: %w", fk.name, err)
		}
	}

	return nil
}

type foreignKey struct {
	name       string
	table      string
	column     string
	references string
}

var foreignKeys = []foreignKey{
	{"fk_groups_owner", "groups", "owner_id", "users"},
	{"fk_group_memberships_group", "group_memberships", "group_id", "groups"},
	{"fk_group_memberships_user", "group_memberships", "user_id", "users"},
	{"fk_join_requests_group", "join_requests", "group_id", "groups"},
	{"fk_join_requests_user", "join_requests", "user_id", "users"},
}

// CreateAdmin inserts an administrator with a local password. It fails if
// the username is taken.
func CreateAdmin(db *gorm.DB, username, fullName, password string) (*models.User, error) {
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}

	admin := models.User{
		Username:     username,
		FullName:     fullName,
		PasswordHash: hash,
		Role:         models.UserRoleAdmin,
		AuthProvider: models.AuthProviderLocal,
	}
	if err := db.Create(&admin).Error; err != nil {
		return nil, err
	}
	return &admin, nil
}
