package db

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/techagentng/citizenchat/config"
	"github.com/techagentng/citizenchat/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GormDB struct {
	DB *gorm.DB
	// Clock stamps every row the repositories write. Defaults to now.
	Clock func() time.Time
}

func GetDB(c *config.Config) *GormDB {
	gormDB := &GormDB{}
	gormDB.Init(c)
	return gormDB
}

// NewGormDB wraps an already opened connection and migrates it.
func NewGormDB(db *gorm.DB) (*GormDB, error) {
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &GormDB{DB: db, Clock: now}, nil
}

func (g *GormDB) Init(c *config.Config) {
	g.DB = getPostgresDB(c)
	g.Clock = now

	if err := migrate(g.DB); err != nil {
		log.Fatal("unable to run migrations", "err", err)
	}
}

// Ping checks the underlying connection.
func (g *GormDB) Ping(ctx context.Context) error {
	sqlDB, err := g.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (g *GormDB) Close() error {
	sqlDB, err := g.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func getPostgresDB(c *config.Config) *gorm.DB {
	log.Info("Connecting to postgres", "host", c.PostgresHost, "port", c.PostgresPort, "db", c.PostgresDB)
	postgresDSN := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort, c.PostgresSSLMode)

	gormConfig := &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
	if c.Env != "prod" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		DSN: postgresDSN,
	}), gormConfig)
	if err != nil {
		log.Fatal("unable to open postgres", "err", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("unable to get sql handle", "err", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return gormDB
}

func migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Conversation{},
		&models.Participant{},
		&models.Message{},
		&models.Presence{},
	)
	if err != nil {
		return fmt.Errorf("migrations error: %v", err)
	}
	return nil
}

// Now reads the store clock.
func (g *GormDB) Now() time.Time {
	if g.Clock == nil {
		return now()
	}
	return g.Clock().UTC().Truncate(time.Microsecond)
}

// now returns the store clock: UTC, truncated to the microsecond precision
// postgres keeps, so timestamps round-trip through cursors unchanged.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
