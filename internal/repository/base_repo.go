package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mbeoliero/coachim/internal/config"
	"github.com/mbeoliero/coachim/internal/entity"
)

// Repositories holds all repositories
type Repositories struct {
	DB           *gorm.DB
	Redis        *redis.Client
	User         *UserRepo
	Message      *MessageRepo
	Conversation *ConversationRepo
	Seq          *SeqRepo
}

// NewRepositories opens MySQL and Redis and builds every repository on top of them.
func NewRepositories(cfg *config.Config) (*Repositories, error) {
	db, err := initMySQL(cfg)
	if err != nil {
		return nil, err
	}

	return newRepositories(db, initRedis(cfg)), nil
}

func newRepositories(db *gorm.DB, rdb *redis.Client) *Repositories {
	return &Repositories{
		DB:           db,
		Redis:        rdb,
		User:         NewUserRepo(db, rdb),
		Message:      NewMessageRepo(db, rdb),
		Conversation: NewConversationRepo(db, rdb),
		Seq:          NewSeqRepo(db, rdb),
	}
}

// initMySQL initializes MySQL connection
func initMySQL(cfg *config.Config) (*gorm.DB, error) {
	logLevel := logger.Warn
	if cfg.Server.Mode == "debug" {
		logLevel = logger.Info
	}

	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// initRedis initializes Redis connection
func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// Migrate creates or updates the messaging tables.
func (r *Repositories) Migrate(ctx context.Context) error {
	return r.DB.WithContext(ctx).AutoMigrate(
		&entity.User{},
		&entity.Conversation{},
		&entity.Message{},
		&entity.SeqConversation{},
		&entity.SeqUser{},
	)
}

// Close closes all connections
func (r *Repositories) Close() error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return err
	}
	return r.Redis.Close()
}

// Transaction executes fn in a transaction
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.DB.WithContext(ctx).Transaction(fn)
}

// TransactionWithOptions executes fn in a transaction with options
func (r *Repositories) TransactionWithOptions(ctx context.Context, opts *sql.TxOptions, fn func(tx *gorm.DB) error) error {
	return r.DB.WithContext(ctx).Transaction(fn, opts)
}

// CheckConnection checks if database and redis connections are alive
func (r *Repositories) CheckConnection(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		log.CtxError(ctx, "mysql ping failed: %v", err)
		return err
	}

	if err := r.Redis.Ping(ctx).Err(); err != nil {
		log.CtxError(ctx, "redis ping failed: %v", err)
		return err
	}

	return nil
}
