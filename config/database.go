package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// DatabaseDialector builds the gorm dialector from the environment.
//
// DB_DRIVER selects "postgres" (default) or "mysql". DATABASE_URL is used
// verbatim when set; otherwise the DSN is assembled from DB_USER, DB_PASSWORD,
// DB_HOST, DB_PORT, DB_NAME and DB_SSLMODE.
func DatabaseDialector() (gorm.Dialector, error) {
	driver := strings.ToLower(strings.TrimSpace(os.Getenv("DB_DRIVER")))
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))

	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")

	switch driver {
	case "", "postgres", "postgresql":
		if dsn == "" {
			if dbHost == "" {
				return nil, errors.New("DATABASE_URL or DB_HOST is required")
			}
			if dbPort == "" {
				dbPort = "5432"
			}
			sslMode := os.Getenv("DB_SSLMODE")
			if sslMode == "" {
				sslMode = "disable"
			}
			dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
				dbHost, dbUser, dbPassword, dbName, dbPort, sslMode)
		}
		return postgres.Open(dsn), nil
	case "mysql":
		if dsn == "" {
			if dbHost == "" {
				return nil, errors.New("DATABASE_URL or DB_HOST is required")
			}
			if dbPort == "" {
				dbPort = "3306"
			}
			cfg := mysqldriver.NewConfig()
			cfg.User = dbUser
			cfg.Passwd = dbPassword
			cfg.DBName = dbName
			cfg.ParseTime = true
			cfg.Loc = time.UTC
			cfg.Net = "tcp"
			cfg.Addr = fmt.Sprintf("%s:%s", dbHost, dbPort)
			// Cloud SQL Auth Proxy exposes a unix socket under /cloudsql/<CONNECTION_NAME>.
			if strings.HasPrefix(dbHost, "/cloudsql/") {
				cfg.Net = "unix"
				cfg.Addr = dbHost
			}
			dsn = cfg.FormatDSN()
		}
		return mysql.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
}

// ConnectDatabaseWithRetry connects and sets the global DB. maxAttempts <= 0
// retries forever.
func ConnectDatabaseWithRetry(maxAttempts int) error {
	dialector, err := DatabaseDialector()
	if err != nil {
		return err
	}

	var attempt int
	for {
		attempt++
		var conn *gorm.DB
		conn, err = gorm.Open(dialector, initConfig())
		if err == nil {
			// Env overrides (optional):
			// - DB_MAX_OPEN_CONNS (default 20)
			// - DB_MAX_IDLE_CONNS (default 10)
			// - DB_CONN_MAX_LIFETIME_SECONDS (default 300)
			if sqlDB, derr := conn.DB(); derr == nil && sqlDB != nil {
				maxOpen := EnvInt("DB_MAX_OPEN_CONNS", 20)
				maxIdle := EnvInt("DB_MAX_IDLE_CONNS", 10)
				connMaxLife := time.Duration(EnvInt("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second

				if maxOpen > 0 {
					sqlDB.SetMaxOpenConns(maxOpen)
				}
				if maxIdle >= 0 {
					sqlDB.SetMaxIdleConns(maxIdle)
				}
				if connMaxLife > 0 {
					sqlDB.SetConnMaxLifetime(connMaxLife)
				}
			}

			if pluginErr := conn.Use(otelgorm.NewPlugin()); pluginErr != nil {
				log.Printf("db connected but failed to install otelgorm plugin: %v", pluginErr)
			}
			db = conn
			log.Printf("connected to database (driver=%s attempt=%d)", dialector.Name(), attempt)
			return nil
		}

		if maxAttempts > 0 && attempt >= maxAttempts {
			return fmt.Errorf("connect database after %d attempts: %w", attempt, err)
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to connect database (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		time.Sleep(sleep)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         WriteGormLog(),
		NamingStrategy: initNamingStrategy(),
	}
}

func initLog() logger.Interface {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)
	return newLogger
}

func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}

// WriteGormLog writes SQL at info level to the file named by GORM_LOG, or
// falls back to errors on stdout.
func WriteGormLog() logger.Interface {
	logFile := os.Getenv("GORM_LOG")
	if logFile == "" {
		return initLog()
	}
	f, err := os.Create(logFile)
	if err != nil {
		log.Printf("cannot create GORM_LOG %s: %v", logFile, err)
		return initLog()
	}
	newLogger := logger.New(log.New(io.MultiWriter(f), "\r\n", log.LstdFlags), logger.Config{
		Colorful:      true,
		LogLevel:      logger.Info,
		SlowThreshold: time.Second,
	})
	return newLogger
}
