package config

import (
	"fmt"
	"path"
	"time"

	"github.com/eskrenkovic/challenge-board/internal/modules/env"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/bcrypt"
)

const (
	PortEnv        = "PORT"
	DatabaseUrlEnv = "DATABASE_URL"
	RootPathEnv    = "ROOT_PATH"

	StoreTimeoutEnv         = "STORE_TIMEOUT"
	BcryptCostEnv           = "BCRYPT_COST"
	LogLevelEnv             = "LOG_LEVEL"
	AllowedOriginsEnv       = "ALLOWED_ORIGINS"
	ResetPresenceOnStartEnv = "RESET_PRESENCE_ON_START"
)

const defaultStoreTimeout = 5 * time.Second

type Config struct {
	Logger *zap.Logger

	Port           int
	DatabaseURL    string
	MigrationsPath string

	// StoreTimeout bounds every store call made on behalf of a connection.
	StoreTimeout time.Duration
	BcryptCost   int

	AllowedOrigins       []string
	ResetPresenceOnStart bool
}

func Load() (conf Config, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to load configuration: %v", r)
		}
	}()

	logLevel, err := zapcore.ParseLevel(env.GetStringOrDefault(LogLevelEnv, "info"))
	if err != nil {
		return Config{}, err
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(logLevel)

	logger, err := loggerConfig.Build()
	if err != nil {
		return Config{}, err
	}

	port := env.MustGetInt(PortEnv)
	dbURL := env.MustGetURL(DatabaseUrlEnv)
	if dbURL.Scheme != "postgres" && dbURL.Scheme != "postgresql" {
		return Config{}, fmt.Errorf("invalid %s - unsupported scheme '%s'", DatabaseUrlEnv, dbURL.Scheme)
	}

	rootPath := env.MustGetString(RootPathEnv)
	migrationsPath := path.Join(rootPath, "db", "migrations")

	bcryptCost := env.GetIntOrDefault(BcryptCostEnv, bcrypt.DefaultCost)
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		return Config{}, fmt.Errorf("invalid %s - '%d'", BcryptCostEnv, bcryptCost)
	}

	storeTimeout := env.GetDurationOrDefault(StoreTimeoutEnv, defaultStoreTimeout)
	if storeTimeout <= 0 {
		return Config{}, fmt.Errorf("invalid %s - '%s'", StoreTimeoutEnv, storeTimeout)
	}

	return Config{
		Logger:               logger,
		Port:                 port,
		DatabaseURL:          dbURL.String(),
		MigrationsPath:       migrationsPath,
		StoreTimeout:         storeTimeout,
		BcryptCost:           bcryptCost,
		AllowedOrigins:       env.GetListOrDefault(AllowedOriginsEnv, nil),
		ResetPresenceOnStart: env.GetBoolOrDefault(ResetPresenceOnStartEnv, true),
	}, nil
}
