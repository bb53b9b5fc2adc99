// Package gorm opens gorm connections for the database entries of the configuration.
// Dialects register themselves from the sqlite, mysql and postgres subpackages.
package gorm

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// DialectorFactory generates a gorm.Dialector from a config.DatabaseConfig.
type DialectorFactory func(cfg config.DatabaseConfig) (gorm.Dialector, error)

var (
	dialectorRegistry = make(map[string]DialectorFactory)
	dialectorMutex    sync.RWMutex
)

// RegisterDialector registers a DialectorFactory for the given database type.
func RegisterDialector(dbType string, factory DialectorFactory) {
	dialectorMutex.Lock()
	defer dialectorMutex.Unlock()
	if _, exists := dialectorRegistry[dbType]; exists {
		logger.Warnf("Dialector for type '%s' already registered. Overwriting.", dbType)
	}
	dialectorRegistry[dbType] = factory
}

// GetDialectorFactory retrieves the DialectorFactory corresponding to the specified DB type.
func GetDialectorFactory(dbType string) (DialectorFactory, error) {
	dialectorMutex.RLock()
	defer dialectorMutex.RUnlock()
	factory, ok := dialectorRegistry[dbType]
	if !ok {
		return nil, fmt.Errorf("no dialector registered for database type: %s", dbType)
	}
	return factory, nil
}

// RegisteredTypes lists the registered database types.
func RegisteredTypes() []string {
	dialectorMutex.RLock()
	defer dialectorMutex.RUnlock()
	out := make([]string, 0, len(dialectorRegistry))
	for t := range dialectorRegistry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Provider opens and caches one connection per named database entry.
type Provider struct {
	databases   map[string]config.DatabaseConfig
	logLevel    string
	connections map[string]*gorm.DB
	mu          sync.Mutex
}

// NewProvider creates a Provider over the database section of cfg.
func NewProvider(cfg *config.Config) *Provider {
	return &Provider{
		databases:   cfg.Sweep.Database,
		logLevel:    cfg.Sweep.System.Logging.Level,
		connections: make(map[string]*gorm.DB),
	}
}

// Config returns the named database entry.
func (p *Provider) Config(name string) (config.DatabaseConfig, error) {
	dbConfig, ok := p.databases[name]
	if !ok {
		return config.DatabaseConfig{}, fmt.Errorf("database configuration '%s' not found under sweep.database", name)
	}
	return dbConfig, nil
}

// GetConnection retrieves an existing connection or establishes a new one.
func (p *Provider) GetConnection(name string) (*gorm.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.connections[name]; ok {
		return db, nil
	}
	dbConfig, err := p.Config(name)
	if err != nil {
		return nil, err
	}
	db, err := Open(dbConfig, p.logLevel)
	if err != nil {
		return nil, fmt.Errorf("connection '%s': %w", name, err)
	}
	p.connections[name] = db
	logger.Infof("Established new DB connection: %s (%s)", name, dbConfig.Type)
	return db, nil
}

// CloseAll closes all connections managed by this provider.
func (p *Provider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for name, db := range p.connections {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				logger.Errorf("Failed to close connection '%s': %v", name, err)
				lastErr = err
			}
		}
		delete(p.connections, name)
	}
	return lastErr
}

// Open establishes a GORM connection for dbConfig and applies its pool settings.
// SQL statements are logged at DEBUG when the application runs at DEBUG.
func Open(dbConfig config.DatabaseConfig, logLevel string) (*gorm.DB, error) {
	dialectorFactory, err := GetDialectorFactory(dbConfig.Type)
	if err != nil {
		return nil, err
	}
	dialector, err := dialectorFactory(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialector for %s: %w", dbConfig.Type, err)
	}

	gormLevel := config.LogLevelSilent
	if config.LogLevel(logLevel) == config.LogLevelDebug {
		gormLevel = config.LogLevelInfo
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: NewGormLogger(string(gormLevel))})
	if err != nil {
		return nil, fmt.Errorf("failed to open GORM connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if dbConfig.Pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(dbConfig.Pool.MaxOpenConns)
	}
	if dbConfig.Pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(dbConfig.Pool.MaxIdleConns)
	}
	if dbConfig.Pool.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.Pool.ConnMaxLifetimeMinutes) * time.Minute)
	}
	return db, nil
}
