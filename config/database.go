package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var db *gorm.DB

// InitDatabase connects to MySQL, tunes the pool and automigrates the
// given models. Connection failure is fatal: the server is useless
// without its store.
func InitDatabase(modelDefs ...interface{}) *gorm.DB {
	if db != nil {
		return db
	}

	cfg := Get()
	gormDB, err := gorm.Open(mysql.Open(mysqlDSN(cfg)), &gorm.Config{
		Logger:                                   newGormLogger(cfg.LogLevel),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatalf("unwrap sql.DB: %v", err)
	}
	// Idle connections are recycled well under MySQL's wait_timeout so
	// the server never picks up a half-dead connection.
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("database ping: %v", err)
	}

	for _, model := range modelDefs {
		if err := gormDB.AutoMigrate(model); err != nil {
			log.Printf("automigrate %T: %v", model, err)
		}
	}

	db = gormDB
	return db
}

// DB returns the initialized connection.
func DB() *gorm.DB {
	if db == nil {
		log.Fatal("database not initialized, call InitDatabase first")
	}
	return db
}

func mysqlDSN(cfg AppConfig) string {
	if cfg.DatabaseURI != "" {
		return cfg.DatabaseURI
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

// newGormLogger maps the app log level onto gorm's logger; debug shows
// full SQL, everything else only slow queries and errors.
func newGormLogger(level string) logger.Interface {
	gormLevel := logger.Warn
	switch level {
	case "debug":
		gormLevel = logger.Info
	case "error":
		gormLevel = logger.Error
	case "silent":
		gormLevel = logger.Silent
	}
	return logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  gormLevel,
			IgnoreRecordNotFoundError: true,
		},
	)
}
