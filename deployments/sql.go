package deployments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// DeploymentRecord is the SQL row of a deployment.
type DeploymentRecord struct {
	Environment  string `gorm:"primaryKey;size:128"`
	ProxyAddress string `gorm:"size:42;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (DeploymentRecord) TableName() string { return "deployment_records" }

// SQLLedger stores records in a SQL database through gorm.
type SQLLedger struct {
	db *gorm.DB
}

// NewSQLLedger migrates the deployment_records table on db and returns a ledger over it.
func NewSQLLedger(db *gorm.DB) (*SQLLedger, error) {
	if err := db.AutoMigrate(&DeploymentRecord{}); err != nil {
		return nil, fmt.Errorf("migrate deployment records: %w", err)
	}
	return &SQLLedger{db: db}, nil
}

// OpenSQLite opens a SQLite-backed ledger. dsn is a file path or a SQLite URI.
func OpenSQLite(dsn string) (*SQLLedger, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}
	return NewSQLLedger(db)
}

// OpenPostgres opens a PostgreSQL-backed ledger.
func OpenPostgres(dsn string) (*SQLLedger, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open postgres ledger: %w", err)
	}
	return NewSQLLedger(db)
}

func (l *SQLLedger) Read(ctx context.Context, environment string) (common.Address, bool, error) {
	if err := ValidateEnvironment(environment); err != nil {
		return common.Address{}, false, err
	}
	var rec DeploymentRecord
	err := l.db.WithContext(ctx).Where("environment = ?", environment).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.Address{}, false, nil
	}
	if err != nil {
		return common.Address{}, false, fmt.Errorf("load deployment record: %w", err)
	}
	return decode(environment, rec.ProxyAddress)
}

func (l *SQLLedger) Write(ctx context.Context, environment string, addr common.Address) error {
	if err := validateWrite(environment, addr); err != nil {
		return err
	}
	rec := DeploymentRecord{Environment: environment, ProxyAddress: addr.Hex()}
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "environment"}},
		DoUpdates: clause.AssignmentColumns([]string{"proxy_address", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("store deployment record: %w", err)
	}
	return nil
}

func (l *SQLLedger) Clear(ctx context.Context, environment string) error {
	if err := ValidateEnvironment(environment); err != nil {
		return err
	}
	err := l.db.WithContext(ctx).Where("environment = ?", environment).Delete(&DeploymentRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete deployment record: %w", err)
	}
	return nil
}

func (l *SQLLedger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
