package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// UserCredit is the row behind one balance.
type UserCredit struct {
	UserID    string `gorm:"primaryKey;column:user_id"`
	Balance   int    `gorm:"column:balance;not null"`
	UpdatedAt time.Time
}

func (UserCredit) TableName() string {
	return "user_credits"
}

// PostgresLedger keeps balances in the user_credits table.
type PostgresLedger struct {
	db *gorm.DB
}

func NewPostgresLedger(db *gorm.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Set upserts a user's balance.
func (l *PostgresLedger) Set(ctx context.Context, userID string, balance int) error {
	row := UserCredit{UserID: userID, Balance: balance, UpdatedAt: time.Now()}
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"balance", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Balance(ctx context.Context, userID string) (int, error) {
	var row UserCredit
	err := l.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return row.Balance, nil
}

func (l *PostgresLedger) Debit(ctx context.Context, userID string, amount int) (int, error) {
	var rows []UserCredit
	res := l.db.WithContext(ctx).
		Model(&rows).
		Clauses(clause.Returning{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to debit credits: %w", res.Error)
	}

	if res.RowsAffected == 0 || len(rows) == 0 {
		balance, err := l.Balance(ctx, userID)
		if err != nil {
			return 0, err
		}
		return balance, &InsufficientCreditsError{Required: amount, Available: balance}
	}
	return rows[0].Balance, nil
}
