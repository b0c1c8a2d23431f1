package models

import (
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Operator represents an account allowed to trigger and inspect batch runs
type Operator struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Role         string     `gorm:"default:'operator'" json:"role"` // operator, admin
	IsActive     bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SetPassword hashes and sets the password for the operator
func (o *Operator) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	o.PasswordHash = string(hash)
	return nil
}

// CheckPassword verifies the provided password against the stored hash
func (o *Operator) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(o.PasswordHash), []byte(password))
	return err == nil
}

// MigrateOperatorModels runs database migrations for operator models
func MigrateOperatorModels(db *gorm.DB) error {
	return db.AutoMigrate(&Operator{})
}

// SeedDefaultOperator creates the default operator if none exists
func SeedDefaultOperator(db *gorm.DB, username, password string) error {
	if username == "" {
		username = "admin"
	}
	if password == "" {
		password = "admin123"
	}

	var count int64
	db.Model(&Operator{}).Count(&count)
	if count > 0 {
		return nil
	}

	op := &Operator{
		Username: username,
		Role:     "admin",
		IsActive: true,
	}
	if err := op.SetPassword(password); err != nil {
		return err
	}
	if err := db.Create(op).Error; err != nil {
		return err
	}
	log.Printf("Seeded default operator %q", username)
	return nil
}
