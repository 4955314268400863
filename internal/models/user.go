package models

import (
	"strings"
	"time"

	"community-campaigns/internal/utils"

	"gorm.io/gorm"
)

// User is the read-only identity record consumed by the campaign lifecycle.
type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Email         string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Nickname      string    `gorm:"size:100;not null" json:"nickname"`
	WalletAddress string    `gorm:"size:42" json:"wallet_address"`
	IsAdmin       bool      `gorm:"default:false" json:"is_admin"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// BeforeCreate normalizes the email and fills in a nickname, which the
// ledger records as the participant name.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if strings.TrimSpace(u.Nickname) == "" {
		nickname, err := utils.GenerateNickname()
		if err != nil {
			return err
		}
		u.Nickname = nickname
	}
	return nil
}
