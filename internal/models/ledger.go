package models

import "time"

// LedgerEntry is one reward grant applied to a player's account.
type LedgerEntry struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	AccountID string    `gorm:"index;size:64" json:"account_id"`
	Coins     int       `json:"coins"`
	XP        int       `json:"xp"`
	Activity  string    `gorm:"size:64" json:"activity"`
	Note      string    `gorm:"size:255" json:"note"`
	CreatedAt time.Time `json:"created_at"`
}
