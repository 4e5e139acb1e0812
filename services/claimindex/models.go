package claimindex

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Distributor mirrors the latest known parameters of a distributor.
type Distributor struct {
	ID               string `gorm:"primaryKey;size:64"`
	Version          uint64
	Root             string `gorm:"size:64"`
	Hasher           string `gorm:"size:32"`
	Mint             string `gorm:"index;size:64"`
	Vault            string `gorm:"size:64"`
	Admin            string `gorm:"index;size:64"`
	ClawbackReceiver string `gorm:"size:64"`
	MaxTotalClaim    uint64
	MaxNumNodes      uint64
	StartTs          int64
	EndTs            int64
	ClawbackStartTs  int64
	Funded           uint64
	ClawedBack       bool
	ClawbackAmount   uint64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Event is the append-only audit log of every committed distributor event.
type Event struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	DistributorID string    `gorm:"index;size:64"`
	Type          string    `gorm:"index;size:64"`
	Claimant      string    `gorm:"index;size:64"`
	Amount        uint64
	Attributes    string `gorm:"type:text"`
	OccurredAt    time.Time
	CreatedAt     time.Time
}

// Claim aggregates one claimant's activity on one distributor.
type Claim struct {
	DistributorID  string `gorm:"primaryKey;size:64"`
	Claimant       string `gorm:"primaryKey;size:64;index"`
	UnlockedAmount uint64
	LockedAmount   uint64
	Withdrawn      uint64
	FirstClaimAt   time.Time
	LastClaimAt    time.Time
	UpdatedAt      time.Time
}

// TotalClaimed is the unlocked amount plus every locked withdrawal.
func (c Claim) TotalClaimed() uint64 { return c.UnlockedAmount + c.Withdrawn }

// AutoMigrate performs all schema migrations for the index.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Distributor{},
		&Event{},
		&Claim{},
	)
}
