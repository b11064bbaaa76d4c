package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Match is the SQL projection of one match, rebuilt from notifications.
type Match struct {
	MatchID         uint64 `gorm:"primaryKey;autoIncrement:false"`
	Controller      string `gorm:"size:64;index"`
	StakeAmount     string `gorm:"size:80"`
	MaxParticipants uint64
	Phase           string `gorm:"size:16;index"`
	ActiveCount     uint64
	Participants    string
	Losers          string
	Forfeited       string
	Winners         string
	Policy          string `gorm:"size:16"`
	TotalStake      string `gorm:"size:80"`
	ControllerFee   string `gorm:"size:80"`
	PlatformFee     string `gorm:"size:80"`
	PrizePool       string `gorm:"size:80"`
	OpenedAt        uint64
	LastSequence    uint64
	UpdatedAt       time.Time
}

// Payout records one transfer out of a resolved pool.
type Payout struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	MatchID   uint64    `gorm:"index"`
	Recipient string    `gorm:"size:64;index"`
	Amount    string    `gorm:"size:80"`
	Kind      string    `gorm:"size:32"`
	Sequence  uint64    `gorm:"uniqueIndex"`
	CreatedAt time.Time
}

// Cursor remembers the next notification sequence to apply.
type Cursor struct {
	Name     string `gorm:"primaryKey;size:32"`
	Sequence uint64
}

// AutoMigrate creates or updates the indexer tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Match{}, &Payout{}, &Cursor{})
}
