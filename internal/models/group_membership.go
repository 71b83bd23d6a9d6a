package models

import (
	"time"

	"github.com/google/uuid"
)

// GroupMembership is the (group, user) pair. The composite primary key is
// the uniqueness constraint that idempotent inserts rely on.
type GroupMembership struct {
	GroupID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (GroupMembership) TableName() string {
	return "group_memberships"
}
