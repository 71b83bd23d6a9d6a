package models

import (
	"time"

	"github.com/google/uuid"
)

type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestApproved JoinRequestStatus = "approved"
	JoinRequestRejected JoinRequestStatus = "rejected"
)

// JoinRequest records a request to join a private group. Decided requests
// are never reopened and stay in the table as history.
type JoinRequest struct {
	BaseModel
	GroupID     uuid.UUID         `gorm:"type:uuid;not null;index"`
	UserID      uuid.UUID         `gorm:"type:uuid;not null;index"`
	Status      JoinRequestStatus `gorm:"type:varchar(20);not null;default:'pending';index"`
	DecidedByID *uuid.UUID        `gorm:"type:uuid"`
	DecidedAt   *time.Time
}

func (JoinRequest) TableName() string {
	return "join_requests"
}

func (r *JoinRequest) IsPending() bool {
	return r.Status == JoinRequestPending
}
