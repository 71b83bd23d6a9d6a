package models

import "github.com/google/uuid"

type GroupVisibility string

const (
	GroupVisibilityPublic  GroupVisibility = "public"
	GroupVisibilityPrivate GroupVisibility = "private"
)

// MaxGroupNameLength matches the width of groups.name.
const MaxGroupNameLength = 150

type Group struct {
	BaseModel
	Name       string          `gorm:"type:varchar(150);not null"`
	Visibility GroupVisibility `gorm:"type:varchar(10);not null;index"`
	OwnerID    uuid.UUID       `gorm:"type:uuid;not null;index"`
}

func (Group) TableName() string {
	return "groups"
}

func (g *Group) IsPrivate() bool {
	return g.Visibility == GroupVisibilityPrivate
}

func (g *Group) IsOwner(userID uuid.UUID) bool {
	return g.OwnerID == userID
}

func ParseGroupVisibility(value string) (GroupVisibility, bool) {
	switch GroupVisibility(value) {
	case GroupVisibilityPublic, GroupVisibilityPrivate:
		return GroupVisibility(value), true
	default:
		return "", false
	}
}
