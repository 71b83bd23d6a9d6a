package services

import (
	"time"

	"github.com/circles/backend/internal/database"
	"github.com/circles/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MembershipStore owns every read and write of the group_memberships
// table. All methods run on the caller's transaction.
type MembershipStore struct{}

func NewMembershipStore() *MembershipStore {
	return &MembershipStore{}
}

// AddMember inserts the pair unless it already exists. It reports whether
// a row was written; concurrent identical calls all succeed.
func (s *MembershipStore) AddMember(tx *gorm.DB, groupID, userID uuid.UUID) (bool, error) {
	membership := models.GroupMembership{
		GroupID:   groupID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}

	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&membership)
	if result.Error != nil {
		if database.IsForeignKeyViolation(result.Error) {
			return false, notFound("group or user not found")
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RemoveMember deletes the pair if present and reports whether it did.
func (s *MembershipStore) RemoveMember(tx *gorm.DB, groupID, userID uuid.UUID) (bool, error) {
	result := tx.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&models.GroupMembership{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *MembershipStore) IsMember(tx *gorm.DB, groupID, userID uuid.UUID) (bool, error) {
	var count int64
	err := tx.Model(&models.GroupMembership{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	return count > 0, err
}

// ListMembers returns the group's members in the order they joined.
func (s *MembershipStore) ListMembers(tx *gorm.DB, groupID uuid.UUID) ([]models.User, error) {
	var users []models.User
	err := tx.Model(&models.User{}).
		Joins("JOIN group_memberships ON group_memberships.user_id = users.id").
		Where("group_memberships.group_id = ?", groupID).
		Order("group_memberships.created_at ASC, users.username ASC").
		Find(&users).Error
	return users, err
}

// CountMembers returns member counts keyed by group id. Groups without
// rows are absent from the map.
func (s *MembershipStore) CountMembers(tx *gorm.DB, groupIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(groupIDs))
	if len(groupIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		GroupID uuid.UUID
		Total   int64
	}
	err := tx.Model(&models.GroupMembership{}).
		Select("group_id, COUNT(*) AS total").
		Where("group_id IN ?", groupIDs).
		Group("group_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		counts[row.GroupID] = row.Total
	}
	return counts, nil
}

// DeleteAllForGroup removes every membership row of the group.
func (s *MembershipStore) DeleteAllForGroup(tx *gorm.DB, groupID uuid.UUID) error {
	return tx.Where("group_id = ?", groupID).Delete(&models.GroupMembership{}).Error
}

// ListGroupIDsForUser returns the ids of every group the user belongs to.
func (s *MembershipStore) ListGroupIDsForUser(tx *gorm.DB, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := tx.Model(&models.GroupMembership{}).
		Where("user_id = ?", userID).
		Pluck("group_id", &ids).Error
	return ids, err
}
