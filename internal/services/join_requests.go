package services

import (
	"time"

	"github.com/circles/backend/internal/database"
	"github.com/circles/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) status() models.JoinRequestStatus {
	if d == DecisionApprove {
		return models.JoinRequestApproved
	}
	return models.JoinRequestRejected
}

// JoinRequestLedger tracks requests to join private groups. Like
// MembershipStore it only ever works on the caller's transaction.
type JoinRequestLedger struct {
	members *MembershipStore
}

func NewJoinRequestLedger(members *MembershipStore) *JoinRequestLedger {
	return &JoinRequestLedger{members: members}
}

// Create opens a pending request. A second pending request for the same
// pair is rejected by idx_join_requests_pending, so racing creates leave
// exactly one row behind.
func (l *JoinRequestLedger) Create(tx *gorm.DB, groupID, userID uuid.UUID) (*models.JoinRequest, error) {
	member, err := l.members.IsMember(tx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if member {
		return nil, conflict("already a member of this group")
	}

	request := models.JoinRequest{
		GroupID: groupID,
		UserID:  userID,
		Status:  models.JoinRequestPending,
	}
	if err := tx.Create(&request).Error; err != nil {
		switch {
		case database.IsUniqueViolation(err):
			return nil, conflict("a join request for this group is already pending")
		case database.IsForeignKeyViolation(err):
			return nil, notFound("group or user not found")
		}
		return nil, err
	}
	return &request, nil
}

// Decide approves or rejects a pending request on behalf of the group
// owner. Approval adds the membership in the same transaction.
func (l *JoinRequestLedger) Decide(tx *gorm.DB, requestID uuid.UUID, decision Decision, actorID uuid.UUID) (*models.JoinRequest, error) {
	request, err := l.load(tx, requestID)
	if err != nil {
		return nil, err
	}

	var group models.Group
	if err := tx.First(&group, "id = ?", request.GroupID).Error; err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("group not found")
		}
		return nil, err
	}
	if !group.IsOwner(actorID) {
		return nil, forbidden("only the group owner can decide join requests")
	}
	if !request.IsPending() {
		return nil, notFound("join request is no longer pending")
	}

	now := time.Now().UTC()
	status := decision.status()
	result := tx.Model(&models.JoinRequest{}).
		Where("id = ? AND status = ?", request.ID, models.JoinRequestPending).
		Updates(map[string]interface{}{
			"status":        status,
			"decided_by_id": actorID,
			"decided_at":    now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, notFound("join request is no longer pending")
	}

	if decision == DecisionApprove {
		if _, err := l.members.AddMember(tx, request.GroupID, request.UserID); err != nil {
			return nil, err
		}
	}

	request.Status = status
	request.DecidedByID = &actorID
	request.DecidedAt = &now
	return request, nil
}

// Withdraw deletes the caller's own pending request.
func (l *JoinRequestLedger) Withdraw(tx *gorm.DB, requestID, userID uuid.UUID) (*models.JoinRequest, error) {
	request, err := l.load(tx, requestID)
	if err != nil {
		return nil, err
	}
	if request.UserID != userID {
		return nil, forbidden("only the requester can withdraw a join request")
	}
	if !request.IsPending() {
		return nil, notFound("join request is no longer pending")
	}

	result := tx.Where("id = ? AND status = ?", request.ID, models.JoinRequestPending).Delete(&models.JoinRequest{})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, notFound("join request is no longer pending")
	}
	return request, nil
}

// ResolvePending marks any pending request of the pair approved by actorID.
// It is used when a member adds the requester directly.
func (l *JoinRequestLedger) ResolvePending(tx *gorm.DB, groupID, userID, actorID uuid.UUID) (bool, error) {
	result := tx.Model(&models.JoinRequest{}).
		Where("group_id = ? AND user_id = ? AND status = ?", groupID, userID, models.JoinRequestPending).
		Updates(map[string]interface{}{
			"status":        models.JoinRequestApproved,
			"decided_by_id": actorID,
			"decided_at":    time.Now().UTC(),
		})
	return result.RowsAffected > 0, result.Error
}

func (l *JoinRequestLedger) ListPendingForGroup(tx *gorm.DB, groupID uuid.UUID) ([]models.JoinRequest, error) {
	var requests []models.JoinRequest
	err := tx.Where("group_id = ? AND status = ?", groupID, models.JoinRequestPending).
		Order("created_at ASC").
		Find(&requests).Error
	return requests, err
}

// ListPendingForOwner returns pending requests across every group ownerID owns.
func (l *JoinRequestLedger) ListPendingForOwner(tx *gorm.DB, ownerID uuid.UUID) ([]models.JoinRequest, error) {
	var requests []models.JoinRequest
	err := tx.Model(&models.JoinRequest{}).
		Joins("JOIN groups ON groups.id = join_requests.group_id").
		Where("groups.owner_id = ? AND join_requests.status = ?", ownerID, models.JoinRequestPending).
		Order("join_requests.created_at ASC").
		Find(&requests).Error
	return requests, err
}

// ListForUser returns the user's requests in every state, newest first.
func (l *JoinRequestLedger) ListForUser(tx *gorm.DB, userID uuid.UUID) ([]models.JoinRequest, error) {
	var requests []models.JoinRequest
	err := tx.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&requests).Error
	return requests, err
}

func (l *JoinRequestLedger) DeleteAllForGroup(tx *gorm.DB, groupID uuid.UUID) error {
	return tx.Where("group_id = ?", groupID).Delete(&models.JoinRequest{}).Error
}

func (l *JoinRequestLedger) load(tx *gorm.DB, requestID uuid.UUID) (*models.JoinRequest, error) {
	var request models.JoinRequest
	if err := tx.First(&request, "id = ?", requestID).Error; err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("join request not found")
		}
		return nil, err
	}
	return &request, nil
}
