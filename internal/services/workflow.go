package services

import (
	"context"

	"github.com/circles/backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JoinRequestDetail is a request together with the requester and the group
// it targets.
type JoinRequestDetail struct {
	Request models.JoinRequest
	User    models.User
	Group   models.Group
}

// MembershipWorkflow drives the (user, group) state machine:
//
//	NonMember --join (public)--------------> Member
//	NonMember --request-join (private)-----> Pending
//	Pending   --approve-------------------> Member
//	Pending   --decline / withdraw--------> NonMember
//	NonMember --add-to-private (by member)-> Member
//	Member    --leave / remove-------------> NonMember
//
// The owner is always a Member and can only leave through group deletion.
// Every operation is a single transaction.
type MembershipWorkflow struct {
	DB       *gorm.DB
	Members  *MembershipStore
	Requests *JoinRequestLedger
}

func NewMembershipWorkflow(db *gorm.DB, members *MembershipStore, requests *JoinRequestLedger) *MembershipWorkflow {
	return &MembershipWorkflow{DB: db, Members: members, Requests: requests}
}

// Join adds userID to a public group. Joining twice is not an error.
func (w *MembershipWorkflow) Join(ctx context.Context, groupID, userID uuid.UUID) (*GroupDetail, error) {
	var detail *GroupDetail
	err := runInTx(ctx, w.DB, func(tx *gorm.DB) error {
		group, err := loadGroup(tx, groupID)
		if err != nil {
			return err
		}
		if group.IsPrivate() {
			return forbidden("private groups can only be joined by request")
		}
		if _, err := loadUser(tx, userID); err != nil {
			return err
		}
		if _, err := w.Members.AddMember(tx, groupID, userID); err != nil {
			return err
		}
		detail, err = groupDetail(tx, w.Members, group)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// RequestJoin opens a pending request against a private group. It holds
// the group row like AddToPrivate, so a request never survives next to a
// membership added concurrently.
func (w *MembershipWorkflow) RequestJoin(ctx context.Context, groupID, userID uuid.UUID) (*models.JoinRequest, error) {
	var request *models.JoinRequest
	err := runInTx(ctx, w.DB, func(tx *gorm.DB) error {
		group, err := lockGroup(tx, groupID)
		if err != nil {
			return err
		}
		if !group.IsPrivate() {
			return badRequest("public groups can be joined directly")
		}
		if _, err := loadUser(tx, userID); err != nil {
			return err
		}
		request, err = w.Requests.Create(tx, groupID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

func (w *MembershipWorkflow) Approve(ctx context.Context, requestID, actorID uuid.UUID) (*models.JoinRequest, error) {
	return w.decide(ctx, requestID, DecisionApprove, actorID)
}

func (w *MembershipWorkflow) Decline(ctx context.Context, requestID, actorID uuid.UUID) (*models.JoinRequest, error) {
	return w.decide(ctx, requestID, DecisionReject, actorID)
}

func (w *MembershipWorkflow) decide(ctx context.Context, requestID uuid.UUID, decision Decision, actorID uuid.UUID) (*models.JoinRequest, error) {
	var request *models.JoinRequest
	err := runInTx(ctx, w.DB, func(tx *gorm.DB) error {
		var err error
		request, err = w.Requests.Decide(tx, requestID, decision, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// WithdrawRequest lets a requester take back their own pending request.
func (w *MembershipWorkflow) WithdrawRequest(ctx context.Context, requestID, userID uuid.UUID) (*models.JoinRequest, error) {
	var request *models.JoinRequest
	err := runInTx(ctx, w.DB, func(tx *gorm.DB) error {
		var err error
		request, err = w.Requests.Withdraw(tx, requestID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// AddToPrivate lets any member of a private group add another user. A
// pending request from that user is closed as approved by the actor.
func (w *MembershipWorkflow) AddToPrivate(ctx context.Context, groupID, actorID, targetID uuid.UUID) (*GroupDetail, error) {
	var detail *GroupDetail
	err := runInTx(ctx, w.DB, func(tx *gorm.DB) error {
		group, err := lockGroup(tx, groupID)
		if err != nil {
			return err
		}
		if !group.IsPrivate() {
			return badRequest("public groups can be joined directly")
		}

		member, err := w.Members.IsMember(tx, groupID, actorID)
		if err != nil {
			return err
		}
		if !member {
			return forbidden("only group members can add users")
		}

		if _, err := loadUser(tx, targetID); err != nil {
			return err
		}
		if _, err := w.Members.AddMember(tx, groupID, targetID); err != nil {
			return err
		}
		if _, err := w.Requests.ResolvePending(tx, groupID, targetID, actorID); err != nil {
			return err
		}

		detail, err = groupDetail(tx, w.Members, group)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// Leave removes the caller from a group. The owner cannot leave.
func (w *MembershipWorkflow) Leave(ctx context.Context, groupID, userID uuid.UUID) error {
	return runInTx(ctx, w.DB, func(tx *gorm.DB) error {
		group, err := loadGroup(tx, groupID)
		if err != nil {
			return err
		}
		if group.IsOwner(userID) {
			return forbidden("the group owner cannot leave the group")
		}

		removed, err := w.Members.RemoveMember(tx, groupID, userID)
		if err != nil {
			return err
		}
		if !removed {
			return badRequest("not a member of this group")
		}
		return nil
	})
}

// RemoveMember lets the owner remove another member.
func (w *MembershipWorkflow) RemoveMember(ctx context.Context, groupID, actorID, targetID uuid.UUID) error {
	return runInTx(ctx, w.DB, func(tx *gorm.DB) error {
		group, err := loadGroup(tx, groupID)
		if err != nil {
			return err
		}
		if !group.IsOwner(actorID) {
			return forbidden("only the group owner can remove members")
		}
		if group.IsOwner(targetID) {
			return forbidden("the group owner cannot be removed")
		}

		removed, err := w.Members.RemoveMember(tx, groupID, targetID)
		if err != nil {
			return err
		}
		if !removed {
			return badRequest("user is not a member of this group")
		}
		return nil
	})
}

// GroupRequests lists pending requests of a group. Owner only.
func (w *MembershipWorkflow) GroupRequests(ctx context.Context, groupID, actorID uuid.UUID) ([]JoinRequestDetail, error) {
	var details []JoinRequestDetail
	err := runInTx(ctx, w.DB, func(tx *gorm.DB) error {
		group, err := loadGroup(tx, groupID)
		if err != nil {
			return err
		}
		if !group.IsOwner(actorID) {
			return forbidden("only the group owner can view join requests")
		}

		requests, err := w.Requests.ListPendingForGroup(tx, groupID)
		if err != nil {
			return err
		}
		details, err = describeRequests(tx, requests)
		return err
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}

// IncomingRequests lists pending requests for every group ownerID owns.
func (w *MembershipWorkflow) IncomingRequests(ctx context.Context, ownerID uuid.UUID) ([]JoinRequestDetail, error) {
	return w.listRequests(ctx, func(tx *gorm.DB) ([]models.JoinRequest, error) {
		return w.Requests.ListPendingForOwner(tx, ownerID)
	})
}

// MyRequests lists the user's own requests in every state.
func (w *MembershipWorkflow) MyRequests(ctx context.Context, userID uuid.UUID) ([]JoinRequestDetail, error) {
	return w.listRequests(ctx, func(tx *gorm.DB) ([]models.JoinRequest, error) {
		return w.Requests.ListForUser(tx, userID)
	})
}

func (w *MembershipWorkflow) listRequests(ctx context.Context, list func(tx *gorm.DB) ([]models.JoinRequest, error)) ([]JoinRequestDetail, error) {
	var details []JoinRequestDetail
	err := runInTx(ctx, w.DB, func(tx *gorm.DB) error {
		requests, err := list(tx)
		if err != nil {
			return err
		}
		details, err = describeRequests(tx, requests)
		return err
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}

func describeRequests(tx *gorm.DB, requests []models.JoinRequest) ([]JoinRequestDetail, error) {
	details := make([]JoinRequestDetail, 0, len(requests))
	if len(requests) == 0 {
		return details, nil
	}

	userIDs := make([]uuid.UUID, 0, len(requests))
	groupIDs := make([]uuid.UUID, 0, len(requests))
	for _, request := range requests {
		userIDs = append(userIDs, request.UserID)
		groupIDs = append(groupIDs, request.GroupID)
	}

	var users []models.User
	if err := tx.Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, err
	}
	var groups []models.Group
	if err := tx.Where("id IN ?", groupIDs).Find(&groups).Error; err != nil {
		return nil, err
	}

	usersByID := make(map[uuid.UUID]models.User, len(users))
	for _, user := range users {
		usersByID[user.ID] = user
	}
	groupsByID := make(map[uuid.UUID]models.Group, len(groups))
	for _, group := range groups {
		groupsByID[group.ID] = group
	}

	for _, request := range requests {
		details = append(details, JoinRequestDetail{
			Request: request,
			User:    usersByID[request.UserID],
			Group:   groupsByID[request.GroupID],
		})
	}
	return details, nil
}
