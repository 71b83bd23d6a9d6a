package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/circles/backend/internal/models"
	"github.com/circles/backend/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GroupDetail is a group together with its members, in join order.
type GroupDetail struct {
	Group   models.Group
	Members []models.User
}

type GroupSummary struct {
	Group       models.Group
	MemberCount int64
}

// GroupPatch carries the fields a caller asked to change. Visibility is
// accepted only so that an attempt to change it can be rejected.
type GroupPatch struct {
	Name       *string
	Visibility *string
}

func (p GroupPatch) empty() bool {
	return p.Name == nil && p.Visibility == nil
}

// GroupFilter selects which groups List returns. A zero filter lists all.
type GroupFilter struct {
	Visibility models.GroupVisibility
	MemberID   uuid.UUID
}

type GroupService struct {
	DB       *gorm.DB
	Members  *MembershipStore
	Requests *JoinRequestLedger
}

func NewGroupService(db *gorm.DB, members *MembershipStore, requests *JoinRequestLedger) *GroupService {
	return &GroupService{DB: db, Members: members, Requests: requests}
}

// Create inserts the group and the owner's membership together.
func (s *GroupService) Create(ctx context.Context, name string, visibility models.GroupVisibility, ownerID uuid.UUID) (*models.Group, error) {
	name, err := validateGroupName(name)
	if err != nil {
		return nil, err
	}
	if _, ok := models.ParseGroupVisibility(string(visibility)); !ok {
		return nil, badRequest("visibility must be public or private")
	}

	group := models.Group{Name: name, Visibility: visibility, OwnerID: ownerID}
	err = runInTx(ctx, s.DB, func(tx *gorm.DB) error {
		if _, err := loadUser(tx, ownerID); err != nil {
			return err
		}
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		_, err := s.Members.AddMember(tx, group.ID, ownerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// Update renames a group. Private groups can only be renamed by their
// owner; public groups by any member.
func (s *GroupService) Update(ctx context.Context, groupID, actorID uuid.UUID, patch GroupPatch) (*models.Group, error) {
	if patch.empty() {
		return nil, badRequest("no fields to update")
	}

	var group *models.Group
	err := runInTx(ctx, s.DB, func(tx *gorm.DB) error {
		var err error
		group, err = loadGroup(tx, groupID)
		if err != nil {
			return err
		}
		if patch.Visibility != nil {
			return conflict("group visibility cannot be changed")
		}
		name, err := validateGroupName(*patch.Name)
		if err != nil {
			return err
		}

		if group.IsPrivate() {
			if !group.IsOwner(actorID) {
				return forbidden("only the group owner can rename a private group")
			}
		} else {
			member, err := s.Members.IsMember(tx, groupID, actorID)
			if err != nil {
				return err
			}
			if !member {
				return forbidden("only group members can rename this group")
			}
		}

		group.Name = name
		return tx.Model(group).Update("name", name).Error
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// Delete removes the group along with its requests and memberships. The
// owner and admins may delete.
func (s *GroupService) Delete(ctx context.Context, groupID, requesterID uuid.UUID) (*models.Group, error) {
	var group *models.Group
	err := runInTx(ctx, s.DB, func(tx *gorm.DB) error {
		var err error
		group, err = lockGroup(tx, groupID)
		if err != nil {
			return err
		}

		if !group.IsOwner(requesterID) {
			requester, err := loadUser(tx, requesterID)
			if err != nil {
				return err
			}
			if !requester.IsAdmin() {
				return forbidden("only the group owner or an admin can delete this group")
			}
		}

		if err := s.Requests.DeleteAllForGroup(tx, groupID); err != nil {
			return err
		}
		if err := s.Members.DeleteAllForGroup(tx, groupID); err != nil {
			return err
		}
		return tx.Delete(&models.Group{}, "id = ?", groupID).Error
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// Get returns the group with its members. Private groups are visible to
// members and admins only.
func (s *GroupService) Get(ctx context.Context, groupID, viewerID uuid.UUID) (*GroupDetail, error) {
	var detail *GroupDetail
	err := runInTx(ctx, s.DB, func(tx *gorm.DB) error {
		group, err := loadGroup(tx, groupID)
		if err != nil {
			return err
		}

		if group.IsPrivate() {
			member, err := s.Members.IsMember(tx, groupID, viewerID)
			if err != nil {
				return err
			}
			if !member {
				viewer, err := loadUser(tx, viewerID)
				if err != nil {
					return err
				}
				if !viewer.IsAdmin() {
					return forbidden("this group is private")
				}
			}
		}

		detail, err = groupDetail(tx, s.Members, group)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// List returns one page of groups matching filter, newest first, and the
// total number of matches.
func (s *GroupService) List(ctx context.Context, filter GroupFilter, page utils.PaginationParams) ([]GroupSummary, int64, error) {
	query := s.DB.WithContext(ctx).Model(&models.Group{})
	if filter.Visibility != "" {
		query = query.Where("groups.visibility = ?", filter.Visibility)
	}
	if filter.MemberID != uuid.Nil {
		query = query.
			Joins("JOIN group_memberships ON group_memberships.group_id = groups.id").
			Where("group_memberships.user_id = ?", filter.MemberID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, storeError(err)
	}

	var groups []models.Group
	if err := utils.ApplyPagination(query.Order("groups.created_at DESC, groups.id"), page).Find(&groups).Error; err != nil {
		return nil, 0, storeError(err)
	}

	ids := make([]uuid.UUID, len(groups))
	for i, group := range groups {
		ids[i] = group.ID
	}
	counts, err := s.Members.CountMembers(s.DB.WithContext(ctx), ids)
	if err != nil {
		return nil, 0, storeError(err)
	}

	summaries := make([]GroupSummary, len(groups))
	for i, group := range groups {
		summaries[i] = GroupSummary{Group: group, MemberCount: counts[group.ID]}
	}
	return summaries, total, nil
}

func validateGroupName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", badRequest("group name is required")
	}
	if utf8.RuneCountInString(name) > models.MaxGroupNameLength {
		return "", badRequest("group name is too long")
	}
	return name, nil
}

// runInTx runs fn as one unit of work bound to ctx and classifies whatever
// error comes back. fn must only use tx.
func runInTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return storeError(db.WithContext(ctx).Transaction(fn))
}

func loadGroup(tx *gorm.DB, groupID uuid.UUID) (*models.Group, error) {
	var group models.Group
	if err := tx.First(&group, "id = ?", groupID).Error; err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("group not found")
		}
		return nil, err
	}
	return &group, nil
}

// lockGroup loads the group FOR UPDATE. Membership and request inserts
// check their foreign key against this row, so they wait for the lock
// holder and then see the group gone. SQLite already serialises writers.
func lockGroup(tx *gorm.DB, groupID uuid.UUID) (*models.Group, error) {
	if tx.Dialector.Name() == "postgres" {
		tx = tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	return loadGroup(tx, groupID)
}

func loadUser(tx *gorm.DB, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := tx.First(&user, "id = ?", userID).Error; err != nil {
		if isRecordNotFound(err) {
			return nil, notFound("user not found")
		}
		return nil, err
	}
	return &user, nil
}

func groupDetail(tx *gorm.DB, members *MembershipStore, group *models.Group) (*GroupDetail, error) {
	users, err := members.ListMembers(tx, group.ID)
	if err != nil {
		return nil, err
	}
	return &GroupDetail{Group: *group, Members: users}, nil
}
