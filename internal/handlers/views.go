package handlers

import (
	"time"

	"github.com/circles/backend/internal/models"
	"github.com/circles/backend/internal/services"
	"github.com/google/uuid"
)

// Response bodies are built here from entities; the entities themselves
// carry no JSON shaping.

type UserView struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"fullName"`
	PhoneNo      *string   `json:"phoneNo,omitempty"`
	Email        *string   `json:"email,omitempty"`
	Role         string    `json:"role"`
	AuthProvider string    `json:"authProvider"`
	CreatedAt    time.Time `json:"createdAt"`
}

// MemberView is the subset of a user other members get to see.
type MemberView struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	FullName string    `json:"fullName"`
}

type ProfileView struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	FullName string    `json:"fullName"`
	PhoneNo  *string   `json:"phoneNo,omitempty"`
}

type GroupView struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Visibility  string    `json:"visibility"`
	OwnerID     uuid.UUID `json:"ownerID"`
	MemberCount int64     `json:"memberCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type GroupDetailView struct {
	GroupView
	Members []MemberView `json:"members"`
}

type JoinRequestView struct {
	ID          uuid.UUID  `json:"id"`
	GroupID     uuid.UUID  `json:"groupID"`
	UserID      uuid.UUID  `json:"userID"`
	Status      string     `json:"status"`
	DecidedByID *uuid.UUID `json:"decidedByID,omitempty"`
	DecidedAt   *time.Time `json:"decidedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type JoinRequestDetailView struct {
	JoinRequestView
	User      MemberView `json:"user"`
	GroupName string     `json:"groupName"`
}

type AuthView struct {
	Token string   `json:"token"`
	User  UserView `json:"user"`
}

func userView(u *models.User) UserView {
	return UserView{
		ID:           u.ID,
		Username:     u.Username,
		FullName:     u.FullName,
		PhoneNo:      u.PhoneNo,
		Email:        u.Email,
		Role:         string(u.Role),
		AuthProvider: string(u.AuthProvider),
		CreatedAt:    u.CreatedAt,
	}
}

func memberView(u models.User) MemberView {
	return MemberView{ID: u.ID, Username: u.Username, FullName: u.FullName}
}

func profileView(u models.User) ProfileView {
	return ProfileView{ID: u.ID, Username: u.Username, FullName: u.FullName, PhoneNo: u.PhoneNo}
}

func groupView(g models.Group, memberCount int64) GroupView {
	return GroupView{
		ID:          g.ID,
		Name:        g.Name,
		Visibility:  string(g.Visibility),
		OwnerID:     g.OwnerID,
		MemberCount: memberCount,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

func groupSummaryViews(summaries []services.GroupSummary) []GroupView {
	views := make([]GroupView, 0, len(summaries))
	for _, s := range summaries {
		views = append(views, groupView(s.Group, s.MemberCount))
	}
	return views
}

func groupDetailView(d *services.GroupDetail) GroupDetailView {
	members := make([]MemberView, 0, len(d.Members))
	for _, m := range d.Members {
		members = append(members, memberView(m))
	}
	return GroupDetailView{
		GroupView: groupView(d.Group, int64(len(members))),
		Members:   members,
	}
}

func joinRequestView(r *models.JoinRequest) JoinRequestView {
	return JoinRequestView{
		ID:          r.ID,
		GroupID:     r.GroupID,
		UserID:      r.UserID,
		Status:      string(r.Status),
		DecidedByID: r.DecidedByID,
		DecidedAt:   r.DecidedAt,
		CreatedAt:   r.CreatedAt,
	}
}

func joinRequestDetailViews(details []services.JoinRequestDetail) []JoinRequestDetailView {
	views := make([]JoinRequestDetailView, 0, len(details))
	for i := range details {
		views = append(views, JoinRequestDetailView{
			JoinRequestView: joinRequestView(&details[i].Request),
			User:            memberView(details[i].User),
			GroupName:       details[i].Group.Name,
		})
	}
	return views
}
