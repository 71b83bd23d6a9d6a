package services

import (
	"context"
	"testing"

	"github.com/circles/backend/internal/database"
	"github.com/circles/backend/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db       *gorm.DB
	members  *MembershipStore
	requests *JoinRequestLedger
	groups   *GroupService
	workflow *MembershipWorkflow
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Open(sqlite.Open(":memory:"))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	members := NewMembershipStore()
	requests := NewJoinRequestLedger(members)
	return &testEnv{
		db:       db,
		members:  members,
		requests: requests,
		groups:   NewGroupService(db, members, requests),
		workflow: NewMembershipWorkflow(db, members, requests),
	}
}

func (e *testEnv) createUser(t *testing.T, username string, role models.UserRole) *models.User {
	t.Helper()

	user := models.User{
		Username:     username,
		FullName:     username,
		PasswordHash: "unused",
		Role:         role,
		AuthProvider: models.AuthProviderLocal,
	}
	require.NoError(t, e.db.Create(&user).Error)
	return &user
}

func (e *testEnv) createGroup(t *testing.T, owner *models.User, name string, visibility models.GroupVisibility) *models.Group {
	t.Helper()

	group, err := e.groups.Create(context.Background(), name, visibility, owner.ID)
	require.NoError(t, err)
	return group
}

func (e *testEnv) memberIDs(t *testing.T, groupID uuid.UUID) []uuid.UUID {
	t.Helper()

	var ids []uuid.UUID
	require.NoError(t, e.db.Model(&models.GroupMembership{}).Where("group_id = ?", groupID).Pluck("user_id", &ids).Error)
	return ids
}

func (e *testEnv) reloadRequest(t *testing.T, id uuid.UUID) models.JoinRequest {
	t.Helper()

	var request models.JoinRequest
	require.NoError(t, e.db.First(&request, "id = ?", id).Error)
	return request
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, KindOf(err), "unexpected error: %v", err)
}
