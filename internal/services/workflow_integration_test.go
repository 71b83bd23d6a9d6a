//go:build integration

package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/circles/backend/internal/config"
	"github.com/circles/backend/internal/database"
	"github.com/circles/backend/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresEnv(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "circles",
			"POSTGRES_PASSWORD": "circles",
			"POSTGRES_DB":       "circles",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	db, err := database.Connect(config.DBConfig{
		Driver:   "postgres",
		Host:     host,
		Port:     port.Port(),
		User:     "circles",
		Password: "circles",
		Name:     "circles",
		SSLMode:  "disable",
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

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

func TestPostgres_ConcurrentJoins(t *testing.T) {
	env := setupPostgresEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "pg-owner", models.UserRoleUser)
	group := env.createGroup(t, owner, "Busy Square", models.GroupVisibilityPublic)

	const joiners = 20
	users := make([]*models.User, joiners)
	for i := range users {
		users[i] = env.createUser(t, fmt.Sprintf("pg-joiner-%02d", i), models.UserRoleUser)
	}

	// Every user joins twice at once; the second join must be a no-op.
	var wg sync.WaitGroup
	errs := make(chan error, joiners*2)
	for _, u := range users {
		for attempt := 0; attempt < 2; attempt++ {
			wg.Add(1)
			go func(u *models.User) {
				defer wg.Done()
				_, err := env.workflow.Join(ctx, group.ID, u.ID)
				errs <- err
			}(u)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, env.memberIDs(t, group.ID), joiners+1)
}

func TestPostgres_ConcurrentRequestsAndDecisions(t *testing.T) {
	env := setupPostgresEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "pg-req-owner", models.UserRoleUser)
	requester := env.createUser(t, "pg-requester", models.UserRoleUser)
	group := env.createGroup(t, owner, "Locked Room", models.GroupVisibilityPrivate)

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.workflow.RequestJoin(ctx, group.ID, requester.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	created := 0
	for err := range results {
		if err == nil {
			created++
			continue
		}
		requireKind(t, err, KindConflict)
	}
	require.Equal(t, 1, created)

	pending, err := env.workflow.GroupRequests(ctx, group.ID, owner.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	requestID := pending[0].Request.ID

	decisions := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := env.workflow.Approve(ctx, requestID, owner.ID)
		decisions <- err
	}()
	go func() {
		defer wg.Done()
		_, err := env.workflow.Decline(ctx, requestID, owner.ID)
		decisions <- err
	}()
	wg.Wait()
	close(decisions)

	succeeded := 0
	for err := range decisions {
		if err == nil {
			succeeded++
			continue
		}
		requireKind(t, err, KindNotFound)
	}
	require.Equal(t, 1, succeeded)

	request := env.reloadRequest(t, requestID)
	isMember, err := env.members.IsMember(env.db, group.ID, requester.ID)
	require.NoError(t, err)
	require.Equal(t, request.Status == models.JoinRequestApproved, isMember)
}

func TestPostgres_CancelledContextIsTransient(t *testing.T) {
	env := setupPostgresEnv(t)

	owner := env.createUser(t, "pg-cancel-owner", models.UserRoleUser)
	group := env.createGroup(t, owner, "Cancelled", models.GroupVisibilityPublic)
	user := env.createUser(t, "pg-cancel-user", models.UserRoleUser)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.workflow.Join(ctx, group.ID, user.ID)
	requireKind(t, err, KindTransient)
	require.Len(t, env.memberIDs(t, group.ID), 1)
}

func TestPostgres_DeleteRacingJoins(t *testing.T) {
	env := setupPostgresEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "pg-del-owner", models.UserRoleUser)
	group := env.createGroup(t, owner, "Vanishing", models.GroupVisibilityPublic)

	const joiners = 12
	users := make([]*models.User, joiners)
	for i := range users {
		users[i] = env.createUser(t, fmt.Sprintf("pg-del-joiner-%02d", i), models.UserRoleUser)
	}

	var wg sync.WaitGroup
	errs := make(chan error, joiners)
	for _, u := range users {
		wg.Add(1)
		go func(u *models.User) {
			defer wg.Done()
			_, err := env.workflow.Join(ctx, group.ID, u.ID)
			errs <- err
		}(u)
	}
	_, deleteErr := env.groups.Delete(ctx, group.ID, owner.ID)
	wg.Wait()
	close(errs)

	require.NoError(t, deleteErr)
	for err := range errs {
		if err != nil {
			requireKind(t, err, KindNotFound)
		}
	}
	require.Empty(t, env.memberIDs(t, group.ID))
}

func TestPostgres_RequestRacingAddToPrivate(t *testing.T) {
	env := setupPostgresEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "pg-race-owner", models.UserRoleUser)

	for round := 0; round < 10; round++ {
		group := env.createGroup(t, owner, fmt.Sprintf("Race %02d", round), models.GroupVisibilityPrivate)
		target := env.createUser(t, fmt.Sprintf("pg-race-target-%02d", round), models.UserRoleUser)

		var wg sync.WaitGroup
		wg.Add(2)
		var requestErr, addErr error
		go func() {
			defer wg.Done()
			_, requestErr = env.workflow.RequestJoin(ctx, group.ID, target.ID)
		}()
		go func() {
			defer wg.Done()
			_, addErr = env.workflow.AddToPrivate(ctx, group.ID, owner.ID, target.ID)
		}()
		wg.Wait()

		require.NoError(t, addErr)
		if requestErr != nil {
			requireKind(t, requestErr, KindConflict)
		}

		var pending int64
		require.NoError(t, env.db.Model(&models.JoinRequest{}).
			Where("group_id = ? AND user_id = ? AND status = ?", group.ID, target.ID, models.JoinRequestPending).
			Count(&pending).Error)
		require.Zero(t, pending, "round %d left a pending request for a member", round)
	}
}
