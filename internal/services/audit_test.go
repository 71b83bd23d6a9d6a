package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/circles/backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type uploadedObject struct {
	name        string
	contentType string
	body        []byte
}

type fakeUploader struct {
	mu      sync.Mutex
	objects []uploadedObject
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, objectName string, reader io.Reader, _ int64, contentType string) error {
	if f.err != nil {
		return f.err
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects = append(f.objects, uploadedObject{name: objectName, contentType: contentType, body: body})
	return nil
}

func TestAuditService_LogAsync(t *testing.T) {
	db := newTestDB(t)
	service := NewAuditService(db, nil, 10)

	actorID := uuid.New()
	groupID := uuid.New()
	service.LogAsync(AuditEntry{
		ActorID:      &actorID,
		Action:       "group.join",
		ResourceType: "group",
		ResourceID:   &groupID,
		Details:      map[string]interface{}{"group_name": "Beta"},
		IPAddress:    "127.0.0.1",
		RequestID:    "req-123",
	})
	service.Close()

	var rows []models.AuditLog
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "group.join", rows[0].Action)
	require.NotNil(t, rows[0].ActorID)
	assert.Equal(t, actorID, *rows[0].ActorID)
	assert.Equal(t, "Beta", rows[0].Details["group_name"])

	// entries after Close are discarded instead of panicking
	service.LogAsync(AuditEntry{Action: "group.leave", ResourceType: "group"})
}

func TestAuditService_Export(t *testing.T) {
	db := newTestDB(t)
	uploader := &fakeUploader{}
	service := NewAuditService(db, uploader, 10)
	defer service.Close()
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	for i, action := range []string{"group.create", "group.join", "join_request.create"} {
		row := models.AuditLog{
			Action:       action,
			ResourceType: "group",
			IPAddress:    "10.0.0.1",
			CreatedAt:    base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, db.Create(&row).Error)
	}

	count, err := service.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.Len(t, uploader.objects, 1)
	object := uploader.objects[0]
	assert.True(t, strings.HasPrefix(object.name, "audit-logs/"))
	assert.True(t, strings.HasSuffix(object.name, ".ndjson"))
	assert.Equal(t, "application/x-ndjson", object.contentType)

	var actions []string
	scanner := bufio.NewScanner(bytes.NewReader(object.body))
	for scanner.Scan() {
		var line struct {
			Action string `json:"action"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		actions = append(actions, line.Action)
	}
	assert.Equal(t, []string{"group.create", "group.join", "join_request.create"}, actions)

	var cursor models.AuditExportCursor
	require.NoError(t, db.First(&cursor).Error)
	assert.Equal(t, int64(3), cursor.ExportedCount)

	count, err = service.Export(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "rows already exported must not be shipped again")
	assert.Len(t, uploader.objects, 1)
}

func TestAuditService_ExportUploadFailureKeepsCursor(t *testing.T) {
	db := newTestDB(t)
	uploader := &fakeUploader{err: errors.New("bucket unreachable")}
	service := NewAuditService(db, uploader, 10)
	defer service.Close()

	row := models.AuditLog{Action: "group.delete", ResourceType: "group", IPAddress: "10.0.0.1"}
	require.NoError(t, db.Create(&row).Error)

	_, err := service.Export(context.Background())
	require.Error(t, err)

	var cursor models.AuditExportCursor
	require.NoError(t, db.First(&cursor).Error)
	assert.Zero(t, cursor.ExportedCount)

	uploader.err = nil
	count, err := service.Export(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
