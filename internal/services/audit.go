package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/circles/backend/internal/models"
	"github.com/circles/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultAuditQueueSize = 1000
	auditExportBatchSize  = 10000
)

type AuditEntry struct {
	ActorID      *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	Details      map[string]interface{}
	IPAddress    string
	RequestID    string
}

// ObjectUploader stores one object. storage.MinIOClient satisfies it.
type ObjectUploader interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
}

// AuditService records membership and account events off the request path.
// Entries are queued and written by a single background goroutine; when
// the queue is full, entries are dropped and a warning is logged.
type AuditService struct {
	DB      *gorm.DB
	Storage ObjectUploader

	queue  chan models.AuditLog
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAuditService(db *gorm.DB, uploader ObjectUploader, queueSize int) *AuditService {
	if queueSize <= 0 {
		queueSize = defaultAuditQueueSize
	}
	s := &AuditService{
		DB:      db,
		Storage: uploader,
		queue:   make(chan models.AuditLog, queueSize),
		done:    make(chan struct{}),
	}
	go s.processQueue()
	return s
}

func (s *AuditService) LogAsync(entry AuditEntry) {
	row := models.AuditLog{
		ActorID:      entry.ActorID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Details:      entry.Details,
		IPAddress:    entry.IPAddress,
		RequestID:    entry.RequestID,
		CreatedAt:    time.Now().UTC(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.queue <- row:
	default:
		logger.Warn("audit_queue_full", map[string]interface{}{
			"action":  entry.Action,
			"dropped": true,
		})
	}
}

// Close stops accepting entries and waits for the queue to drain.
func (s *AuditService) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *AuditService) processQueue() {
	defer close(s.done)
	for row := range s.queue {
		if err := s.DB.Create(&row).Error; err != nil {
			logger.Error("audit_log_insert_failed", err, map[string]interface{}{
				"action": row.Action,
			})
		}
	}
}

// StartExporter ships new audit rows to object storage every interval
// until ctx is cancelled.
func (s *AuditService) StartExporter(ctx context.Context, interval time.Duration) {
	if s.Storage == nil {
		logger.Info("audit_exporter_disabled", map[string]interface{}{
			"reason": "no storage client configured",
		})
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Export(ctx); err != nil {
					logger.Error("audit_export_failed", err, nil)
				}
			}
		}
	}()

	logger.Info("audit_exporter_started", map[string]interface{}{
		"interval": interval.String(),
	})
}

// Export uploads every row newer than the export cursor as one NDJSON
// object and advances the cursor. It returns the number of rows shipped.
func (s *AuditService) Export(ctx context.Context) (int, error) {
	db := s.DB.WithContext(ctx)

	var cursor models.AuditExportCursor
	if err := db.First(&cursor).Error; err != nil {
		if !isRecordNotFound(err) {
			return 0, fmt.Errorf("loading export cursor: %w", err)
		}
		cursor = models.AuditExportCursor{LastExportAt: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)}
		if err := db.Create(&cursor).Error; err != nil {
			return 0, fmt.Errorf("creating export cursor: %w", err)
		}
	}

	var rows []models.AuditLog
	if err := db.Where("created_at > ?", cursor.LastExportAt).
		Order("created_at ASC").
		Limit(auditExportBatchSize).
		Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("querying audit rows: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return 0, fmt.Errorf("encoding audit row %s: %w", row.ID, err)
		}
	}

	now := time.Now().UTC()
	objectName := fmt.Sprintf("audit-logs/%s/%s.ndjson", now.Format("2006/01/02"), now.Format("15-04-05.000"))
	if err := s.Storage.Upload(ctx, objectName, &buf, int64(buf.Len()), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("uploading %s: %w", objectName, err)
	}

	err := db.Model(&cursor).Updates(map[string]interface{}{
		"last_export_at": rows[len(rows)-1].CreatedAt,
		"exported_count": gorm.Expr("exported_count + ?", len(rows)),
	}).Error
	if err != nil {
		return 0, fmt.Errorf("advancing export cursor: %w", err)
	}

	logger.Info("audit_export_success", map[string]interface{}{
		"object_name": objectName,
		"count":       len(rows),
	})
	return len(rows), nil
}
