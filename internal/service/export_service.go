package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"graceway-go/internal/config"
	"graceway-go/internal/model"
	"graceway-go/pkg/storage"
)

// ExportService writes a conversation transcript to object storage and
// hands back a time-limited download URL.
type ExportService interface {
	ExportConversation(ctx context.Context, userID uint, conversationID string) (downloadURL string, err error)
}

type exportService struct {
	convService ConversationService
	bucketName  string
}

// NewExportService creates a new ExportService.
func NewExportService(convService ConversationService, cfg config.MinIOConfig) ExportService {
	return &exportService{convService: convService, bucketName: cfg.BucketName}
}

// transcriptExport is the JSON document written to object storage.
type transcriptExport struct {
	Conversation model.Conversation `json:"conversation"`
	Messages     []model.Message    `json:"messages"`
	ExportedAt   time.Time          `json:"exportedAt"`
}

// ExportConversation verifies ownership, serializes the transcript, uploads
// it and returns a presigned URL valid for one hour.
func (s *exportService) ExportConversation(ctx context.Context, userID uint, conversationID string) (string, error) {
	conv, msgs, err := s.convService.GetMessages(userID, conversationID)
	if err != nil {
		return "", err
	}

	export := transcriptExport{
		Conversation: *conv,
		Messages:     msgs,
		ExportedAt:   time.Now(),
	}
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize transcript: %w", err)
	}

	objectName := fmt.Sprintf("exports/%d/%s-%d.json", userID, conversationID, time.Now().Unix())
	if err := storage.PutObject(ctx, s.bucketName, objectName, "application/json", data); err != nil {
		return "", fmt.Errorf("failed to upload transcript: %w", err)
	}

	return storage.GetPresignedURL(s.bucketName, objectName, time.Hour)
}
