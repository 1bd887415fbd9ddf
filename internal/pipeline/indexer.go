// Package pipeline consumes transcript events and feeds the search index.
package pipeline

import (
	"context"
	"fmt"

	"graceway-go/internal/model"
	"graceway-go/pkg/es"
	"graceway-go/pkg/events"
	"graceway-go/pkg/log"

	"github.com/google/uuid"
)

// TranscriptIndexer indexes persisted chat turns into Elasticsearch so the
// user can search their own transcripts.
type TranscriptIndexer struct {
	indexName string
}

// NewTranscriptIndexer creates a TranscriptIndexer for the given index.
func NewTranscriptIndexer(indexName string) *TranscriptIndexer {
	return &TranscriptIndexer{indexName: indexName}
}

// Process indexes every turn of the event. A turn that fails keeps the rest
// from being lost; the first failure is returned so the consumer can retry.
func (p *TranscriptIndexer) Process(ctx context.Context, event events.TranscriptEvent) error {
	var firstErr error
	for _, turn := range event.Turns {
		docID := turn.MessageID
		if docID == "" {
			docID = uuid.NewString()
		}
		doc := model.EsMessageDoc{
			MessageID:      docID,
			ConversationID: event.ConversationID,
			UserID:         event.UserID,
			AssistantRole:  event.AssistantRole,
			Sender:         turn.Sender,
			Content:        turn.Content,
			CreatedAt:      turn.CreatedAt,
		}
		if err := es.IndexMessage(ctx, p.indexName, doc); err != nil {
			log.Errorf("failed to index turn %s of conversation %s: %v", docID, event.ConversationID, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("indexing turn %s: %w", docID, err)
			}
		}
	}
	return firstErr
}
