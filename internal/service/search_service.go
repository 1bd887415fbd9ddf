package service

import (
	"context"

	"graceway-go/internal/config"
	"graceway-go/internal/model"
	"graceway-go/pkg/es"
)

// SearchService runs full-text search over a user's own transcripts.
type SearchService interface {
	SearchTranscripts(ctx context.Context, userID uint, query string, size int) ([]model.EsMessageDoc, error)
}

type searchService struct {
	indexName string
}

// NewSearchService creates a new SearchService.
func NewSearchService(cfg config.ElasticsearchConfig) SearchService {
	return &searchService{indexName: cfg.IndexName}
}

// SearchTranscripts queries the transcript index scoped to the user.
func (s *searchService) SearchTranscripts(ctx context.Context, userID uint, query string, size int) ([]model.EsMessageDoc, error) {
	if size <= 0 || size > 50 {
		size = 20
	}
	return es.SearchMessages(ctx, s.indexName, userID, query, size)
}
