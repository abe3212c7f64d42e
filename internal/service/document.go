package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/askbase/askbase/internal/ingestion"
	"github.com/askbase/askbase/internal/repository"
)

// ErrDocumentNotFound is returned when the requested document does not exist.
var ErrDocumentNotFound = errors.New("document not found")

// IngestRequest is a document submission. Page is the page number the
// content came from, for callers that split paginated sources and submit
// one request per page; it is carried into chunk payloads and citations.
type IngestRequest struct {
	DocumentID  string            `json:"document_id,omitempty"`
	Source      string            `json:"source,omitempty"`
	Title       string            `json:"title,omitempty"`
	Filename    string            `json:"filename,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Content     string            `json:"content"`
	Page        int               `json:"page,omitempty"`
	Tags        string            `json:"tags,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// IngestResponse reports the outcome of an ingestion.
type IngestResponse struct {
	DocumentID    string `json:"document_id"`
	Status        string `json:"status"`
	ChunkCount    int    `json:"chunk_count"`
	Characters    int    `json:"characters,omitempty"`
	IndexedOK     int    `json:"indexed_ok"`
	IndexedFailed int    `json:"indexed_failed"`
	Duplicate     bool   `json:"duplicate,omitempty"`
}

// DocumentInfo is the API view of a registry record.
type DocumentInfo struct {
	DocumentID   string            `json:"document_id"`
	Source       string            `json:"source"`
	Title        string            `json:"title"`
	ChunkCount   int               `json:"chunk_count"`
	Status       string            `json:"status"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// DocumentService manages document lifecycle: ingestion, listing, deletion.
type DocumentService struct {
	docRepo  repository.DocumentRepository
	pipeline *ingestion.Pipeline
	logger   *slog.Logger
}

// NewDocumentService creates a DocumentService.
func NewDocumentService(docRepo repository.DocumentRepository, pipeline *ingestion.Pipeline, logger *slog.Logger) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		docRepo:  docRepo,
		pipeline: pipeline,
		logger:   logger,
	}
}

// Ingest registers and processes one document. Re-submitting identical
// content for the same source is a no-op returning the existing record.
func (s *DocumentService) Ingest(ctx context.Context, req IngestRequest) (*IngestResponse, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidRequest)
	}

	documentID := strings.TrimSpace(req.DocumentID)
	if documentID == "" {
		documentID = uuid.New().String()
	}

	source := req.Source
	if source == "" {
		source = "direct-upload"
	}

	// Source participates in the hash so the same text from two origins
	// stays two documents.
	contentHash := hashContent(source + "\n" + req.Content)

	existing, err := s.docRepo.GetByHash(ctx, contentHash)
	if err == nil && existing != nil {
		return &IngestResponse{
			DocumentID: existing.DocumentID,
			Status:     existing.Status,
			ChunkCount: existing.ChunkCount,
			Duplicate:  true,
		}, nil
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("checking for duplicate: %w", err)
	}

	now := time.Now()
	doc := &repository.Document{
		ID:          uuid.New(),
		DocumentID:  documentID,
		Source:      source,
		Title:       req.Title,
		ContentHash: contentHash,
		Status:      repository.StatusProcessing,
		Metadata:    req.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if doc.Title == "" {
		doc.Title = "Untitled Document"
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]string)
	}

	if err := s.docRepo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("creating document record: %w", err)
	}

	result, err := s.pipeline.Ingest(ctx, ingestion.Document{
		DocumentID:  documentID,
		Source:      source,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Content:     []byte(req.Content),
		Page:        req.Page,
		Tags:        req.Tags,
	})
	if err != nil {
		doc.Status = repository.StatusFailed
		doc.ErrorMessage = err.Error()
		if updateErr := s.docRepo.Update(ctx, doc); updateErr != nil {
			s.logger.Error("failed to record ingestion failure",
				"document_id", documentID, "err", updateErr)
		}
		return nil, fmt.Errorf("processing document: %w", err)
	}

	doc.Status = repository.StatusReady
	doc.ChunkCount = result.ChunkCount
	if err := s.docRepo.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("updating document record: %w", err)
	}

	return &IngestResponse{
		DocumentID:    documentID,
		Status:        doc.Status,
		ChunkCount:    result.ChunkCount,
		Characters:    result.Characters,
		IndexedOK:     result.IndexedOK,
		IndexedFailed: result.IndexedFailed,
	}, nil
}

// Get returns one document by its logical key.
func (s *DocumentService) Get(ctx context.Context, documentID string) (*DocumentInfo, error) {
	doc, err := s.docRepo.GetByDocumentID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("getting document: %w", err)
	}
	info := toDocumentInfo(doc)
	return &info, nil
}

// List returns documents with pagination and an optional status filter.
func (s *DocumentService) List(ctx context.Context, status string, limit, offset int) ([]DocumentInfo, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	docs, total, err := s.docRepo.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing documents: %w", err)
	}

	infos := make([]DocumentInfo, len(docs))
	for i, doc := range docs {
		infos[i] = toDocumentInfo(doc)
	}
	return infos, total, nil
}

// Delete removes a document's chunks from the vector store and its record
// from the registry.
func (s *DocumentService) Delete(ctx context.Context, documentID string) error {
	if _, err := s.docRepo.GetByDocumentID(ctx, documentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrDocumentNotFound
		}
		return fmt.Errorf("getting document: %w", err)
	}

	if err := s.pipeline.Delete(ctx, documentID); err != nil {
		return err
	}

	if err := s.docRepo.Delete(ctx, documentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrDocumentNotFound
		}
		return fmt.Errorf("deleting document record: %w", err)
	}

	s.logger.Info("document deleted", "document_id", documentID)
	return nil
}

func toDocumentInfo(doc *repository.Document) DocumentInfo {
	return DocumentInfo{
		DocumentID:   doc.DocumentID,
		Source:       doc.Source,
		Title:        doc.Title,
		ChunkCount:   doc.ChunkCount,
		Status:       doc.Status,
		ErrorMessage: doc.ErrorMessage,
		Metadata:     doc.Metadata,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

// hashContent computes a stable hex digest of document content.
func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
