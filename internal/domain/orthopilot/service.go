package orthopilot

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/revclarity/revclarity/internal/platform/ai"
	"github.com/revclarity/revclarity/internal/platform/jobs"
	"github.com/revclarity/revclarity/internal/platform/storage"
)

// ProcessPayload is the job payload for orthopilot.process.
type ProcessPayload struct {
	DocumentID uuid.UUID `json:"document_id"`
}

// Service owns the document inbox: uploads, the processing lifecycle and the
// referral chat.
type Service struct {
	repo  Repository
	files storage.FileStore
	queue jobs.Queue
	chat  ai.Collaborator
	log   zerolog.Logger
}

func NewService(repo Repository, files storage.FileStore, queue jobs.Queue, chat ai.Collaborator, log zerolog.Logger) *Service {
	return &Service{repo: repo, files: files, queue: queue, chat: chat, log: log}
}

// Upload stores the file, creates a PENDING inbox document and queues
// processing. Clients discover completion by polling the collection.
func (s *Service) Upload(ctx context.Context, fileName string, content io.Reader) (*Document, error) {
	path, err := s.files.Save(ctx, fileName, content)
	if err != nil {
		return nil, err
	}

	d := &Document{
		FileName:       fileName,
		FilePath:       path,
		Status:         StatusPending,
		Classification: ClassificationUnclassified,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}

	job, err := jobs.NewJob(jobs.TypeDocumentProcess, jobs.Key(jobs.TypeDocumentProcess, d.ID),
		ProcessPayload{DocumentID: d.ID})
	if err != nil {
		return nil, err
	}
	if err := s.queue.Enqueue(ctx, job); err != nil && !errors.Is(err, jobs.ErrDuplicateKey) {
		return nil, err
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, classification string, limit, offset int) ([]*Document, int, error) {
	if classification != "" && !ValidClassifications[classification] {
		return nil, 0, fmt.Errorf("invalid classification filter: %s", classification)
	}
	return s.repo.List(ctx, classification, limit, offset)
}

// Open returns the document record and its stored file content.
func (s *Service) Open(ctx context.Context, id uuid.UUID) (*Document, io.ReadCloser, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.files.Open(ctx, d.FilePath)
	if err != nil {
		return nil, nil, err
	}
	return d, rc, nil
}

// Process runs the full pipeline for one document: claim it, read and parse
// the stored file, classify and extract via the AI collaborator, then record
// the terminal state. Called by the worker.
func (s *Service) Process(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.MarkProcessing(ctx, id); err != nil {
		if errors.Is(err, ErrNotPending) {
			// Already claimed or settled; nothing to do.
			s.log.Debug().Str("document_id", id.String()).Msg("document not pending, skipping")
			return nil
		}
		return err
	}

	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	text, err := s.readText(ctx, d.FilePath)
	if err != nil {
		return s.repo.MarkError(ctx, id, fmt.Sprintf("reading stored file: %v", err))
	}

	res, err := s.chat.ProcessDocument(ctx, ai.DocumentRequest{FileName: d.FileName, Text: text})
	if err != nil {
		return s.repo.MarkError(ctx, id, fmt.Sprintf("classification failed: %v", err))
	}

	var extraction *Extraction
	if res.Referral != nil || res.DictatedNote != nil || res.ModMedNote != nil {
		extraction = &Extraction{
			Referral:     res.Referral,
			DictatedNote: res.DictatedNote,
			ModMedNote:   res.ModMedNote,
		}
	}
	var parsed *string
	if text != "" {
		parsed = &text
	}
	return s.repo.MarkCompleted(ctx, id, res.Classification, parsed, extraction)
}

func (s *Service) readText(ctx context.Context, path string) (string, error) {
	rc, err := s.files.Open(ctx, path)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Chat answers a front-desk question against the inbox context.
func (s *Service) Chat(ctx context.Context, messages []ai.ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("at least one message is required")
	}
	return s.chat.Chat(ctx, messages)
}

// Referrals returns every completed referral fax, newest first.
func (s *Service) Referrals(ctx context.Context) ([]*Document, error) {
	docs, _, err := s.repo.List(ctx, ClassificationReferralFax, 1000, 0)
	return docs, err
}

// ModMedNotes returns every completed ModMed note, newest first.
func (s *Service) ModMedNotes(ctx context.Context) ([]*Document, error) {
	docs, _, err := s.repo.List(ctx, ClassificationModMedNote, 1000, 0)
	return docs, err
}
