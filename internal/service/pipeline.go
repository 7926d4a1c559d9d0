package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"medbill/internal/domain"
	"medbill/internal/extract"
	"medbill/internal/logger"
	"medbill/internal/port"
	"medbill/internal/structurer"
)

// PipelineConfig holds pipeline settings.
type PipelineConfig struct {
	// Concurrency bounds how many files are fetched/extracted/structured
	// at once after polling completes.
	Concurrency int
}

// Pipeline runs the batch conversion pipeline.
type Pipeline interface {
	// Convert submits all files as one batch, polls once, and converts
	// each done file. It always returns exactly one result per input
	// file, in input order; one file's failure never aborts the others.
	Convert(ctx context.Context, files []port.FileInput) []domain.ConvertResult

	// ConvertOne is a single-file convenience wrapper around Convert.
	ConvertOne(ctx context.Context, file port.FileInput) domain.ConvertResult

	// ParseArchive runs only submit/poll/fetch for a single file, stores
	// the result archive in the artifact store, and returns its key.
	ParseArchive(ctx context.Context, file port.FileInput) (string, error)
}

// PipelineService implements Pipeline on top of the batch parser,
// structurer, and artifact store ports.
type PipelineService struct {
	parser      port.BatchParser
	structurer  port.Structurer
	artifacts   port.ArtifactStore
	concurrency int
}

// NewPipelineService creates a PipelineService.
func NewPipelineService(parser port.BatchParser, str port.Structurer, artifacts port.ArtifactStore, cfg PipelineConfig) *PipelineService {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &PipelineService{
		parser:      parser,
		structurer:  str,
		artifacts:   artifacts,
		concurrency: concurrency,
	}
}

func (s *PipelineService) Convert(ctx context.Context, files []port.FileInput) []domain.ConvertResult {
	log := logger.WithComponent("pipeline")

	results := make([]domain.ConvertResult, len(files))
	for i := range files {
		results[i].Filename = files[i].Name
	}
	if len(files) == 0 {
		return results
	}

	batch, err := s.parser.Submit(ctx, files)
	if err != nil {
		// Submission failure is fatal for the whole batch.
		log.WithError(err).Error("batch submission failed")
		for i := range results {
			results[i].Error = &domain.ConvertError{
				Stage:   domain.StageSubmit,
				Code:    domain.CodeSubmitFailed,
				Message: err.Error(),
			}
		}
		return results
	}
	log = log.WithField("batch_id", batch.ID)

	// A poll timeout still carries the statuses of files that reached a
	// terminal state before the budget ran out; those keep their outcome.
	statuses, pollErr := s.parser.Poll(ctx, batch)
	if pollErr != nil {
		log.WithError(pollErr).Warn("polling ended without full terminal state")
	}

	// Per-file fetch/extract/structure steps share no mutable state, so
	// they run concurrently; each goroutine writes only its own slot.
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for i := range files {
		st, ok := statuses[files[i].Name]
		switch {
		case ok && st.State == port.StateDone:
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, st port.FileStatus) {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = s.processFile(ctx, batch.ID, files[i].Name, st)
			}(i, st)
		case ok && st.State == port.StateFailed:
			msg := st.ErrMsg
			if msg == "" {
				msg = "parsing service reported failure"
			}
			results[i].Error = &domain.ConvertError{
				Stage:   domain.StageParse,
				Code:    domain.CodeParseFailed,
				Message: msg,
			}
		default:
			msg := "no terminal state reported before timeout"
			if pollErr != nil {
				msg = pollErr.Error()
			}
			results[i].Error = &domain.ConvertError{
				Stage:   domain.StagePoll,
				Code:    domain.CodePollTimeout,
				Message: msg,
			}
		}
	}
	wg.Wait()

	return results
}

func (s *PipelineService) ConvertOne(ctx context.Context, file port.FileInput) domain.ConvertResult {
	return s.Convert(ctx, []port.FileInput{file})[0]
}

// processFile runs fetch -> extract -> structure for a single done file.
// Any error becomes that file's failure descriptor; nothing propagates
// to sibling files.
func (s *PipelineService) processFile(ctx context.Context, batchID, name string, st port.FileStatus) domain.ConvertResult {
	log := logger.WithComponent("pipeline").WithField("batch_id", batchID).WithField("file", name)
	res := domain.ConvertResult{Filename: name}

	archive, err := s.parser.Fetch(ctx, st)
	if err != nil {
		log.WithError(err).Warn("archive fetch failed")
		res.Error = &domain.ConvertError{Stage: domain.StageFetch, Code: domain.CodeFetchFailed, Message: err.Error()}
		return res
	}
	s.saveArtifact(ctx, batchID+"/"+name+".zip", "application/zip", archive)

	doc, err := extract.Extract(archive)
	if err != nil {
		log.WithError(err).Warn("content extraction failed")
		code := domain.CodeExtractFailed
		if errors.Is(err, extract.ErrNoContent) {
			code = domain.CodeNoContent
		}
		res.Error = &domain.ConvertError{Stage: domain.StageExtract, Code: code, Message: err.Error()}
		return res
	}
	s.saveArtifact(ctx, batchID+"/"+name+".txt", "text/plain; charset=utf-8", []byte(doc.Text))
	log.WithField("representation", doc.Representation).Debug("content extracted")

	out, err := s.structurer.Structure(ctx, doc.Text)
	if err != nil {
		log.WithError(err).Warn("structuring failed")
		res.Error = structureFailure(err)
		return res
	}

	res.Data = out.Record
	return res
}

func structureFailure(err error) *domain.ConvertError {
	var parseErr *structurer.ResponseParseError
	if errors.As(err, &parseErr) {
		return &domain.ConvertError{Stage: domain.StageStructure, Code: domain.CodeBadModelOutput, Message: err.Error()}
	}
	var fieldErr *domain.FieldTypeError
	if errors.As(err, &fieldErr) {
		return &domain.ConvertError{Stage: domain.StageStructure, Code: domain.CodeSchemaMismatch, Message: err.Error()}
	}
	return &domain.ConvertError{Stage: domain.StageStructure, Code: domain.CodeStructFailed, Message: err.Error()}
}

// saveArtifact keeps intermediate products for debug introspection.
// Best effort: a store failure never fails the conversion.
func (s *PipelineService) saveArtifact(ctx context.Context, key, contentType string, data []byte) {
	if s.artifacts == nil {
		return
	}
	if err := s.artifacts.Put(ctx, port.Artifact{Key: key, ContentType: contentType, Data: data}); err != nil {
		logger.WithComponent("pipeline").WithError(err).WithField("key", key).Warn("artifact store put failed")
	}
}

func (s *PipelineService) ParseArchive(ctx context.Context, file port.FileInput) (string, error) {
	batch, err := s.parser.Submit(ctx, []port.FileInput{file})
	if err != nil {
		return "", err
	}
	statuses, pollErr := s.parser.Poll(ctx, batch)
	st, ok := statuses[file.Name]
	if !ok || !st.State.IsTerminal() {
		if pollErr != nil {
			return "", pollErr
		}
		return "", fmt.Errorf("no terminal state reported for %s", file.Name)
	}
	if st.State == port.StateFailed {
		msg := st.ErrMsg
		if msg == "" {
			msg = "parsing service reported failure"
		}
		return "", fmt.Errorf("parsing %s failed: %s", file.Name, msg)
	}
	archive, err := s.parser.Fetch(ctx, st)
	if err != nil {
		return "", err
	}

	key := "debug/" + uuid.New().String() + ".zip"
	if s.artifacts == nil {
		return "", errors.New("artifact store not configured")
	}
	if err := s.artifacts.Put(ctx, port.Artifact{Key: key, ContentType: "application/zip", Data: archive}); err != nil {
		return "", fmt.Errorf("storing archive: %w", err)
	}
	return key, nil
}
