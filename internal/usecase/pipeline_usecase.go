package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/fadilmartias/bioreport-worker/internal/config"
	"github.com/fadilmartias/bioreport-worker/internal/dto"
	"github.com/fadilmartias/bioreport-worker/internal/model"
	"github.com/fadilmartias/bioreport-worker/internal/normalizer"
	"github.com/fadilmartias/bioreport-worker/internal/repository"
	"github.com/sirupsen/logrus"
)

type ClaimStore interface {
	ClaimOne(ctx context.Context, staleLock time.Duration) (*model.PdfJob, error)
}

type ResultStore interface {
	FindDocument(ctx context.Context, id uint64) (*model.UploadedDocument, error)
	Commit(ctx context.Context, job *model.PdfJob, raw, normalized []byte) error
	Fail(ctx context.Context, job *model.PdfJob, message string) error
	Requeue(ctx context.Context, job *model.PdfJob) error
}

type PathResolver interface {
	Resolve(ownerID uint64, token string) (string, error)
}

type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, text string) (*dto.AnalysisResult, error)
}

// PipelineRunner claims one job at a time and drives it through
// extract, analyze and normalize, then records the outcome.
type PipelineRunner struct {
	claims    ClaimStore
	results   ResultStore
	resolver  PathResolver
	extractor TextExtractor
	analyzer  Analyzer
	cfg       config.WorkerConfig
	log       logrus.FieldLogger
}

func NewPipelineRunner(
	cfg config.WorkerConfig,
	claims ClaimStore,
	results ResultStore,
	resolver PathResolver,
	extractor TextExtractor,
	analyzer Analyzer,
	log logrus.FieldLogger,
) *PipelineRunner {
	return &PipelineRunner{
		claims:    claims,
		results:   results,
		resolver:  resolver,
		extractor: extractor,
		analyzer:  analyzer,
		cfg:       cfg,
		log:       log,
	}
}

// ProcessOne runs one claim-and-process cycle. It reports false when no job
// was claimable. Job failures are recorded on the job row and still count as
// processed; only store errors are returned.
func (p *PipelineRunner) ProcessOne(ctx context.Context) (bool, error) {
	job, err := p.claims.ClaimOne(ctx, p.cfg.StaleLock())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	log := p.log.WithFields(logrus.Fields{
		"job_id":      job.ID,
		"document_id": job.UploadedDocumentID,
		"attempts":    job.Attempts,
	})
	log.Info("job_locked")

	doc, err := p.results.FindDocument(ctx, job.UploadedDocumentID)
	if err != nil {
		return true, p.apply(ctx, job, p.transient(ctx, job, "load document", err, log), log)
	}

	if doc != nil {
		log = log.WithFields(logrus.Fields{
			"filename":  doc.OriginalFilename,
			"mime_type": doc.MimeType,
		})
	}
	res := p.Run(ctx, job, doc, log)
	return true, p.apply(ctx, job, res, log)
}

// Run executes the pipeline for a claimed job without writing anything.
func (p *PipelineRunner) Run(ctx context.Context, job *model.PdfJob, doc *model.UploadedDocument, log logrus.FieldLogger) Result {
	if doc == nil {
		log.Warn("document_not_found")
		return terminal("document not found")
	}
	if doc.StorageDisk != model.StorageDiskLocal {
		log.WithField("storage_disk", doc.StorageDisk).Warn("unsupported_storage")
		return terminal("unsupported storage")
	}

	path, err := p.resolver.Resolve(doc.UserID, doc.UUID.String())
	if err != nil {
		log.WithError(err).Warn("storage_error")
		return terminal(err.Error())
	}

	text, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return p.transient(ctx, job, "extract text", err, log)
	}

	analysis, err := p.analyzer.Analyze(ctx, text)
	if err != nil {
		return p.transient(ctx, job, "analyze", err, log)
	}

	normalized := normalizer.Normalize(analysis, text)
	rawJSON, err := json.Marshal(analysis)
	if err != nil {
		return p.transient(ctx, job, "normalize", err, log)
	}
	normalizedJSON, err := json.Marshal(normalized)
	if err != nil {
		return p.transient(ctx, job, "normalize", err, log)
	}
	return Result{Outcome: OutcomeSuccess, Raw: rawJSON, Normalized: normalizedJSON}
}

func (p *PipelineRunner) transient(ctx context.Context, job *model.PdfJob, stage string, err error, log logrus.FieldLogger) Result {
	message := fmt.Sprintf("%s: %v", stage, err)
	if ctx.Err() != nil {
		return Result{Outcome: OutcomeInterrupted, Detail: message}
	}

	log.WithError(err).WithField("stage", stage).Warn("stage_failed")
	res := Decide(job.Attempts, p.cfg.MaxAttempts, message)
	if res.Outcome == OutcomeTerminal {
		res.Detail = message + "\n" + string(debug.Stack())
	}
	return res
}

// apply performs the store write for res. Writes run on a context detached
// from cancellation so a shutdown never leaves the outcome unrecorded.
func (p *PipelineRunner) apply(ctx context.Context, job *model.PdfJob, res Result, log logrus.FieldLogger) error {
	writeCtx := context.WithoutCancel(ctx)

	var err error
	switch res.Outcome {
	case OutcomeSuccess:
		err = p.results.Commit(writeCtx, job, res.Raw, res.Normalized)
		if err == nil {
			log.Info("job_done")
			return nil
		}
		if errors.Is(err, repository.ErrDocumentNotFound) {
			log.Warn("document_not_found")
			return p.apply(ctx, job, terminal("document not found"), log)
		}
		if !errors.Is(err, repository.ErrClaimLost) {
			return p.apply(ctx, job, p.transient(writeCtx, job, "commit", err, log), log)
		}
	case OutcomeRetry:
		err = p.results.Requeue(writeCtx, job)
		if err == nil {
			log.WithField("error", res.Detail).Info("job_requeued")
			return nil
		}
	case OutcomeInterrupted:
		err = p.results.Requeue(writeCtx, job)
		if err == nil {
			log.WithField("error", res.Detail).Warn("job_interrupted")
			return nil
		}
	case OutcomeTerminal:
		err = p.results.Fail(writeCtx, job, res.Detail)
		if err == nil {
			log.WithField("error", firstLine(res.Detail)).Error("job_failed")
			return nil
		}
	default:
		return fmt.Errorf("unknown outcome %q for job %d", res.Outcome, job.ID)
	}

	if errors.Is(err, repository.ErrClaimLost) {
		log.WithField("outcome", res.Outcome).Warn("claim_lost")
		return nil
	}
	return err
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
