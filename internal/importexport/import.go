package importexport

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	"github.com/Von-Base-Enterprises/core-nexus/internal/unified"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Format names the supported bulk import encodings.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

func ValidFormat(f string) bool {
	switch Format(f) {
	case FormatJSON, FormatJSONL, FormatCSV:
		return true
	}
	return false
}

// maxJobErrors caps the per-job error list so a fully bad file does not
// balloon the job row.
const maxJobErrors = 100

// Options tune a single import run. The zero value means: deduplicate,
// importer-default batch size, no metadata additions.
type Options struct {
	// Deduplicate defaults to true; set false to bypass duplicate checks
	// for every record in this run.
	Deduplicate *bool
	// BatchSize overrides the importer's configured batch size when > 0.
	BatchSize int
	// Tags are merged with each record's own metadata tags.
	Tags []string
	// Source and UserID are stamped into each record's metadata unless the
	// record already carries the key.
	Source string
	UserID string
	// MetadataMapping remaps CSV columns to metadata keys
	// (e.g. column "category" becomes metadata key "domain").
	MetadataMapping map[string]string
}

func (o Options) deduplicate() bool {
	return o.Deduplicate == nil || *o.Deduplicate
}

// memoryStorer is the write surface an import drives. Going through the
// unified store means imported records get the same dedup, embedding, and
// fanout as interactive writes.
type memoryStorer interface {
	Store(ctx context.Context, req *unified.StoreRequest) (*unified.StoreResult, error)
}

// jobRecorder persists job progress.
type jobRecorder interface {
	Create(ctx context.Context, job *domain.ImportJob) error
	Update(ctx context.Context, job *domain.ImportJob) error
	Get(ctx context.Context, id uuid.UUID) (*domain.ImportJob, error)
}

// record is one parsed input row, tagged with its source line for error
// reporting.
type record struct {
	line       int
	content    string
	metadata   map[string]any
	importance *float32
}

// Importer runs bulk imports asynchronously. Parsing is strict per record
// but lenient per file: a bad record is counted and reported with its line
// number, the rest of the file proceeds. Jobs are cancellable at batch
// boundaries.
type Importer struct {
	storer      memoryStorer
	jobs        jobRecorder
	batchSize   int
	parallelism int
	logger      *zap.Logger

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

func NewImporter(storer memoryStorer, jobs jobRecorder, batchSize, parallelism int, logger *zap.Logger) *Importer {
	if batchSize <= 0 {
		batchSize = 100
	}
	if parallelism <= 0 {
		parallelism = 8
	}
	return &Importer{
		storer:      storer,
		jobs:        jobs,
		batchSize:   batchSize,
		parallelism: parallelism,
		logger:      logger,
		cancels:     make(map[uuid.UUID]context.CancelFunc),
	}
}

// Submit parses the payload, creates a pending job, and starts the worker.
// Parse errors that make the whole payload unreadable fail synchronously;
// per-record problems surface through the job.
func (i *Importer) Submit(ctx context.Context, format Format, r io.Reader, opts Options) (*domain.ImportJob, error) {
	records, parseErrors, err := parse(format, r, opts.MetadataMapping)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	if len(records) == 0 && len(parseErrors) == 0 {
		return nil, fmt.Errorf("%w: no records in payload", domain.ErrInvalidRequest)
	}
	for idx := range records {
		applyOptions(&records[idx], opts)
	}

	job := &domain.ImportJob{
		ID:     uuid.New(),
		Status: domain.ImportPending,
		Total:  len(records) + len(parseErrors),
		Failed: len(parseErrors),
		Errors: parseErrors,
	}
	if err := i.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	i.mu.Lock()
	i.cancels[job.ID] = cancel
	i.mu.Unlock()

	go i.run(jobCtx, job, records, opts)
	return job, nil
}

// applyOptions folds run-level metadata into one record. The record's own
// values win; option tags are merged with record tags.
func applyOptions(rec *record, opts Options) {
	if opts.UserID == "" && opts.Source == "" && len(opts.Tags) == 0 {
		return
	}
	if rec.metadata == nil {
		rec.metadata = make(map[string]any)
	}
	if opts.UserID != "" {
		if _, ok := rec.metadata["user_id"]; !ok {
			rec.metadata["user_id"] = opts.UserID
		}
	}
	if opts.Source != "" {
		if _, ok := rec.metadata["source"]; !ok {
			rec.metadata["source"] = opts.Source
		}
	}
	if len(opts.Tags) > 0 {
		rec.metadata["tags"] = mergeTags(rec.metadata["tags"], opts.Tags)
	}
}

// mergeTags combines record tags (as decoded from JSON) with option tags,
// preserving order and dropping repeats.
func mergeTags(existing any, extra []string) []string {
	var merged []string
	seen := make(map[string]bool)
	add := func(tag string) {
		if tag != "" && !seen[tag] {
			seen[tag] = true
			merged = append(merged, tag)
		}
	}
	switch tags := existing.(type) {
	case []string:
		for _, t := range tags {
			add(t)
		}
	case []any:
		for _, t := range tags {
			if s, ok := t.(string); ok {
				add(s)
			}
		}
	}
	for _, t := range extra {
		add(t)
	}
	return merged
}

// Cancel requests a stop. The job finishes its in-flight batch and lands in
// the cancelled state with progress preserved.
func (i *Importer) Cancel(ctx context.Context, jobID uuid.UUID) (*domain.ImportJob, error) {
	job, err := i.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("%w: job already %s", domain.ErrInvalidRequest, job.Status)
	}

	i.mu.Lock()
	cancel, ok := i.cancels[jobID]
	i.mu.Unlock()
	if ok {
		cancel()
	}
	return job, nil
}

// Status reads the current job state.
func (i *Importer) Status(ctx context.Context, jobID uuid.UUID) (*domain.ImportJob, error) {
	return i.jobs.Get(ctx, jobID)
}

func (i *Importer) run(ctx context.Context, job *domain.ImportJob, records []record, opts Options) {
	defer func() {
		i.mu.Lock()
		if cancel, ok := i.cancels[job.ID]; ok {
			cancel()
			delete(i.cancels, job.ID)
		}
		i.mu.Unlock()
	}()

	job.Status = domain.ImportRunning
	i.updateJob(job)

	batchSize := i.batchSize
	if opts.BatchSize > 0 {
		batchSize = opts.BatchSize
	}

	cancelled := false
	for start := 0; start < len(records); start += batchSize {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		i.runBatch(ctx, job, records[start:end], opts)
		i.updateJob(job)
	}

	job.FinishedAt = now()
	switch {
	case cancelled:
		job.Status = domain.ImportCancelled
	case job.Succeeded == 0 && job.Failed > 0:
		job.Status = domain.ImportFailed
	case job.Failed > 0:
		job.Status = domain.ImportPartial
	default:
		job.Status = domain.ImportCompleted
	}
	i.updateJob(job)

	i.logger.Info("import job finished",
		zap.String("job_id", job.ID.String()),
		zap.String("status", string(job.Status)),
		zap.Int("succeeded", job.Succeeded),
		zap.Int("failed", job.Failed),
		zap.Int("duplicates", job.Duplicates))
}

func (i *Importer) runBatch(ctx context.Context, job *domain.ImportJob, batch []record, opts Options) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.parallelism)

	for _, rec := range batch {
		g.Go(func() error {
			result, err := i.storer.Store(gctx, &unified.StoreRequest{
				Content:         rec.content,
				Metadata:        rec.metadata,
				ImportanceScore: rec.importance,
				SkipDedup:       !opts.deduplicate(),
			})

			mu.Lock()
			defer mu.Unlock()
			job.Processed++
			switch {
			case err != nil:
				job.Failed++
				if len(job.Errors) < maxJobErrors {
					job.Errors = append(job.Errors, domain.ImportError{Line: rec.line, Reason: err.Error()})
				}
			case result.IsDuplicate:
				job.Duplicates++
			default:
				job.Succeeded++
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (i *Importer) updateJob(job *domain.ImportJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := i.jobs.Update(ctx, job); err != nil {
		i.logger.Warn("failed to persist import job state",
			zap.String("job_id", job.ID.String()), zap.Error(err))
	}
}

// parse reads the whole payload into records. Unreadable payloads error;
// bad individual records become ImportErrors with their source line.
func parse(format Format, r io.Reader, mapping map[string]string) ([]record, []domain.ImportError, error) {
	switch format {
	case FormatJSON:
		return parseJSON(r)
	case FormatJSONL:
		return parseJSONL(r)
	case FormatCSV:
		return parseCSV(r, mapping)
	default:
		return nil, nil, fmt.Errorf("unsupported format %q", format)
	}
}

// jsonRecord is the wire shape of one imported memory.
type jsonRecord struct {
	Content         string         `json:"content"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	ImportanceScore *float32       `json:"importance_score,omitempty"`
}

func (jr *jsonRecord) toRecord(line int) (record, error) {
	if !domain.ValidContent(jr.Content) {
		return record{}, errors.New("content is empty or too large")
	}
	if jr.ImportanceScore != nil && (*jr.ImportanceScore < 0 || *jr.ImportanceScore > 1) {
		return record{}, errors.New("importance_score out of range [0, 1]")
	}
	return record{line: line, content: jr.Content, metadata: jr.Metadata, importance: jr.ImportanceScore}, nil
}

func parseJSON(r io.Reader) ([]record, []domain.ImportError, error) {
	var payload struct {
		Memories []jsonRecord `json:"memories"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("decode json payload: %w", err)
	}

	var records []record
	var errs []domain.ImportError
	for idx, jr := range payload.Memories {
		rec, err := jr.toRecord(idx + 1)
		if err != nil {
			errs = append(errs, domain.ImportError{Line: idx + 1, Reason: err.Error()})
			continue
		}
		records = append(records, rec)
	}
	return records, errs, nil
}

func parseJSONL(r io.Reader) ([]record, []domain.ImportError, error) {
	dec := json.NewDecoder(r)
	var records []record
	var errs []domain.ImportError
	line := 0
	for {
		line++
		var jr jsonRecord
		if err := dec.Decode(&jr); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			errs = append(errs, domain.ImportError{Line: line, Reason: "invalid json: " + err.Error()})
			break
		}
		rec, err := jr.toRecord(line)
		if err != nil {
			errs = append(errs, domain.ImportError{Line: line, Reason: err.Error()})
			continue
		}
		records = append(records, rec)
	}
	return records, errs, nil
}

// parseCSV expects a header row with at least a content column; metadata
// (JSON) and importance_score columns are optional. Columns named in the
// mapping land in metadata under the mapped key.
func parseCSV(r io.Reader, mapping map[string]string) ([]record, []domain.ImportError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := map[string]int{}
	for idx, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = idx
	}
	contentCol, ok := cols["content"]
	if !ok {
		return nil, nil, errors.New("csv header missing content column")
	}

	var records []record
	var errs []domain.ImportError
	line := 1
	for {
		line++
		row, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			errs = append(errs, domain.ImportError{Line: line, Reason: "invalid csv row: " + err.Error()})
			continue
		}

		jr := jsonRecord{}
		if contentCol < len(row) {
			jr.Content = row[contentCol]
		}
		if idx, ok := cols["metadata"]; ok && idx < len(row) && row[idx] != "" {
			if err := json.Unmarshal([]byte(row[idx]), &jr.Metadata); err != nil {
				errs = append(errs, domain.ImportError{Line: line, Reason: "invalid metadata json: " + err.Error()})
				continue
			}
		}
		if idx, ok := cols["importance_score"]; ok && idx < len(row) && row[idx] != "" {
			f, err := strconv.ParseFloat(row[idx], 32)
			if err != nil {
				errs = append(errs, domain.ImportError{Line: line, Reason: "invalid importance_score: " + err.Error()})
				continue
			}
			v := float32(f)
			jr.ImportanceScore = &v
		}
		for col, key := range mapping {
			idx, ok := cols[strings.ToLower(strings.TrimSpace(col))]
			if !ok || idx >= len(row) || row[idx] == "" {
				continue
			}
			if jr.Metadata == nil {
				jr.Metadata = make(map[string]any)
			}
			jr.Metadata[key] = row[idx]
		}

		rec, err := jr.toRecord(line)
		if err != nil {
			errs = append(errs, domain.ImportError{Line: line, Reason: err.Error()})
			continue
		}
		records = append(records, rec)
	}
	return records, errs, nil
}
