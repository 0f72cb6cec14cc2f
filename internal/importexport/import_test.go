package importexport

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	"github.com/Von-Base-Enterprises/core-nexus/internal/unified"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// mockStorer fails contents containing "fail" and flags contents containing
// "dup" as duplicates.
type mockStorer struct {
	mu       sync.Mutex
	stored   []string
	requests []unified.StoreRequest
}

func (m *mockStorer) Store(ctx context.Context, req *unified.StoreRequest) (*unified.StoreResult, error) {
	if strings.Contains(req.Content, "fail") {
		return nil, errors.New("simulated store failure")
	}
	m.mu.Lock()
	m.stored = append(m.stored, req.Content)
	m.requests = append(m.requests, *req)
	m.mu.Unlock()
	return &unified.StoreResult{
		ID:          uuid.New(),
		IsDuplicate: strings.Contains(req.Content, "dup"),
	}, nil
}

func (m *mockStorer) request(content string) *unified.StoreRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	for idx := range m.requests {
		if m.requests[idx].Content == content {
			return &m.requests[idx]
		}
	}
	return nil
}

// mockJobs keeps jobs in memory.
type mockJobs struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]domain.ImportJob
	updates int
}

func newMockJobs() *mockJobs {
	return &mockJobs{jobs: make(map[uuid.UUID]domain.ImportJob)}
}

func (m *mockJobs) Create(ctx context.Context, job *domain.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *mockJobs) Update(ctx context.Context, job *domain.ImportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return domain.ErrNotFound
	}
	m.jobs[job.ID] = *job
	m.updates++
	return nil
}

func (m *mockJobs) Get(ctx context.Context, id uuid.UUID) (*domain.ImportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := job
	return &copied, nil
}

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// waitTerminal polls the job until it reaches a terminal state.
func waitTerminal(t *testing.T, jobs *mockJobs, id uuid.UUID) *domain.ImportJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := jobs.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return nil
}

func TestImportJSONCompletes(t *testing.T) {
	storer := &mockStorer{}
	jobs := newMockJobs()
	imp := NewImporter(storer, jobs, 2, 2, testLogger())

	payload := `{"memories":[
		{"content":"first memory"},
		{"content":"second memory","metadata":{"user_id":"u1"}},
		{"content":"third memory","importance_score":0.8}
	]}`
	job, err := imp.Submit(context.Background(), FormatJSON, strings.NewReader(payload), Options{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final := waitTerminal(t, jobs, job.ID)
	if final.Status != domain.ImportCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
	if final.Succeeded != 3 || final.Failed != 0 {
		t.Errorf("succeeded=%d failed=%d, want 3/0", final.Succeeded, final.Failed)
	}
	if len(storer.stored) != 3 {
		t.Errorf("stored %d memories, want 3", len(storer.stored))
	}
}

func TestImportPartialOnRecordFailures(t *testing.T) {
	storer := &mockStorer{}
	jobs := newMockJobs()
	imp := NewImporter(storer, jobs, 10, 2, testLogger())

	payload := `{"memories":[
		{"content":"good one"},
		{"content":"this will fail"},
		{"content":"another good one"}
	]}`
	job, err := imp.Submit(context.Background(), FormatJSON, strings.NewReader(payload), Options{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final := waitTerminal(t, jobs, job.ID)
	if final.Status != domain.ImportPartial {
		t.Errorf("status = %s, want partial", final.Status)
	}
	if final.Succeeded != 2 || final.Failed != 1 {
		t.Errorf("succeeded=%d failed=%d, want 2/1", final.Succeeded, final.Failed)
	}
	if len(final.Errors) != 1 {
		t.Fatalf("got %d errors, want 1", len(final.Errors))
	}
}

func TestImportFailedWhenNothingSucceeds(t *testing.T) {
	storer := &mockStorer{}
	jobs := newMockJobs()
	imp := NewImporter(storer, jobs, 10, 2, testLogger())

	payload := `{"memories":[{"content":"fail a"},{"content":"fail b"}]}`
	job, err := imp.Submit(context.Background(), FormatJSON, strings.NewReader(payload), Options{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final := waitTerminal(t, jobs, job.ID)
	if final.Status != domain.ImportFailed {
		t.Errorf("status = %s, want failed", final.Status)
	}
}

func TestImportCountsDuplicates(t *testing.T) {
	storer := &mockStorer{}
	jobs := newMockJobs()
	imp := NewImporter(storer, jobs, 10, 2, testLogger())

	payload := `{"memories":[
		{"content":"unique one"},
		{"content":"unique two"},
		{"content":"a dup record"}
	]}`
	job, err := imp.Submit(context.Background(), FormatJSON, strings.NewReader(payload), Options{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Each record lands in exactly one counter: a duplicate is not a success.
	final := waitTerminal(t, jobs, job.ID)
	if final.Succeeded != 2 {
		t.Errorf("succeeded = %d, want 2", final.Succeeded)
	}
	if final.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", final.Duplicates)
	}
	if final.Failed != 0 {
		t.Errorf("failed = %d, want 0", final.Failed)
	}
	if final.Status != domain.ImportCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
}

func TestImportAllDuplicatesCompletes(t *testing.T) {
	storer := &mockStorer{}
	jobs := newMockJobs()
	imp := NewImporter(storer, jobs, 10, 2, testLogger())

	payload := `{"memories":[{"content":"dup a"},{"content":"dup b"}]}`
	job, err := imp.Submit(context.Background(), FormatJSON, strings.NewReader(payload), Options{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	final := waitTerminal(t, jobs, job.ID)
	if final.Status != domain.ImportCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
	if final.Succeeded != 0 || final.Duplicates != 2 {
		t.Errorf("succeeded=%d duplicates=%d, want 0/2", final.Succeeded, final.Duplicates)
	}
}

func TestImportOptionsStampMetadata(t *testing.T) {
	storer := &mockStorer{}
	jobs := newMockJobs()
	imp := NewImporter(storer, jobs, 10, 2, testLogger())

	payload := `{"memories":[
		{"content":"bare record"},
		{"content":"tagged record","metadata":{"user_id":"keep-me","tags":["existing"]}}
	]}`
	job, err := imp.Submit(context.Background(), FormatJSON, strings.NewReader(payload), Options{
		UserID: "batch-user",
		Source: "crm-export",
		Tags:   []string{"migrated", "existing"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitTerminal(t, jobs, job.ID)

	bare := storer.request("bare record")
	if bare == nil {
		t.Fatal("bare record never stored")
	}
	if bare.Metadata["user_id"] != "batch-user" || bare.Metadata["source"] != "crm-export" {
		t.Errorf("options not stamped: %+v", bare.Metadata)
	}
	if tags, ok := bare.Metadata["tags"].([]string); !ok || len(tags) != 2 {
		t.Errorf("tags = %+v, want [migrated existing]", bare.Metadata["tags"])
	}

	tagged := storer.request("tagged record")
	if tagged == nil {
		t.Fatal("tagged record never stored")
	}
	if tagged.Metadata["user_id"] != "keep-me" {
		t.Errorf("record's own user_id must win, got %v", tagged.Metadata["user_id"])
	}
	tags, ok := tagged.Metadata["tags"].([]string)
	if !ok || len(tags) != 2 || tags[0] != "existing" || tags[1] != "migrated" {
		t.Errorf("tags = %+v, want merged [existing migrated]", tagged.Metadata["tags"])
	}
}

func TestImportDeduplicateFalseSkipsChecks(t *testing.T) {
	storer := &mockStorer{}
	jobs := newMockJobs()
	imp := NewImporter(storer, jobs, 10, 2, testLogger())

	off := false
	job, err := imp.Submit(context.Background(), FormatJSON,
		strings.NewReader(`{"memories":[{"content":"raw load"}]}`), Options{Deduplicate: &off})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitTerminal(t, jobs, job.ID)

	req := storer.request("raw load")
	if req == nil {
		t.Fatal("record never stored")
	}
	if !req.SkipDedup {
		t.Error("deduplicate=false must set SkipDedup on the write")
	}
}

func TestImportBatchSizeOption(t *testing.T) {
	storer := &mockStorer{}
	jobs := newMockJobs()
	imp := NewImporter(storer, jobs, 100, 2, testLogger())

	payload := `{"memories":[
		{"content":"r1"},{"content":"r2"},{"content":"r3"},{"content":"r4"}
	]}`
	job, err := imp.Submit(context.Background(), FormatJSON,
		strings.NewReader(payload), Options{BatchSize: 1})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitTerminal(t, jobs, job.ID)

	// One update for running, one per batch, one for the terminal state.
	jobs.mu.Lock()
	updates := jobs.updates
	jobs.mu.Unlock()
	if updates != 6 {
		t.Errorf("got %d job updates, want 6 for four single-record batches", updates)
	}
}

func TestParseCSVMetadataMapping(t *testing.T) {
	payload := "content,category,region\n" +
		"remember the milk,groceries,emea\n"

	records, errs, err := parseCSV(strings.NewReader(payload),
		map[string]string{"category": "domain", "region": "region"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("unexpected record errors: %+v", errs)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].metadata["domain"] != "groceries" || records[0].metadata["region"] != "emea" {
		t.Errorf("mapping not applied: %+v", records[0].metadata)
	}
}

func TestImportRejectsEmptyPayload(t *testing.T) {
	imp := NewImporter(&mockStorer{}, newMockJobs(), 10, 2, testLogger())

	_, err := imp.Submit(context.Background(), FormatJSON, strings.NewReader(`{"memories":[]}`), Options{})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("got %v, want ErrInvalidRequest", err)
	}
}

func TestImportRejectsUnreadablePayload(t *testing.T) {
	imp := NewImporter(&mockStorer{}, newMockJobs(), 10, 2, testLogger())

	_, err := imp.Submit(context.Background(), FormatJSON, strings.NewReader(`not json at all`), Options{})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("got %v, want ErrInvalidRequest", err)
	}
}

func TestParseJSONLReportsBadLines(t *testing.T) {
	payload := `{"content":"line one"}
{"content":""}
{"content":"line three"}`
	records, errs, err := parseJSONL(strings.NewReader(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}
	if len(errs) != 1 || errs[0].Line != 2 {
		t.Errorf("want one error on line 2, got %+v", errs)
	}
}

func TestParseCSV(t *testing.T) {
	payload := "content,metadata,importance_score\n" +
		"remember the milk,\"{\"\"user_id\"\":\"\"u1\"\"}\",0.4\n" +
		"plain row,,\n" +
		"bad importance,,not-a-number\n"

	records, errs, err := parseCSV(strings.NewReader(payload), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(records), errs)
	}
	if records[0].metadata["user_id"] != "u1" {
		t.Errorf("metadata not parsed: %+v", records[0].metadata)
	}
	if records[0].importance == nil || *records[0].importance != 0.4 {
		t.Errorf("importance not parsed: %+v", records[0].importance)
	}
	if len(errs) != 1 || errs[0].Line != 4 {
		t.Errorf("want one error on line 4, got %+v", errs)
	}
}

func TestParseCSVRequiresContentColumn(t *testing.T) {
	if _, _, err := parseCSV(strings.NewReader("a,b\n1,2\n"), nil); err == nil {
		t.Error("missing content column must fail")
	}
}

func TestCancelTerminalJobRejected(t *testing.T) {
	storer := &mockStorer{}
	jobs := newMockJobs()
	imp := NewImporter(storer, jobs, 10, 2, testLogger())

	job, err := imp.Submit(context.Background(), FormatJSON,
		strings.NewReader(`{"memories":[{"content":"quick"}]}`), Options{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitTerminal(t, jobs, job.ID)

	if _, err := imp.Cancel(context.Background(), job.ID); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("cancelling a finished job: got %v, want ErrInvalidRequest", err)
	}
}
