package compose

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/labshot/labshot/internal/artifact"
	"github.com/labshot/labshot/internal/log"
	"github.com/labshot/labshot/internal/model"
	"github.com/labshot/labshot/internal/storage"
)

// ServiceConfig is the configuration for the compose service.
type ServiceConfig struct {
	Repository storage.Repository
	Store      *artifact.Store
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Store == nil {
		return fmt.Errorf("artifact store is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Compose"})
	return nil
}

// Service splices the artifacts of a finished batch back into the caller's
// document. Composition is a pure function of its inputs: the same document,
// ordering and task results always produce byte identical output.
type Service struct {
	repo   storage.Repository
	store  *artifact.Store
	logger log.Logger
}

// NewService creates a new compose service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		store:  cfg.Store,
		logger: cfg.Logger,
	}, nil
}

// ComposeRequest is one composition request.
type ComposeRequest struct {
	BatchID string
	// Document is the caller's original document, UTF-8 text.
	Document string
	// Ordering lists task IDs in the order their blocks should appear.
	// Completed tasks left out are appended afterwards in batch submission
	// order. Empty means the batch submission order.
	Ordering []string
}

// Report is a composed document.
type Report struct {
	Ref     string
	Content []byte
}

const resultsHeading = "Results\n=======\n"

// Compose builds the report for a finished batch and stores it next to the
// batch artifacts.
func (s *Service) Compose(ctx context.Context, req ComposeRequest) (*Report, error) {
	if req.BatchID == "" {
		return nil, fmt.Errorf("batch ID is required: %w", model.ErrNotValid)
	}

	batch, err := s.repo.GetBatch(ctx, req.BatchID)
	if err != nil {
		return nil, fmt.Errorf("could not get batch: %w", err)
	}

	tasks, err := s.repo.ListBatchTasks(ctx, req.BatchID)
	if err != nil {
		return nil, fmt.Errorf("could not list batch tasks: %w", err)
	}

	if model.AggregateStatus(tasks) == model.BatchStatusPending {
		return nil, fmt.Errorf("batch %s still has tasks in flight: %w", req.BatchID, model.ErrNotValid)
	}

	byID := make(map[string]model.Task, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}

	ordering := req.Ordering
	if len(ordering) == 0 {
		ordering = batch.TaskIDs
	}

	ordered, err := s.resolveOrdering(ordering, batch.TaskIDs, byID)
	if err != nil {
		return nil, err
	}

	content, err := s.splice(ctx, req.Document, ordered)
	if err != nil {
		return nil, err
	}

	ref, err := s.persist(batch.ID, content)
	if err != nil {
		return nil, err
	}

	s.logger.WithCtxValues(ctx).Infof("Composed report for batch %s (%d bytes)", batch.ID, len(content))

	return &Report{Ref: ref, Content: content}, nil
}

// resolveOrdering expands the caller ordering into the final task sequence:
// the explicit ordering first, then any completed task the caller left out,
// in batch submission order.
func (s *Service) resolveOrdering(ordering, batchOrder []string, byID map[string]model.Task) ([]model.Task, error) {
	seen := make(map[string]struct{}, len(ordering))
	ordered := make([]model.Task, 0, len(byID))

	for _, id := range ordering {
		task, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("ordering references unknown task %s: %w", id, model.ErrNotValid)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("ordering references task %s twice: %w", id, model.ErrNotValid)
		}
		seen[id] = struct{}{}
		ordered = append(ordered, task)
	}

	for _, id := range batchOrder {
		if _, ok := seen[id]; ok {
			continue
		}
		if task := byID[id]; task.Status == model.TaskStatusCompleted {
			ordered = append(ordered, task)
		}
	}

	return ordered, nil
}

// splice inserts every task block into the document: below its question
// anchor when requested and found, otherwise into the trailing results
// section.
func (s *Service) splice(ctx context.Context, document string, tasks []model.Task) ([]byte, error) {
	lines := strings.Split(document, "\n")

	type insertion struct {
		after int
		block []string
	}
	var inline []insertion
	var bottom [][]string

	for _, task := range tasks {
		block, err := s.taskBlock(ctx, task)
		if err != nil {
			return nil, err
		}

		anchor := -1
		if task.Insertion == model.InsertionBelowQuestion && task.Question != "" {
			anchor = anchorLine(lines, task.Question)
		}
		if anchor < 0 {
			bottom = append(bottom, block)
			continue
		}

		inline = append(inline, insertion{after: endOfParagraph(lines, anchor), block: block})
	}

	var sb strings.Builder
	for i, line := range lines {
		sb.WriteString(line)
		if i < len(lines)-1 {
			sb.WriteString("\n")
		}
		for _, ins := range inline {
			if ins.after != i {
				continue
			}
			sb.WriteString("\n")
			for _, bl := range ins.block {
				sb.WriteString(bl)
				sb.WriteString("\n")
			}
		}
	}

	if len(bottom) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(resultsHeading)
		for _, block := range bottom {
			sb.WriteString("\n")
			for _, bl := range block {
				sb.WriteString(bl)
				sb.WriteString("\n")
			}
		}
	}

	return []byte(sb.String()), nil
}

// taskBlock renders the text block of one task.
func (s *Service) taskBlock(ctx context.Context, task model.Task) ([]string, error) {
	if task.Status == model.TaskStatusFailed {
		reason := task.FailureReason
		if reason == "" {
			reason = "unknown"
		}
		return []string{fmt.Sprintf("[task failed: %s]", reason)}, nil
	}

	var block []string
	if task.Result != nil && task.Result.Answer != "" {
		block = append(block, task.Result.Answer)
	}
	if task.Result != nil && task.Result.Caption != "" {
		block = append(block, task.Result.Caption)
	}

	artifacts, err := s.repo.ListTaskArtifacts(ctx, task.ID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("could not list artifacts of task %s: %w", task.ID, err)
	}
	for _, a := range artifacts {
		block = append(block, fmt.Sprintf("[image: %s] %s", a.Ref, a.Label))
	}

	if len(block) == 0 {
		block = []string{fmt.Sprintf("[task %s produced no output]", task.ID)}
	}

	return block, nil
}

// persist writes the report to the artifact store. The name is derived from
// the content, so recomposing identical inputs lands on the same file and is
// accepted, while a conflicting write stays an error.
func (s *Service) persist(batchID string, content []byte) (string, error) {
	sum := sha256.Sum256(content)
	name := fmt.Sprintf("report-%x.txt", sum[:8])

	ref, err := s.store.WriteDocument(batchID, name, content)
	if err != nil {
		if errors.Is(err, model.ErrAlreadyExists) {
			return artifact.DocumentRef(batchID, name), nil
		}
		return "", fmt.Errorf("could not store report: %w", err)
	}

	return ref, nil
}

// anchorLine finds the first line matching the question with normalized
// whitespace and case. Returns -1 when no line matches.
func anchorLine(lines []string, question string) int {
	normQ := normalize(question)
	if normQ == "" {
		return -1
	}

	for i, line := range lines {
		normLine := normalize(line)
		if normLine == "" {
			continue
		}
		if strings.Contains(normLine, normQ) {
			return i
		}
		// Long lines that are a leading chunk of a multi line question also
		// anchor it.
		if len(normLine) >= 12 && strings.HasPrefix(normQ, normLine) {
			return i
		}
	}

	return -1
}

// endOfParagraph walks forward from the anchor to the last non empty line of
// its paragraph.
func endOfParagraph(lines []string, start int) int {
	end := start
	for end+1 < len(lines) && strings.TrimSpace(lines[end+1]) != "" {
		end++
	}
	return end
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
