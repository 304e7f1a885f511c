package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vocaquest/practice-hub/internal/domain/content"
	"github.com/vocaquest/practice-hub/internal/domain/practice"
	"github.com/vocaquest/practice-hub/internal/domain/shared"
)

// In-memory fakes backing the command handler tests. They enforce the same
// uniqueness rules the real storage enforces through constraints, so the
// convergence paths are exercised for real.

const (
	testStudent    = "11111111-1111-4111-8111-111111111111"
	testVocabSet   = "22222222-2222-4222-8222-222222222222"
	testAssignment = "33333333-3333-4333-8333-333333333333"
)

// ─────────────────────────────────────────────────────────────────────────────
// Attempt repository
// ─────────────────────────────────────────────────────────────────────────────

type fakeAttemptRepo struct {
	mu         sync.Mutex
	byID       map[shared.AttemptID]*practice.Attempt
	maxNumbers map[string]int
}

func newFakeAttemptRepo() *fakeAttemptRepo {
	return &fakeAttemptRepo{
		byID:       make(map[shared.AttemptID]*practice.Attempt),
		maxNumbers: make(map[string]int),
	}
}

func tripleKey(studentID shared.StudentID, vocabSetID shared.VocabSetID, kind practice.ActivityKind) string {
	return fmt.Sprintf("%s|%s|%s", studentID, vocabSetID, kind)
}

func (r *fakeAttemptRepo) Create(ctx context.Context, attempt *practice.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if existing.StudentID == attempt.StudentID &&
			existing.VocabSetID == attempt.VocabSetID &&
			existing.Kind == attempt.Kind &&
			existing.Status.IsActive() {
			return shared.ErrAttemptAlreadyActive
		}
	}

	r.byID[attempt.ID] = attempt
	key := tripleKey(attempt.StudentID, attempt.VocabSetID, attempt.Kind)
	if attempt.AttemptNumber > r.maxNumbers[key] {
		r.maxNumbers[key] = attempt.AttemptNumber
	}
	return nil
}

func (r *fakeAttemptRepo) GetByID(ctx context.Context, id shared.AttemptID) (*practice.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	attempt, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrAttemptNotFound
	}
	return attempt, nil
}

func (r *fakeAttemptRepo) GetActive(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID, kind practice.ActivityKind) (*practice.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, attempt := range r.byID {
		if attempt.StudentID == studentID &&
			attempt.VocabSetID == vocabSetID &&
			attempt.Kind == kind &&
			attempt.Status.IsActive() {
			return attempt, nil
		}
	}
	return nil, shared.ErrAttemptNotFound
}

func (r *fakeAttemptRepo) MaxAttemptNumber(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID, kind practice.ActivityKind) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Like the real store, only surviving rows count. Declined attempts
	// are deleted, so the progress counter covers the gap.
	max := 0
	for _, attempt := range r.byID {
		if attempt.StudentID == studentID &&
			attempt.VocabSetID == vocabSetID &&
			attempt.Kind == kind &&
			attempt.AttemptNumber > max {
			max = attempt.AttemptNumber
		}
	}
	return max, nil
}

func (r *fakeAttemptRepo) Update(ctx context.Context, attempt *practice.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[attempt.ID]; !ok {
		return shared.ErrAttemptNotFound
	}
	r.byID[attempt.ID] = attempt
	return nil
}

func (r *fakeAttemptRepo) Delete(ctx context.Context, id shared.AttemptID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byID, id)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Response repository
// ─────────────────────────────────────────────────────────────────────────────

type fakeResponseRepo struct {
	mu   sync.Mutex
	rows map[string]*practice.ItemResponse
}

func newFakeResponseRepo() *fakeResponseRepo {
	return &fakeResponseRepo{rows: make(map[string]*practice.ItemResponse)}
}

func responseKey(attemptID shared.AttemptID, itemID shared.ItemID, attemptNumber int) string {
	return fmt.Sprintf("%s|%s|%d", attemptID, itemID, attemptNumber)
}

func (r *fakeResponseRepo) Insert(ctx context.Context, response *practice.ItemResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := responseKey(response.AttemptID, response.ItemID, response.AttemptNumber)
	if _, ok := r.rows[key]; ok {
		return shared.NewDomainError("practice", "InsertResponse", shared.ErrAlreadyExists, "response already recorded")
	}
	r.rows[key] = response
	return nil
}

func (r *fakeResponseRepo) Get(ctx context.Context, attemptID shared.AttemptID, itemID shared.ItemID, attemptNumber int) (*practice.ItemResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	response, ok := r.rows[responseKey(attemptID, itemID, attemptNumber)]
	if !ok {
		return nil, shared.NewDomainError("practice", "FindResponse", shared.ErrNotFound, "response not found")
	}
	return response, nil
}

func (r *fakeResponseRepo) ListByAttempt(ctx context.Context, attemptID shared.AttemptID) ([]*practice.ItemResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*practice.ItemResponse
	for _, response := range r.rows {
		if response.AttemptID == attemptID {
			out = append(out, response)
		}
	}
	return out, nil
}

func (r *fakeResponseRepo) DeleteByAttempt(ctx context.Context, attemptID shared.AttemptID, attemptNumber int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, response := range r.rows {
		if response.AttemptID == attemptID && response.AttemptNumber == attemptNumber {
			delete(r.rows, key)
			removed++
		}
	}
	return removed, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Progress repository
// ─────────────────────────────────────────────────────────────────────────────

type fakeProgressRepo struct {
	mu   sync.Mutex
	rows map[string]*practice.PracticeProgress
	seq  int
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{rows: make(map[string]*practice.PracticeProgress)}
}

func progressKey(studentID shared.StudentID, vocabSetID shared.VocabSetID, assignmentID shared.AssignmentID) string {
	return fmt.Sprintf("%s|%s|%s", studentID, vocabSetID, assignmentID)
}

func (r *fakeProgressRepo) GetOrCreate(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID, assignmentID shared.AssignmentID) (*practice.PracticeProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := progressKey(studentID, vocabSetID, assignmentID)
	if prog, ok := r.rows[key]; ok {
		return prog, nil
	}

	r.seq++
	prog, err := practice.NewPracticeProgress(
		fmt.Sprintf("progress-%d", r.seq), studentID, vocabSetID, assignmentID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	r.rows[key] = prog
	return prog, nil
}

func (r *fakeProgressRepo) Get(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID, assignmentID shared.AssignmentID) (*practice.PracticeProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prog, ok := r.rows[progressKey(studentID, vocabSetID, assignmentID)]
	if !ok {
		return nil, shared.ErrProgressNotFound
	}
	return prog, nil
}

func (r *fakeProgressRepo) Update(ctx context.Context, progress *practice.PracticeProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := progressKey(progress.StudentID, progress.VocabSetID, progress.AssignmentID)
	if _, ok := r.rows[key]; !ok {
		return shared.ErrProgressNotFound
	}
	r.rows[key] = progress
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Completion repository
// ─────────────────────────────────────────────────────────────────────────────

type fakeCompletionRepo struct {
	mu   sync.Mutex
	rows map[string]*practice.CompletionRecord
}

func newFakeCompletionRepo() *fakeCompletionRepo {
	return &fakeCompletionRepo{rows: make(map[string]*practice.CompletionRecord)}
}

func (r *fakeCompletionRepo) Upsert(ctx context.Context, record *practice.CompletionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s|%s|%s|%s", record.StudentID, record.VocabSetID, record.AssignmentID, record.Kind)
	if existing, ok := r.rows[key]; ok {
		if record.BestScore > existing.BestScore {
			existing.BestScore = record.BestScore
			existing.Percentage = record.Percentage
		}
		return nil
	}
	r.rows[key] = record
	return nil
}

func (r *fakeCompletionRepo) List(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID, assignmentID shared.AssignmentID) ([]*practice.CompletionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*practice.CompletionRecord
	for _, record := range r.rows {
		if record.StudentID == studentID && record.VocabSetID == vocabSetID && record.AssignmentID == assignmentID {
			out = append(out, record)
		}
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Session store
// ─────────────────────────────────────────────────────────────────────────────

type fakeSessionStore struct {
	mu       sync.Mutex
	pointers map[string]practice.SessionPointer
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{pointers: make(map[string]practice.SessionPointer)}
}

func sessionKey(studentID shared.StudentID, vocabSetID shared.VocabSetID) string {
	return fmt.Sprintf("%s|%s", studentID, vocabSetID)
}

func (s *fakeSessionStore) Get(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID) (*practice.SessionPointer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pointer, ok := s.pointers[sessionKey(studentID, vocabSetID)]
	if !ok {
		return nil, shared.NewDomainError("practice", "GetSession", shared.ErrNotFound, "no session pointer cached")
	}
	return &pointer, nil
}

func (s *fakeSessionStore) Put(ctx context.Context, pointer practice.SessionPointer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pointers[sessionKey(pointer.StudentID, pointer.VocabSetID)] = pointer
	return nil
}

func (s *fakeSessionStore) Touch(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID) error {
	return nil
}

func (s *fakeSessionStore) Clear(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pointers, sessionKey(studentID, vocabSetID))
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Item store, generator, evaluator, validator
// ─────────────────────────────────────────────────────────────────────────────

type fakeItemStore struct {
	mu   sync.Mutex
	sets map[string]*content.ItemSet
}

func newFakeItemStore() *fakeItemStore {
	return &fakeItemStore{sets: make(map[string]*content.ItemSet)}
}

func itemSetKey(vocabSetID shared.VocabSetID, kind practice.ActivityKind) string {
	return fmt.Sprintf("%s|%s", vocabSetID, kind)
}

func (s *fakeItemStore) GetItemSet(ctx context.Context, vocabSetID shared.VocabSetID, kind practice.ActivityKind) (*content.ItemSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[itemSetKey(vocabSetID, kind)]
	if !ok {
		return nil, shared.NewDomainError("content", "GetItemSet", shared.ErrNotFound, "item set not generated yet")
	}
	return set, nil
}

func (s *fakeItemStore) SaveItemSet(ctx context.Context, set *content.ItemSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := itemSetKey(set.VocabSetID, set.Kind)
	if _, ok := s.sets[key]; ok {
		// First writer wins, like the ON CONFLICT DO NOTHING in the real store.
		return nil
	}
	s.sets[key] = set
	return nil
}

type fakeGenerator struct {
	items []content.Item
	err   error
	calls int
}

func (g *fakeGenerator) GenerateItems(ctx context.Context, vocabSetID shared.VocabSetID, kind practice.ActivityKind) ([]content.Item, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.items, nil
}

type fakeEvaluator struct {
	evaluations map[shared.ItemID]content.Evaluation
	err         error
	calls       int
}

func (e *fakeEvaluator) EvaluateItem(ctx context.Context, kind practice.ActivityKind, item content.Item, answer map[string]interface{}, evalContext map[string]interface{}) (content.Evaluation, error) {
	e.calls++
	if e.err != nil {
		return content.Evaluation{}, e.err
	}
	if eval, ok := e.evaluations[item.ID]; ok {
		return eval, nil
	}
	return content.Evaluation{Score: item.MaxScore, Feedback: "well done"}, nil
}

type acceptAllValidator struct{}

func (acceptAllValidator) ValidateInput(kind practice.ActivityKind, rawAnswer map[string]interface{}) content.ValidationResult {
	return content.ValidationResult{Valid: true}
}

type rejectAllValidator struct{}

func (rejectAllValidator) ValidateInput(kind practice.ActivityKind, rawAnswer map[string]interface{}) content.ValidationResult {
	return content.ValidationResult{Valid: false, Errors: []string{"shape mismatch"}}
}

// ─────────────────────────────────────────────────────────────────────────────
// Event publisher
// ─────────────────────────────────────────────────────────────────────────────

type fakeEventPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *fakeEventPublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)
	return nil
}

func (p *fakeEventPublisher) typesSeen() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]shared.EventType, len(p.events))
	for i, event := range p.events {
		types[i] = event.EventType()
	}
	return types
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

// puzzleItems builds the standard puzzle path fixture: 5 fragments at 4
// points each, 20 max, 14 to pass.
func puzzleItems() []content.Item {
	items := make([]content.Item, 5)
	for i := range items {
		items[i] = content.Item{
			ID:       shared.ItemID(fmt.Sprintf("frag-%d", i+1)),
			Kind:     practice.KindPuzzlePath,
			Position: i,
			Prompt:   fmt.Sprintf("Arrange fragment %d", i+1),
			Payload:  map[string]interface{}{"fragments": []string{"a", "b", "c"}},
			AnswerKey: map[string]interface{}{
				"order": []string{"a", "c", "b"},
			},
			MaxScore: 4,
		}
	}
	return items
}

func puzzleItemOrder() []shared.ItemID {
	return []shared.ItemID{"frag-1", "frag-2", "frag-3", "frag-4", "frag-5"}
}

func storedPuzzleSet(store *fakeItemStore) {
	store.sets[itemSetKey(shared.VocabSetID(testVocabSet), practice.KindPuzzlePath)] = &content.ItemSet{
		VocabSetID:  shared.VocabSetID(testVocabSet),
		Kind:        practice.KindPuzzlePath,
		Items:       puzzleItems(),
		GeneratedAt: time.Now().UTC(),
	}
}

// commandEnv wires every handler over the same set of fakes so tests can
// drive full lifecycle flows: start, submit, confirm, decline.
type commandEnv struct {
	attempts    *fakeAttemptRepo
	responses   *fakeResponseRepo
	progress    *fakeProgressRepo
	completions *fakeCompletionRepo
	sessions    *fakeSessionStore
	itemStore   *fakeItemStore
	generator   *fakeGenerator
	evaluator   *fakeEvaluator
	events      *fakeEventPublisher

	start   *StartAttemptHandler
	submit  *SubmitItemHandler
	confirm *ConfirmAttemptHandler
	decline *DeclineAttemptHandler
}

func newCommandEnv() *commandEnv {
	env := &commandEnv{
		attempts:    newFakeAttemptRepo(),
		responses:   newFakeResponseRepo(),
		progress:    newFakeProgressRepo(),
		completions: newFakeCompletionRepo(),
		sessions:    newFakeSessionStore(),
		itemStore:   newFakeItemStore(),
		generator:   &fakeGenerator{items: puzzleItems()},
		evaluator:   &fakeEvaluator{evaluations: make(map[shared.ItemID]content.Evaluation)},
		events:      &fakeEventPublisher{},
	}
	env.start = NewStartAttemptHandler(
		env.attempts, env.progress, env.sessions, env.itemStore, env.generator, env.events, nil)
	env.submit = NewSubmitItemHandler(
		env.attempts, env.responses, env.progress, env.sessions, env.itemStore,
		env.evaluator, acceptAllValidator{}, env.events, nil)
	env.confirm = NewConfirmAttemptHandler(
		env.attempts, env.progress, env.completions, env.sessions, env.events, nil)
	env.decline = NewDeclineAttemptHandler(
		env.attempts, env.responses, env.progress, env.sessions, env.events, nil)
	return env
}

func startCommand() StartAttemptCommand {
	return StartAttemptCommand{
		StudentID:    testStudent,
		VocabSetID:   testVocabSet,
		AssignmentID: testAssignment,
		Kind:         practice.KindPuzzlePath.String(),
	}
}

func submitCommand(attemptID string, itemID shared.ItemID) SubmitItemCommand {
	return SubmitItemCommand{
		StudentID:    testStudent,
		AttemptID:    attemptID,
		AssignmentID: testAssignment,
		ItemID:       itemID.String(),
		Answer:       map[string]interface{}{"order": []string{"a", "c", "b"}},
	}
}
