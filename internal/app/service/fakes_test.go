package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"recruit_proctor/internal/common"
	"recruit_proctor/internal/domain/model"
)

// In-memory repositories mirroring the conditional writes of the pg ones.

type fakeTx struct{}

func (fakeTx) WithinTx(_ context.Context, fn func(tx *sql.Tx) error) error { return fn(nil) }

type fakeExamRepo struct {
	mu    sync.Mutex
	exams map[string]*model.Exam
}

func newFakeExamRepo() *fakeExamRepo { return &fakeExamRepo{exams: map[string]*model.Exam{}} }

func (r *fakeExamRepo) put(e *model.Exam) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *e
	r.exams[e.ID] = &c
}

func (r *fakeExamRepo) CreateExam(_ context.Context, _ *sql.Tx, e *model.Exam) error {
	r.put(e)
	return nil
}

func (r *fakeExamRepo) FindExamByID(_ context.Context, id string) (*model.Exam, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.exams[id]
	if !ok {
		return nil, common.ErrExamNotFound
	}
	c := *e
	c.Questions = append([]model.Question{}, e.Questions...)
	return &c, nil
}

func (r *fakeExamRepo) ListExams(_ context.Context, status model.ExamStatus, limit, offset int) ([]model.Exam, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Exam
	for _, e := range r.exams {
		if status == "" || e.Status == status {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (r *fakeExamRepo) BeginGeneration(_ context.Context, _ *sql.Tx, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.exams[id]
	if !ok || !e.Status.CanStartGeneration() {
		return false, nil
	}
	e.Status = model.ExamStatusGenerating
	e.GenerationAttempts++
	e.LastError = nil
	return true, nil
}

func (r *fakeExamRepo) FinishGeneration(_ context.Context, _ *sql.Tx, id string, status model.ExamStatus, questions []model.Question, lastError *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.exams[id]
	if !ok || e.Status != model.ExamStatusGenerating {
		return false, nil
	}
	e.Status = status
	if questions != nil {
		e.Questions = questions
	}
	e.LastError = lastError
	return true, nil
}

func (r *fakeExamRepo) Publish(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.exams[id]
	if !ok || e.Status != model.ExamStatusDraft || len(e.Questions) == 0 {
		return false, nil
	}
	e.Status = model.ExamStatusReady
	return true, nil
}

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.GenerationJob
}

func newFakeJobRepo() *fakeJobRepo { return &fakeJobRepo{jobs: map[string]*model.GenerationJob{}} }

func (r *fakeJobRepo) CreateJob(_ context.Context, _ *sql.Tx, job *model.GenerationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *job
	r.jobs[job.ID] = &c
	return nil
}

func (r *fakeJobRepo) GetJobByID(_ context.Context, id string) (*model.GenerationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	c := *j
	return &c, nil
}

func (r *fakeJobRepo) UpdateJobStatus(_ context.Context, _ *sql.Tx, id string, status string, lastError *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return common.ErrNotFound
	}
	j.Status = status
	j.LastError = lastError
	return nil
}

func (r *fakeJobRepo) TransitionJobStatus(_ context.Context, _ *sql.Tx, id, from, status string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Status != from {
		return false, nil
	}
	j.Status = status
	return true, nil
}

func (r *fakeJobRepo) IncrementJobAttempts(_ context.Context, _ *sql.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return common.ErrNotFound
	}
	j.Attempts++
	return nil
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *fakeQueue) Enqueue(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, id)
	return nil
}

func (q *fakeQueue) Dequeue(context.Context) (string, error) { return "", nil }
func (q *fakeQueue) Close() error                            { return nil }

func (q *fakeQueue) last() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ids) == 0 {
		return ""
	}
	return q.ids[len(q.ids)-1]
}

type fakeAssignmentRepo struct {
	mu          sync.Mutex
	assignments map[string]*model.ExamAssignment
	exams       *fakeExamRepo
	updateErr   error
}

func newFakeAssignmentRepo(exams *fakeExamRepo) *fakeAssignmentRepo {
	return &fakeAssignmentRepo{assignments: map[string]*model.ExamAssignment{}, exams: exams}
}

func (r *fakeAssignmentRepo) put(a *model.ExamAssignment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *a
	r.assignments[a.ID] = &c
}

func (r *fakeAssignmentRepo) CreateAssignment(_ context.Context, _ *sql.Tx, a *model.ExamAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.assignments {
		if other.ExamID == a.ExamID && other.CandidateID == a.CandidateID && other.Status != model.AssignmentCancelled {
			return common.ErrAlreadyAssigned
		}
	}
	c := *a
	r.assignments[a.ID] = &c
	return nil
}

func (r *fakeAssignmentRepo) FindAssignmentByID(_ context.Context, id string) (*model.ExamAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[id]
	if !ok {
		return nil, common.ErrAssignmentNotFound
	}
	c := *a
	return &c, nil
}

func (r *fakeAssignmentRepo) FindAssignmentForUpdate(ctx context.Context, _ *sql.Tx, id string) (*model.ExamAssignment, error) {
	return r.FindAssignmentByID(ctx, id)
}

func (r *fakeAssignmentRepo) FindOpenAssignment(_ context.Context, examID, candidateID string) (*model.ExamAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.assignments {
		if a.ExamID == examID && a.CandidateID == candidateID && a.Status != model.AssignmentCancelled {
			c := *a
			return &c, nil
		}
	}
	return nil, common.ErrAssignmentNotFound
}

func (r *fakeAssignmentRepo) UpdateAssignmentStatus(_ context.Context, _ *sql.Tx, id string, status model.AssignmentStatus, remarks *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	a, ok := r.assignments[id]
	if !ok {
		return common.ErrAssignmentNotFound
	}
	a.Status = status
	if remarks != nil {
		a.AdminRemarks = remarks
	}
	return nil
}

func (r *fakeAssignmentRepo) conditional(id string, from, to model.AssignmentStatus, set func(a *model.ExamAssignment)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[id]
	if !ok || a.Status != from {
		return false
	}
	a.Status = to
	set(a)
	return true
}

func (r *fakeAssignmentRepo) MarkStarted(_ context.Context, _ *sql.Tx, id string, at time.Time) (bool, error) {
	return r.conditional(id, model.AssignmentAssigned, model.AssignmentActive, func(a *model.ExamAssignment) { a.StartedAt = &at }), nil
}

func (r *fakeAssignmentRepo) MarkCompleted(_ context.Context, _ *sql.Tx, id string, at time.Time) (bool, error) {
	return r.conditional(id, model.AssignmentActive, model.AssignmentCompleted, func(a *model.ExamAssignment) { a.CompletedAt = &at }), nil
}

func (r *fakeAssignmentRepo) CancelAssignedForRole(ctx context.Context, _ *sql.Tx, candidateID, role string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, a := range r.assignments {
		if a.CandidateID != candidateID || a.Status != model.AssignmentAssigned {
			continue
		}
		exam, err := r.exams.FindExamByID(ctx, a.ExamID)
		if err != nil || exam.Role != role {
			continue
		}
		a.Status = model.AssignmentCancelled
		ids = append(ids, a.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *fakeAssignmentRepo) ListByCandidate(_ context.Context, candidateID string) ([]model.ExamAssignment, error) {
	return r.list(func(a *model.ExamAssignment) bool { return a.CandidateID == candidateID }), nil
}

func (r *fakeAssignmentRepo) ListByExam(_ context.Context, examID string) ([]model.ExamAssignment, error) {
	return r.list(func(a *model.ExamAssignment) bool { return a.ExamID == examID }), nil
}

func (r *fakeAssignmentRepo) list(keep func(a *model.ExamAssignment) bool) []model.ExamAssignment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.ExamAssignment{}
	for _, a := range r.assignments {
		if keep(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type fakeApplicationRepo struct {
	mu   sync.Mutex
	apps map[string]*model.Application
}

func newFakeApplicationRepo() *fakeApplicationRepo {
	return &fakeApplicationRepo{apps: map[string]*model.Application{}}
}

func (r *fakeApplicationRepo) Create(_ context.Context, app *model.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *app
	r.apps[app.ID] = &c
	return nil
}

func (r *fakeApplicationRepo) FindByID(_ context.Context, id string) (*model.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.apps[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (r *fakeApplicationRepo) FindOpenByCandidateRole(_ context.Context, candidateID, role string) (*model.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.apps {
		if a.CandidateID == candidateID && a.Role == role && !a.Status.Terminal() {
			c := *a
			return &c, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeApplicationRepo) UpdateStatus(_ context.Context, _ *sql.Tx, id string, status model.ApplicationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.apps[id]
	if !ok {
		return common.ErrNotFound
	}
	a.Status = status
	return nil
}

func (r *fakeApplicationRepo) status(id string) model.ApplicationStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apps[id].Status
}

type fakeLogRepo struct {
	mu      sync.Mutex
	entries []model.ProctorLogEntry
	err     error
}

func (r *fakeLogRepo) Append(_ context.Context, _ *sql.Tx, e *model.ProctorLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, *e)
	return nil
}

func (r *fakeLogRepo) ListByAssignment(_ context.Context, assignmentID string) ([]model.ProctorLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.ProctorLogEntry{}
	for _, e := range r.entries {
		if e.AssignmentID == assignmentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeLogRepo) events(assignmentID string) []string {
	entries, _ := r.ListByAssignment(context.Background(), assignmentID)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.EventType)
	}
	return out
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.ProctoringSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*model.ProctoringSession{}}
}

func (r *fakeSessionRepo) MarkConnected(_ context.Context, assignmentID, userID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[assignmentID]
	if !ok {
		r.sessions[assignmentID] = &model.ProctoringSession{
			AssignmentID: assignmentID, UserID: userID, MobileConnected: true, LastPing: at, CreatedAt: at, UpdatedAt: at,
		}
		return false, nil
	}
	was := s.MobileConnected
	s.MobileConnected = true
	if userID != "" {
		s.UserID = userID
	}
	if at.After(s.LastPing) {
		s.LastPing = at
	}
	s.UpdatedAt = at
	return was, nil
}

func (r *fakeSessionRepo) MarkDisconnected(_ context.Context, assignmentID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[assignmentID]
	if !ok {
		r.sessions[assignmentID] = &model.ProctoringSession{AssignmentID: assignmentID, LastPing: at, CreatedAt: at, UpdatedAt: at}
		return false, nil
	}
	was := s.MobileConnected
	s.MobileConnected = false
	s.UpdatedAt = at
	return was, nil
}

func (r *fakeSessionRepo) FindSession(_ context.Context, assignmentID string) (*model.ProctoringSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[assignmentID]
	if !ok {
		return nil, common.ErrNotFound
	}
	c := *s
	return &c, nil
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
