package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	domain "github.com/turtacn/MolForge/internal/domain/generation"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/MolForge/pkg/errors"
	gentypes "github.com/turtacn/MolForge/pkg/types/generation"
)

// ─────────────────────────────────────────────────────────────────────────────
// Mocks
// ─────────────────────────────────────────────────────────────────────────────

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, s Session, p gentypes.Payload) (*gentypes.GenerateResponse, error) {
	args := m.Called(ctx, s, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gentypes.GenerateResponse), args.Error(1)
}

type MockHistoryStore struct {
	mock.Mock
}

func (m *MockHistoryStore) Create(ctx context.Context, s Session, req gentypes.CreateHistoryRequest) (*gentypes.HistoryRecord, error) {
	args := m.Called(ctx, s, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gentypes.HistoryRecord), args.Error(1)
}

func (m *MockHistoryStore) ListByUser(ctx context.Context, s Session) ([]gentypes.HistoryRecord, error) {
	args := m.Called(ctx, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]gentypes.HistoryRecord), args.Error(1)
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

const seed = "CCN(CC)C(=O)[C@@]1(C)Nc2c(ccc3ccccc23)C[C@H]1N(C)C"

var (
	anonymous = Session{}
	signedIn  = Session{UserID: "user-1", Token: "tok"}
)

func sequentialIDs() domain.IDGenerator {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func moleculesResponse(t *testing.T, items string) *gentypes.GenerateResponse {
	t.Helper()
	encoded, err := json.Marshal(items)
	require.NoError(t, err)
	return &gentypes.GenerateResponse{Molecules: encoded}
}

func sampleForm() domain.Form {
	f := domain.DefaultForm()
	f.Seed = "  " + seed + " "
	f.NumMolecules = "10"
	f.MinSimilarity = "0.3"
	return f
}

func newOrchestrator(gen Generator, store HistoryStore, opts ...Option) *Orchestrator {
	opts = append([]Option{WithIDGenerator(sequentialIDs())}, opts...)
	return NewOrchestrator(gen, store, logging.NewNopLogger(), opts...)
}

// ─────────────────────────────────────────────────────────────────────────────
// Submit
// ─────────────────────────────────────────────────────────────────────────────

func TestSubmit_AnonymousSuccess(t *testing.T) {
	gen, store := new(MockGenerator), new(MockHistoryStore)
	o := newOrchestrator(gen, store)

	gen.On("Generate", mock.Anything, anonymous, mock.MatchedBy(func(p gentypes.Payload) bool {
		return p.SMI == seed && p.NumMolecules == 10 && p.MinSimilarity == 0.3 &&
			p.Particles == 30 && p.Iterations == 10 &&
			p.Algorithm == gentypes.AlgorithmCMAES && p.PropertyName == gentypes.PropertyQED && !p.Minimize
	})).Return(moleculesResponse(t, `[{"sample":" CCO ","score":0.8},{"sample":"","score":0.1},{"score":0.2},{"sample":"c1ccccc1","score":0.5}]`), nil).Once()

	require.NoError(t, o.Submit(context.Background(), anonymous, sampleForm()))

	v := o.View()
	assert.False(t, v.Loading)
	assert.Empty(t, v.Alert)
	assert.Equal(t, []gentypes.Candidate{
		{ID: "id-1", Structure: "CCO", Score: 0.8},
		{ID: "id-2", Structure: "c1ccccc1", Score: 0.5},
	}, v.Candidates)
	gen.AssertExpectations(t)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_SignedInPersistsThenRefetches(t *testing.T) {
	gen, store := new(MockGenerator), new(MockHistoryStore)
	o := newOrchestrator(gen, store)

	gen.On("Generate", mock.Anything, signedIn, mock.Anything).
		Return(moleculesResponse(t, `[{"sample":"CCO","score":0.8}]`), nil)

	var calls []string
	store.On("Create", mock.Anything, signedIn, mock.MatchedBy(func(r gentypes.CreateHistoryRequest) bool {
		return r.Smiles == "  "+seed+" " && r.NumMolecules == 10 && r.Particles == 30 &&
			len(r.GeneratedMolecules) == 1 && r.GeneratedMolecules[0].Structure == "CCO"
	})).Run(func(mock.Arguments) { calls = append(calls, "create") }).
		Return(&gentypes.HistoryRecord{ID: "rec-1"}, nil)

	history := []gentypes.HistoryRecord{{ID: "rec-1", UserID: "user-1"}}
	store.On("ListByUser", mock.Anything, signedIn).
		Run(func(mock.Arguments) { calls = append(calls, "list") }).
		Return(history, nil)

	require.NoError(t, o.Submit(context.Background(), signedIn, sampleForm()))

	assert.Equal(t, []string{"create", "list"}, calls)
	v := o.View()
	assert.False(t, v.Loading)
	assert.Equal(t, history, v.History)
	assert.Len(t, v.Candidates, 1)
	assert.Empty(t, v.Warning)
}

func TestSubmit_GeneratorFailure(t *testing.T) {
	gen, store := new(MockGenerator), new(MockHistoryStore)
	o := newOrchestrator(gen, store)

	gen.On("Generate", mock.Anything, signedIn, mock.Anything).
		Return(nil, errors.New("upstream returned 502"))

	err := o.Submit(context.Background(), signedIn, sampleForm())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeGenerationFailed))

	v := o.View()
	assert.Equal(t, AlertGenerationFailed, v.Alert)
	assert.Empty(t, v.Candidates)
	assert.NotNil(t, v.Candidates)
	assert.False(t, v.Loading)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_MalformedResponse(t *testing.T) {
	gen := new(MockGenerator)
	o := newOrchestrator(gen, nil)

	gen.On("Generate", mock.Anything, anonymous, mock.Anything).
		Return(&gentypes.GenerateResponse{Molecules: json.RawMessage(`"not json"`)}, nil)

	err := o.Submit(context.Background(), anonymous, sampleForm())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeGenerationMalformed))
	assert.Equal(t, AlertGenerationFailed, o.View().Alert)
	assert.False(t, o.View().Loading)
}

func TestSubmit_ClearsPreviousResultsAndAlert(t *testing.T) {
	gen := new(MockGenerator)
	o := newOrchestrator(gen, nil)

	gen.On("Generate", mock.Anything, anonymous, mock.Anything).Return(nil, errors.New("boom")).Once()
	_ = o.Submit(context.Background(), anonymous, sampleForm())
	require.Equal(t, AlertGenerationFailed, o.View().Alert)

	gen.On("Generate", mock.Anything, anonymous, mock.Anything).
		Return(moleculesResponse(t, `[{"sample":"CCO","score":0.8}]`), nil).Once()
	require.NoError(t, o.Submit(context.Background(), anonymous, sampleForm()))
	assert.Empty(t, o.View().Alert)

	gen.On("Generate", mock.Anything, anonymous, mock.Anything).
		Return(moleculesResponse(t, `[{"sample":"CCN","score":0.4}]`), nil).Once()
	require.NoError(t, o.Submit(context.Background(), anonymous, sampleForm()))

	v := o.View()
	require.Len(t, v.Candidates, 1, "results are replaced, never merged")
	assert.Equal(t, "CCN", v.Candidates[0].Structure)
}

func TestSubmit_PersistFailureKeepsCandidates(t *testing.T) {
	gen, store := new(MockGenerator), new(MockHistoryStore)
	o := newOrchestrator(gen, store)

	gen.On("Generate", mock.Anything, signedIn, mock.Anything).
		Return(moleculesResponse(t, `[{"sample":"CCO","score":0.8}]`), nil)
	store.On("Create", mock.Anything, signedIn, mock.Anything).
		Return(nil, pkgerrors.New(pkgerrors.ErrCodeHistoryPersistFailed, "insert failed"))

	require.NoError(t, o.Submit(context.Background(), signedIn, sampleForm()))

	v := o.View()
	assert.Len(t, v.Candidates, 1)
	assert.Equal(t, WarningHistoryNotSaved, v.Warning)
	assert.Empty(t, v.Alert)
	assert.False(t, v.Loading)
	store.AssertNotCalled(t, "ListByUser", mock.Anything, mock.Anything)
}

func TestSubmit_RefetchFailureWarns(t *testing.T) {
	gen, store := new(MockGenerator), new(MockHistoryStore)
	o := newOrchestrator(gen, store)

	gen.On("Generate", mock.Anything, signedIn, mock.Anything).
		Return(moleculesResponse(t, `[{"sample":"CCO","score":0.8}]`), nil)
	store.On("Create", mock.Anything, signedIn, mock.Anything).Return(&gentypes.HistoryRecord{ID: "r"}, nil)
	store.On("ListByUser", mock.Anything, signedIn).Return(nil, errors.New("timeout"))

	require.NoError(t, o.Submit(context.Background(), signedIn, sampleForm()))
	assert.Equal(t, WarningHistoryStale, o.View().Warning)
	assert.False(t, o.View().Loading)
}

func TestSubmit_LoadingVisibleWhileInFlight(t *testing.T) {
	gen := new(MockGenerator)
	var views []View
	var mu sync.Mutex
	o := newOrchestrator(gen, nil, WithObserver(func(v View) {
		mu.Lock()
		defer mu.Unlock()
		views = append(views, v)
	}))

	gen.On("Generate", mock.Anything, anonymous, mock.Anything).
		Return(moleculesResponse(t, `[]`), nil)

	require.NoError(t, o.Submit(context.Background(), anonymous, sampleForm()))

	require.Len(t, views, 2)
	assert.True(t, views[0].Loading)
	assert.Empty(t, views[0].Candidates)
	assert.False(t, views[1].Loading)
}

func TestSubmit_OverlappingRequestsOnlyLatestApplies(t *testing.T) {
	gen, store := new(MockGenerator), new(MockHistoryStore)
	o := newOrchestrator(gen, store)

	release := make(chan struct{})
	slowStarted := make(chan struct{})

	slow := domain.DefaultForm()
	slow.Seed = "SLOW"
	fast := domain.DefaultForm()
	fast.Seed = "FAST"

	gen.On("Generate", mock.Anything, signedIn, mock.MatchedBy(func(p gentypes.Payload) bool { return p.SMI == "SLOW" })).
		Run(func(mock.Arguments) {
			close(slowStarted)
			<-release
		}).
		Return(moleculesResponse(t, `[{"sample":"OLD","score":0.1}]`), nil)
	gen.On("Generate", mock.Anything, signedIn, mock.MatchedBy(func(p gentypes.Payload) bool { return p.SMI == "FAST" })).
		Return(moleculesResponse(t, `[{"sample":"NEW","score":0.9}]`), nil)
	store.On("Create", mock.Anything, signedIn, mock.MatchedBy(func(r gentypes.CreateHistoryRequest) bool { return r.Smiles == "FAST" })).
		Return(&gentypes.HistoryRecord{ID: "r-new"}, nil).Once()
	store.On("ListByUser", mock.Anything, signedIn).Return([]gentypes.HistoryRecord{{ID: "r-new"}}, nil)

	slowErr := make(chan error, 1)
	go func() { slowErr <- o.Submit(context.Background(), signedIn, slow) }()
	<-slowStarted

	require.NoError(t, o.Submit(context.Background(), signedIn, fast))
	close(release)

	select {
	case err := <-slowErr:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("stale submission did not return")
	}

	v := o.View()
	require.Len(t, v.Candidates, 1)
	assert.Equal(t, "NEW", v.Candidates[0].Structure)
	assert.False(t, v.Loading)
	store.AssertNumberOfCalls(t, "Create", 1)
}

func TestSubmit_SupersededAfterResultsDoesNotPersist(t *testing.T) {
	gen, store := new(MockGenerator), new(MockHistoryStore)

	oldForm := domain.DefaultForm()
	oldForm.Seed = "OLDSEED"
	newForm := domain.DefaultForm()
	newForm.Seed = "NEWSEED"

	newStarted := make(chan struct{})
	releaseNew := make(chan struct{})
	newErr := make(chan error, 1)

	var (
		o       *Orchestrator
		startup sync.Once
	)
	o = newOrchestrator(gen, store, WithObserver(func(v View) {
		if len(v.Candidates) != 1 || v.Candidates[0].Structure != "OLD" {
			return
		}
		startup.Do(func() {
			go func() { newErr <- o.Submit(context.Background(), signedIn, newForm) }()
			<-newStarted
		})
	}))

	gen.On("Generate", mock.Anything, signedIn, mock.MatchedBy(func(p gentypes.Payload) bool { return p.SMI == "OLDSEED" })).
		Return(moleculesResponse(t, `[{"sample":"OLD","score":0.1}]`), nil)
	gen.On("Generate", mock.Anything, signedIn, mock.MatchedBy(func(p gentypes.Payload) bool { return p.SMI == "NEWSEED" })).
		Run(func(mock.Arguments) {
			close(newStarted)
			<-releaseNew
		}).
		Return(moleculesResponse(t, `[{"sample":"NEW","score":0.9}]`), nil)
	store.On("Create", mock.Anything, signedIn, mock.MatchedBy(func(r gentypes.CreateHistoryRequest) bool { return r.Smiles == "NEWSEED" })).
		Return(&gentypes.HistoryRecord{ID: "r-new"}, nil).Once()
	store.On("ListByUser", mock.Anything, signedIn).Return([]gentypes.HistoryRecord{{ID: "r-new"}}, nil)

	err := o.Submit(context.Background(), signedIn, oldForm)
	assert.ErrorIs(t, err, ErrSuperseded)

	close(releaseNew)
	select {
	case err := <-newErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("newer submission did not return")
	}

	store.AssertNumberOfCalls(t, "Create", 1)
	store.AssertNotCalled(t, "Create", mock.Anything, signedIn, mock.MatchedBy(func(r gentypes.CreateHistoryRequest) bool { return r.Smiles == "OLDSEED" }))
	v := o.View()
	require.Len(t, v.Candidates, 1)
	assert.Equal(t, "NEW", v.Candidates[0].Structure)
	assert.Equal(t, []gentypes.HistoryRecord{{ID: "r-new"}}, v.History)
}

func TestSubmit_SupersededDuringSaveKeepsNewerView(t *testing.T) {
	gen, store := new(MockGenerator), new(MockHistoryStore)
	o := newOrchestrator(gen, store)

	oldForm := domain.DefaultForm()
	oldForm.Seed = "OLDSEED"
	newForm := domain.DefaultForm()
	newForm.Seed = "NEWSEED"

	saving := make(chan struct{})
	releaseSave := make(chan struct{})

	gen.On("Generate", mock.Anything, signedIn, mock.MatchedBy(func(p gentypes.Payload) bool { return p.SMI == "OLDSEED" })).
		Return(moleculesResponse(t, `[{"sample":"OLD","score":0.1}]`), nil)
	gen.On("Generate", mock.Anything, signedIn, mock.MatchedBy(func(p gentypes.Payload) bool { return p.SMI == "NEWSEED" })).
		Return(moleculesResponse(t, `[{"sample":"NEW","score":0.9}]`), nil)
	store.On("Create", mock.Anything, signedIn, mock.MatchedBy(func(r gentypes.CreateHistoryRequest) bool { return r.Smiles == "OLDSEED" })).
		Run(func(mock.Arguments) {
			close(saving)
			<-releaseSave
		}).
		Return(&gentypes.HistoryRecord{ID: "r-old"}, nil).Once()
	store.On("Create", mock.Anything, signedIn, mock.MatchedBy(func(r gentypes.CreateHistoryRequest) bool { return r.Smiles == "NEWSEED" })).
		Return(&gentypes.HistoryRecord{ID: "r-new"}, nil).Once()
	store.On("ListByUser", mock.Anything, signedIn).Return([]gentypes.HistoryRecord{{ID: "r-new"}, {ID: "r-old"}}, nil)

	oldErr := make(chan error, 1)
	go func() { oldErr <- o.Submit(context.Background(), signedIn, oldForm) }()
	<-saving

	require.NoError(t, o.Submit(context.Background(), signedIn, newForm))
	close(releaseSave)

	select {
	case err := <-oldErr:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("stale submission did not return")
	}
	v := o.View()
	require.Len(t, v.Candidates, 1)
	assert.Equal(t, "NEW", v.Candidates[0].Structure)
	assert.False(t, v.Loading)
}

// ─────────────────────────────────────────────────────────────────────────────
// History
// ─────────────────────────────────────────────────────────────────────────────

func TestLoadHistory(t *testing.T) {
	store := new(MockHistoryStore)
	o := newOrchestrator(new(MockGenerator), store)

	records := []gentypes.HistoryRecord{{ID: "b"}, {ID: "a"}}
	store.On("ListByUser", mock.Anything, signedIn).Return(records, nil).Once()
	require.NoError(t, o.LoadHistory(context.Background(), signedIn))
	assert.Equal(t, records, o.View().History)

	require.NoError(t, o.LoadHistory(context.Background(), anonymous))
	assert.Empty(t, o.View().History)

	store.On("ListByUser", mock.Anything, signedIn).Return(nil, errors.New("down")).Once()
	assert.Error(t, o.LoadHistory(context.Background(), signedIn))
}

func TestSelectHistory(t *testing.T) {
	store := new(MockHistoryStore)
	gen := new(MockGenerator)
	o := newOrchestrator(gen, store)

	stored := []gentypes.Candidate{{ID: "x1", Structure: "CCO", Score: 0.8}, {ID: "x2", Structure: "CCN", Score: 0.2}}
	store.On("ListByUser", mock.Anything, signedIn).Return([]gentypes.HistoryRecord{
		{ID: "newest", GeneratedMolecules: stored},
		{ID: "oldest", GeneratedMolecules: []gentypes.Candidate{}},
	}, nil)
	require.NoError(t, o.LoadHistory(context.Background(), signedIn))

	require.NoError(t, o.SelectHistory("newest"))
	v := o.View()
	assert.Equal(t, stored, v.Candidates)
	assert.Equal(t, "newest", v.SelectedHistoryID)

	require.NoError(t, o.SelectHistoryIndex(1))
	assert.Empty(t, o.View().Candidates)
	assert.Equal(t, "oldest", o.View().SelectedHistoryID)

	assert.True(t, pkgerrors.IsCode(o.SelectHistory("missing"), pkgerrors.ErrCodeGenerationNoSelection))
	assert.True(t, pkgerrors.IsCode(o.SelectHistoryIndex(5), pkgerrors.ErrCodeGenerationNoSelection))
	assert.True(t, pkgerrors.IsCode(o.SelectHistoryIndex(-1), pkgerrors.ErrCodeGenerationNoSelection))

	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNumberOfCalls(t, "ListByUser", 1)
}

func TestView_IsACopy(t *testing.T) {
	store := new(MockHistoryStore)
	o := newOrchestrator(new(MockGenerator), store)
	store.On("ListByUser", mock.Anything, signedIn).Return([]gentypes.HistoryRecord{
		{ID: "a", GeneratedMolecules: []gentypes.Candidate{{ID: "c1", Structure: "CCO"}}},
	}, nil)
	require.NoError(t, o.LoadHistory(context.Background(), signedIn))

	v := o.View()
	v.History[0].ID = "mutated"
	v.History[0].GeneratedMolecules[0].Structure = "mutated"
	fresh := o.View()
	assert.Equal(t, "a", fresh.History[0].ID)
	assert.Equal(t, "CCO", fresh.History[0].GeneratedMolecules[0].Structure)
}
