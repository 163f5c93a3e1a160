// Package generation hosts the Generation Orchestrator: it turns form input
// into one proxy call, normalizes the answer into candidates, persists a
// history record for signed-in users and keeps the view state consistent
// when submissions overlap.
package generation

import (
	"context"
	"sync"
	"time"

	domain "github.com/turtacn/MolForge/internal/domain/generation"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MolForge/pkg/errors"
	gentypes "github.com/turtacn/MolForge/pkg/types/generation"
)

// User-facing messages placed on the view.
const (
	AlertGenerationFailed  = "Generation failed. Check server logs."
	WarningHistoryNotSaved = "Molecules were generated but could not be saved to your history."
	WarningHistoryStale    = "Your history could not be refreshed."
)

// Orchestration outcomes used as metric labels.
const (
	outcomeSucceeded  = "succeeded"
	outcomeFailed     = "failed"
	outcomeSuperseded = "superseded"
)

// ErrSuperseded is returned by a submission whose result was discarded
// because a newer submission started while it was in flight.
var ErrSuperseded = errors.New(errors.ErrCodeGenerationSuperseded, "generation superseded by a newer request")

// Session identifies the caller of an orchestrator operation.  An empty
// UserID means the caller is anonymous: generation still works but nothing
// is persisted.
type Session struct {
	UserID string
	Token  string
}

// Authenticated reports whether the session carries a user.
func (s Session) Authenticated() bool {
	return s.UserID != ""
}

// Generator calls the Server Proxy.
type Generator interface {
	Generate(ctx context.Context, session Session, payload gentypes.Payload) (*gentypes.GenerateResponse, error)
}

// HistoryStore persists and lists history records for the session user.
type HistoryStore interface {
	Create(ctx context.Context, session Session, req gentypes.CreateHistoryRequest) (*gentypes.HistoryRecord, error)
	ListByUser(ctx context.Context, session Session) ([]gentypes.HistoryRecord, error)
}

// View is a snapshot of what the user sees.
type View struct {
	Candidates []gentypes.Candidate
	History    []gentypes.HistoryRecord
	Loading    bool
	Alert      string
	Warning    string
	// SelectedHistoryID is set while Candidates shows a stored entry.
	SelectedHistoryID string
}

func (v View) clone() View {
	out := v
	out.Candidates = append([]gentypes.Candidate(nil), v.Candidates...)
	out.History = make([]gentypes.HistoryRecord, len(v.History))
	for i, rec := range v.History {
		rec.GeneratedMolecules = append([]gentypes.Candidate(nil), rec.GeneratedMolecules...)
		out.History[i] = rec
	}
	return out
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithIDGenerator replaces the candidate id source.
func WithIDGenerator(g domain.IDGenerator) Option {
	return func(o *Orchestrator) { o.newID = g }
}

// WithMetrics records orchestration outcomes on m.
func WithMetrics(m *prometheus.AppMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithObserver registers fn to receive a snapshot after every view change.
// fn is called without the orchestrator lock held.
func WithObserver(fn func(View)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// Orchestrator coordinates generation, history and view state.  It is safe
// for concurrent use.
type Orchestrator struct {
	gen      Generator
	store    HistoryStore
	newID    domain.IDGenerator
	metrics  *prometheus.AppMetrics
	observer func(View)
	logger   logging.Logger

	mu   sync.Mutex
	view View
	// seq fences overlapping submissions: only the holder of the latest
	// token may change the view or persist.
	seq uint64
}

// NewOrchestrator builds an Orchestrator.  store may be nil, in which case
// history operations are skipped.
func NewOrchestrator(gen Generator, store HistoryStore, log logging.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:     gen,
		store:   store,
		newID:   domain.UUIDGenerator,
		metrics: prometheus.NewNoopAppMetrics(),
		logger:  log.Named("orchestrator"),
		view:    View{Candidates: []gentypes.Candidate{}, History: []gentypes.HistoryRecord{}},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// View returns a copy of the current view.
func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.view.clone()
}

// update applies fn under the lock when token is still current and notifies
// the observer.  It reports whether fn ran.
func (o *Orchestrator) update(token uint64, fn func(v *View)) bool {
	o.mu.Lock()
	if token != 0 && token != o.seq {
		o.mu.Unlock()
		return false
	}
	fn(&o.view)
	snapshot := o.view.clone()
	o.mu.Unlock()

	if o.observer != nil {
		o.observer(snapshot)
	}
	return true
}

// Submit runs one generation round trip for form.  The returned error is
// the cause of a failed generation, ErrSuperseded when a newer submission
// took over, or nil.  A history persistence failure is reported through
// View().Warning and does not fail the submission.
func (o *Orchestrator) Submit(ctx context.Context, session Session, form domain.Form) error {
	o.mu.Lock()
	o.seq++
	token := o.seq
	o.mu.Unlock()

	log := o.logger.WithContext(ctx).With(logging.Int64("seq", int64(token)))
	start := time.Now()

	o.update(token, func(v *View) {
		v.Loading = true
		v.Candidates = []gentypes.Candidate{}
		v.Alert = ""
		v.Warning = ""
		v.SelectedHistoryID = ""
	})

	req := domain.NewRequest(form)
	candidates, err := o.generate(ctx, session, req)
	if err != nil {
		log.Error("generation failed", logging.Err(err), logging.Duration("elapsed", time.Since(start)))
		applied := o.update(token, func(v *View) {
			v.Candidates = []gentypes.Candidate{}
			v.Alert = AlertGenerationFailed
			v.Loading = false
		})
		if !applied {
			return o.superseded(log)
		}
		o.metrics.GenerationsTotal.WithLabelValues(outcomeFailed).Inc()
		return err
	}

	applied := o.update(token, func(v *View) {
		v.Candidates = candidates
		if !session.Authenticated() || o.store == nil {
			v.Loading = false
		}
	})
	if !applied {
		return o.superseded(log)
	}
	prometheus.RecordCandidates(o.metrics, "orchestrator", len(candidates))
	o.metrics.GenerationsTotal.WithLabelValues(outcomeSucceeded).Inc()
	log.Info("generation succeeded",
		logging.Int("candidates", len(candidates)),
		logging.Duration("elapsed", time.Since(start)))

	if !session.Authenticated() || o.store == nil {
		return nil
	}
	if !o.persist(ctx, log, token, session, req, candidates) {
		return o.superseded(log)
	}
	return nil
}

func (o *Orchestrator) generate(ctx context.Context, session Session, req domain.Request) ([]gentypes.Candidate, error) {
	resp, err := o.gen.Generate(ctx, session, req.Payload())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGenerationFailed, "generation request failed")
	}
	candidates, err := domain.NormalizeMolecules(resp.Molecules, o.newID)
	if err != nil {
		o.metrics.MalformedResponseTotal.WithLabelValues("orchestrator").Inc()
		return nil, err
	}
	return candidates, nil
}

// persist stores the record and refreshes the history list.  Candidates stay
// on screen whatever happens here.  It reports false when a newer submission
// took over, in which case nothing more is written.
func (o *Orchestrator) persist(ctx context.Context, log logging.Logger, token uint64, session Session, req domain.Request, candidates []gentypes.Candidate) bool {
	if !o.current(token) {
		return false
	}
	_, err := o.store.Create(ctx, session, gentypes.CreateHistoryRequest{
		Smiles:             req.SeedStructure,
		NumMolecules:       req.NumCandidates,
		MinSimilarity:      req.MinSimilarity,
		Particles:          req.ParticleCount,
		Iterations:         req.IterationCount,
		GeneratedMolecules: candidates,
	})
	if err != nil {
		log.Error("failed to save history record", logging.String(logging.FieldUserID, session.UserID), logging.Err(err))
		return o.update(token, func(v *View) {
			v.Warning = WarningHistoryNotSaved
			v.Loading = false
		})
	}

	history, err := o.store.ListByUser(ctx, session)
	if err != nil {
		log.Warn("failed to refresh history", logging.String(logging.FieldUserID, session.UserID), logging.Err(err))
	}
	return o.update(token, func(v *View) {
		if err != nil {
			v.Warning = WarningHistoryStale
		} else {
			v.History = history
		}
		v.Loading = false
	})
}

// current reports whether token belongs to the latest submission.
func (o *Orchestrator) current(token uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return token == o.seq
}

func (o *Orchestrator) superseded(log logging.Logger) error {
	log.Info("discarding stale generation result")
	o.metrics.GenerationsTotal.WithLabelValues(outcomeSuperseded).Inc()
	return ErrSuperseded
}

// LoadHistory replaces the history view with the session user's records.
// Anonymous sessions get an empty list.
func (o *Orchestrator) LoadHistory(ctx context.Context, session Session) error {
	if !session.Authenticated() || o.store == nil {
		o.update(0, func(v *View) { v.History = []gentypes.HistoryRecord{} })
		return nil
	}
	history, err := o.store.ListByUser(ctx, session)
	if err != nil {
		o.logger.WithContext(ctx).Warn("failed to load history",
			logging.String(logging.FieldUserID, session.UserID), logging.Err(err))
		return err
	}
	o.update(0, func(v *View) { v.History = history })
	return nil
}

// SelectHistory shows the stored candidates of the history entry with id.
// No network call is made.
func (o *Orchestrator) SelectHistory(id string) error {
	var found bool
	o.update(0, func(v *View) {
		for _, rec := range v.History {
			if rec.ID == id {
				v.Candidates = append([]gentypes.Candidate{}, rec.GeneratedMolecules...)
				v.SelectedHistoryID = rec.ID
				v.Alert = ""
				found = true
				return
			}
		}
	})
	if !found {
		return errors.New(errors.ErrCodeGenerationNoSelection, "no history entry with that id").WithDetail(id)
	}
	return nil
}

// SelectHistoryIndex is SelectHistory by position in the newest-first list.
func (o *Orchestrator) SelectHistoryIndex(i int) error {
	o.mu.Lock()
	if i < 0 || i >= len(o.view.History) {
		n := len(o.view.History)
		o.mu.Unlock()
		return errors.Newf(errors.ErrCodeGenerationNoSelection, "history index %d out of range [0, %d)", i, n)
	}
	id := o.view.History[i].ID
	o.mu.Unlock()
	return o.SelectHistory(id)
}
