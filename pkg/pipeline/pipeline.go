package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Loader retrieves a dataset. format is a closed set chosen by the implementation.
type Loader interface {
	Load(ctx context.Context, path, format string) (Records, error)
}

type step struct {
	name string
	op   Operation
}

// OperationInfo describes one registered operation.
type OperationInfo struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// Pipeline owns a Dataset and an ordered set of named Operations, and folds
// the former through the latter on every Run. It is safe for concurrent use.
type Pipeline struct {
	mu     sync.RWMutex
	data   Records
	steps  []step
	index  map[string]int
	rev    uint64
	loader Loader
	log    *slog.Logger
	strict bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.log = l } }

func WithLoader(l Loader) Option { return func(p *Pipeline) { p.loader = l } }

// WithStrictShapes makes shape mismatches fail the run with a *ShapeError
// instead of warning and passing the input through.
func WithStrictShapes() Option { return func(p *Pipeline) { p.strict = true } }

func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{data: Records{}, index: map[string]int{}, log: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Load replaces the Dataset with what the Loader returns. On failure the
// previous Dataset is kept. Registered operations are never touched.
func (p *Pipeline) Load(ctx context.Context, path, format string) error {
	p.mu.RLock()
	l := p.loader
	p.mu.RUnlock()
	if l == nil {
		return &LoadError{Path: path, Format: format, Err: ErrNoLoader}
	}
	recs, err := l.Load(ctx, path, format)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			return err
		}
		return &LoadError{Path: path, Format: format, Err: err}
	}
	p.SetData(recs)
	p.log.InfoContext(ctx, "dataset loaded", "path", path, "format", format, "records", len(recs))
	return nil
}

// SetData replaces the Dataset wholesale.
func (p *Pipeline) SetData(recs Records) {
	p.mu.Lock()
	p.data = recs.Clone()
	p.rev++
	p.mu.Unlock()
}

// Data returns the live Dataset. The slice is a copy; Records are shared.
func (p *Pipeline) Data() Records {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.data.Clone()
}

// Revision increases on every change to the Dataset or the Operation Set.
func (p *Pipeline) Revision() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rev
}

// AddOperation inserts op under name, or replaces the operation already
// registered there while keeping its position.
func (p *Pipeline) AddOperation(name string, op Operation) *Pipeline {
	p.Update(func(tx *Tx) { tx.Add(name, op) })
	return p
}

// RemoveOperation deletes name if present.
func (p *Pipeline) RemoveOperation(name string) *Pipeline {
	p.Update(func(tx *Tx) { tx.Remove(name) })
	return p
}

func (p *Pipeline) ClearOperations() *Pipeline {
	p.Update(func(tx *Tx) { tx.Clear() })
	return p
}

// Update applies several registry mutations atomically: no Run observes a
// partially applied batch.
func (p *Pipeline) Update(fn func(tx *Tx)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tx := &Tx{p: p}
	fn(tx)
	if tx.changed {
		p.rev++
	}
}

// Tx is a batch of registry mutations; see Update.
type Tx struct {
	p       *Pipeline
	changed bool
}

func (tx *Tx) Add(name string, op Operation) {
	p := tx.p
	if i, ok := p.index[name]; ok {
		p.steps[i].op = op
	} else {
		p.index[name] = len(p.steps)
		p.steps = append(p.steps, step{name: name, op: op})
	}
	tx.changed = true
}

func (tx *Tx) Remove(name string) {
	p := tx.p
	i, ok := p.index[name]
	if !ok {
		return
	}
	p.steps = append(p.steps[:i:i], p.steps[i+1:]...)
	delete(p.index, name)
	for j := i; j < len(p.steps); j++ {
		p.index[p.steps[j].name] = j
	}
	tx.changed = true
}

func (tx *Tx) Clear() {
	p := tx.p
	if len(p.steps) == 0 {
		return
	}
	p.steps = nil
	p.index = map[string]int{}
	tx.changed = true
}

func (tx *Tx) Has(name string) bool {
	_, ok := tx.p.index[name]
	return ok
}

func (p *Pipeline) Has(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.index[name]
	return ok
}

func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.steps)
}

// Names returns the registered names in evaluation order.
func (p *Pipeline) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.steps))
	for i, s := range p.steps {
		out[i] = s.name
	}
	return out
}

func (p *Pipeline) Operations() []OperationInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]OperationInfo, len(p.steps))
	for i, s := range p.steps {
		kind := "<nil>"
		if s.op != nil {
			kind = s.op.Kind()
		}
		out[i] = OperationInfo{Name: s.name, Kind: kind}
	}
	return out
}

// Snapshot is a saved copy of the Operation Set.
type Snapshot struct {
	steps []step
}

func (s Snapshot) Len() int { return len(s.steps) }

func (p *Pipeline) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{steps: append([]step(nil), p.steps...)}
}

// Restore replaces the Operation Set with a previously taken Snapshot.
func (p *Pipeline) Restore(s Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append([]step(nil), s.steps...)
	p.index = make(map[string]int, len(p.steps))
	for i, st := range p.steps {
		p.index[st.name] = i
	}
	p.rev++
}

// Run folds the Dataset through every registered operation in registration
// order, skipping the names in exclude. A nil or empty exclude runs them all.
// Every call recomputes from a copy of the Dataset, so callers may modify the
// returned sequence freely.
func (p *Pipeline) Run(ctx context.Context, exclude []string) (Result, error) {
	res, _, err := p.RunAt(ctx, exclude)
	return res, err
}

// RunAt is Run that also reports the Revision the result was computed at.
// The Dataset, the Operation Set and the revision are read under one lock.
func (p *Pipeline) RunAt(ctx context.Context, exclude []string) (Result, uint64, error) {
	skip := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		if name == "" {
			return nil, 0, fmt.Errorf("%w: empty operation name", ErrInvalidSelection)
		}
		skip[name] = struct{}{}
	}

	p.mu.RLock()
	data, rev := p.data.Clone(), p.rev
	steps := make([]step, 0, len(p.steps))
	for _, s := range p.steps {
		if _, ok := skip[s.name]; !ok {
			steps = append(steps, s)
		}
	}
	log, strict := p.log, p.strict
	p.mu.RUnlock()

	res, err := fold(ctx, env{log: log, strict: strict}, data, steps)
	if err != nil {
		return nil, 0, err
	}
	return res, rev, nil
}

// RunSelection is Run with a JSON-encoded exclusion list; see ParseSelection.
func (p *Pipeline) RunSelection(ctx context.Context, raw []byte) (Result, error) {
	exclude, err := ParseSelection(raw)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, exclude)
}

// Fold applies ops to in without touching any registered Operation Set.
// It uses the pipeline's logger and shape policy.
func (p *Pipeline) Fold(ctx context.Context, in Result, ops ...Operation) (Result, error) {
	p.mu.RLock()
	e := env{log: p.log, strict: p.strict}
	p.mu.RUnlock()
	steps := make([]step, len(ops))
	for i, op := range ops {
		steps[i] = step{name: fmt.Sprintf("#%d", i), op: op}
	}
	return fold(ctx, e, in, steps)
}

func fold(ctx context.Context, e env, in Result, steps []step) (Result, error) {
	cur := in
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.op == nil {
			continue
		}
		e.op = s.name
		out, err := s.op.Apply(withEnv(ctx, e), cur)
		if err != nil {
			return nil, fmt.Errorf("operation %q: %w", s.name, err)
		}
		cur = out
	}
	return cur, nil
}

// ParseSelection decodes an exclusion list: JSON null (or no input) means no
// exclusions, otherwise it must be an array of non-empty strings.
func ParseSelection(raw []byte) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] != '[' {
		return nil, fmt.Errorf("%w: expected null or an array of names", ErrInvalidSelection)
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSelection, err)
	}
	for _, n := range names {
		if n == "" {
			return nil, fmt.Errorf("%w: empty operation name", ErrInvalidSelection)
		}
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}
