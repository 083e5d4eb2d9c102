package audience

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/liamcoop/audiences/internal/logger"
	"github.com/liamcoop/audiences/schema"
	"github.com/liamcoop/audiences/segment"
)

// Options tune how an Engine scans its population.
type Options struct {
	// Workers is the number of goroutines used for large scans.
	Workers int
	// ParallelThreshold is the population size from which scans run in
	// parallel. Zero always scans in parallel.
	ParallelThreshold int
	// Cache configures the audience list cache.
	Cache CacheConfig
}

func DefaultOptions() Options {
	return Options{
		Workers:           4,
		ParallelThreshold: 10000,
		Cache:             DefaultCacheConfig(),
	}
}

// Engine evaluates and maintains the audiences of one tenant. It owns the
// schema the audiences are built against, the compiled CEL program of
// every audience and a cache of the audience list.
type Engine struct {
	schema    *schema.Schema
	builder   *segment.Builder
	env       *cel.Env
	audiences AudienceStore
	customers CustomerStore
	cache     AudiencesCache
	opts      Options
	programs  map[string]cel.Program // audienceID -> compiled expression
	clock     func() time.Time
	mu        sync.RWMutex
}

// NewEngine creates an engine and compiles every stored audience against s.
func NewEngine(s *schema.Schema, audiences AudienceStore, customers CustomerStore, opts Options) (*Engine, error) {
	env, err := segment.NewCELEnv()
	if err != nil {
		return nil, err
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	en := &Engine{
		schema:    s,
		builder:   segment.NewBuilder(s),
		env:       env,
		audiences: audiences,
		customers: customers,
		cache:     NewInMemoryAudiencesCache(opts.Cache),
		opts:      opts,
		programs:  make(map[string]cel.Program),
		clock:     time.Now,
	}

	if err := en.CompileAllAudiences(); err != nil {
		return nil, fmt.Errorf("failed to compile audiences: %w", err)
	}

	return en, nil
}

// SetClock replaces the clock relative time windows are resolved against.
func (en *Engine) SetClock(clock func() time.Time) {
	en.mu.Lock()
	en.clock = clock
	en.mu.Unlock()
}

func (en *Engine) Schema() *schema.Schema {
	return en.schema
}

func (en *Engine) Customers() CustomerStore {
	return en.customers
}

func (en *Engine) evaluator() *segment.Evaluator {
	en.mu.RLock()
	defer en.mu.RUnlock()
	return segment.NewEvaluator(en.clock())
}

// CompileExpression compiles a CEL expression against the audience
// environment with a cost limit.
func (en *Engine) CompileExpression(expression string) (cel.Program, error) {
	ast, issues := en.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := en.env.Program(ast,
		cel.EvalOptions(cel.OptTrackState),
		cel.CostLimit(1000000),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

// conditions returns the tree a is evaluated with. Audiences edited through
// sections are rebuilt against the current schema.
func (en *Engine) conditions(a *Audience) *segment.ConditionGroup {
	if len(a.Sections) > 0 {
		return en.builder.Build(a.Sections)
	}
	if a.Conditions == nil {
		return segment.MatchEveryone()
	}
	return a.Conditions
}

// prepare rebuilds the conditions of a from its sections and exports them
// to CEL. Export failures are logged and leave the expression empty.
func (en *Engine) prepare(a *Audience) cel.Program {
	a.Conditions = en.conditions(a)

	expr, err := segment.ToCEL(a.Conditions)
	if err != nil {
		logger.WarnExpression("Failed to export audience conditions", "audience_id", a.ID, "error", err)
		a.Expression = ""
		return nil
	}

	prog, err := en.CompileExpression(expr)
	if err != nil {
		logger.WarnExpression("Failed to compile audience expression", "audience_id", a.ID, "error", err)
		a.Expression = ""
		return nil
	}

	a.Expression = expr
	return prog
}

func (en *Engine) setProgram(id string, prog cel.Program) {
	en.mu.Lock()
	defer en.mu.Unlock()
	if prog == nil {
		delete(en.programs, id)
		return
	}
	en.programs[id] = prog
}

// CompileAllAudiences rebuilds and compiles every stored audience and
// populates the audience cache. Audiences whose definition changed, after a
// schema swap for instance, are written back to the store.
func (en *Engine) CompileAllAudiences() error {
	audiences, err := en.audiences.List()
	if err != nil {
		return err
	}

	for _, a := range audiences {
		before, expr := definitionJSON(a.Conditions), a.Expression
		en.setProgram(a.ID, en.prepare(a))
		if a.Expression == expr && bytes.Equal(before, definitionJSON(a.Conditions)) {
			continue
		}
		if err := en.audiences.Update(a); err != nil {
			return fmt.Errorf("failed to store rebuilt audience %s: %w", a.ID, err)
		}
		logger.Debug("Audience definition rebuilt", "audience_id", a.ID)
	}

	en.cache.Set(audiences)
	return nil
}

func definitionJSON(g *segment.ConditionGroup) []byte {
	data, err := json.Marshal(g)
	if err != nil {
		return nil
	}
	return data
}

// Preview reports the size the given sections would have without saving
// anything.
func (en *Engine) Preview(ctx context.Context, sections []segment.Section) (*Preview, error) {
	group := en.builder.Build(sections)

	customers, err := en.customers.List()
	if err != nil {
		return nil, err
	}
	size, err := en.scan(ctx, customers, group)
	if err != nil {
		return nil, err
	}

	p := &Preview{
		Size:       size,
		Total:      len(customers),
		Conditions: group,
		Summary:    make([]string, 0, len(sections)),
	}
	if expr, err := segment.ToCEL(group); err == nil {
		p.Expression = expr
	} else {
		logger.WarnExpression("Failed to export preview conditions", "error", err)
	}
	for _, sec := range sections {
		p.Summary = append(p.Summary, segment.SectionSummary(sec))
	}
	return p, nil
}

// EvaluateConditions counts the customers matching a hand-written tree.
func (en *Engine) EvaluateConditions(ctx context.Context, group *segment.ConditionGroup) (int, error) {
	customers, err := en.customers.List()
	if err != nil {
		return 0, err
	}
	return en.scan(ctx, customers, group)
}

func (en *Engine) scan(ctx context.Context, customers []segment.Customer, group *segment.ConditionGroup) (int, error) {
	logger.CountScan()
	ev := en.evaluator()
	if en.opts.Workers > 1 && len(customers) >= en.opts.ParallelThreshold {
		return ev.SizeParallel(ctx, customers, group, en.opts.Workers)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return ev.Size(customers, group), nil
}

// AddAudience validates, sizes and stores a new audience.
func (en *Engine) AddAudience(ctx context.Context, a *Audience) error {
	if _, err := en.audiences.Get(a.ID); err == nil {
		return fmt.Errorf("audience with ID %s already exists", a.ID)
	}
	if a.Status == "" {
		a.Status = StatusDraft
	}
	if err := a.Validate(); err != nil {
		return fmt.Errorf("audience validation failed: %w", err)
	}

	prog := en.prepare(a)
	size, err := en.EvaluateConditions(ctx, a.Conditions)
	if err != nil {
		return err
	}
	a.Size = size
	if a.Status == StatusPublished && a.PublishedAt == nil {
		now := en.now()
		a.PublishedAt = &now
	}

	if err := en.audiences.Add(a); err != nil {
		return err
	}
	en.setProgram(a.ID, prog)
	en.cache.Invalidate()

	logger.Info("Audience created", "audience_id", a.ID, "size", a.Size)
	return nil
}

// UpdateAudience replaces an audience and resizes it. Publishing stamps
// PublishedAt the first time only.
func (en *Engine) UpdateAudience(ctx context.Context, a *Audience) error {
	existing, err := en.audiences.Get(a.ID)
	if err != nil {
		return err
	}
	if a.Status == "" {
		a.Status = existing.Status
	}
	if err := a.Validate(); err != nil {
		return fmt.Errorf("audience validation failed: %w", err)
	}

	prog := en.prepare(a)
	size, err := en.EvaluateConditions(ctx, a.Conditions)
	if err != nil {
		return err
	}
	a.Size = size

	a.PublishedAt = existing.PublishedAt
	if a.Status == StatusPublished && a.PublishedAt == nil {
		now := en.now()
		a.PublishedAt = &now
	}

	if err := en.audiences.Update(a); err != nil {
		return err
	}
	en.setProgram(a.ID, prog)
	en.cache.Invalidate()

	return nil
}

func (en *Engine) DeleteAudience(id string) error {
	if err := en.audiences.Delete(id); err != nil {
		return err
	}
	en.setProgram(id, nil)
	en.cache.Invalidate()
	return nil
}

func (en *Engine) GetAudience(id string) (*Audience, error) {
	return en.audiences.Get(id)
}

// ListAudiences returns every audience, served from the cache when valid.
func (en *Engine) ListAudiences() ([]*Audience, error) {
	if cached := en.cache.Get(); cached != nil {
		return cached, nil
	}

	audiences, err := en.audiences.List()
	if err != nil {
		return nil, err
	}
	en.cache.Set(audiences)
	return audiences, nil
}

// Recalculate recomputes and stores the size of one audience.
func (en *Engine) Recalculate(ctx context.Context, id string) (*Audience, error) {
	a, err := en.audiences.Get(id)
	if err != nil {
		return nil, err
	}

	cond := en.conditions(a)
	size, err := en.EvaluateConditions(ctx, cond)
	if err != nil {
		return nil, err
	}
	if size == a.Size {
		return a, nil
	}

	updated := *a
	updated.Conditions = cond
	updated.Size = size
	if err := en.audiences.Update(&updated); err != nil {
		return nil, err
	}
	en.cache.Invalidate()
	return &updated, nil
}

// RecalculateAll recomputes every audience against one snapshot of the
// population. It stops at the first error.
func (en *Engine) RecalculateAll(ctx context.Context) ([]*Audience, error) {
	audiences, err := en.audiences.List()
	if err != nil {
		return nil, err
	}
	customers, err := en.customers.List()
	if err != nil {
		return nil, err
	}

	out := make([]*Audience, 0, len(audiences))
	changed := false
	for _, a := range audiences {
		cond := en.conditions(a)
		size, err := en.scan(ctx, customers, cond)
		if err != nil {
			return nil, fmt.Errorf("failed to recalculate audience %s: %w", a.ID, err)
		}
		if size != a.Size {
			updated := *a
			updated.Conditions = cond
			updated.Size = size
			if err := en.audiences.Update(&updated); err != nil {
				return nil, err
			}
			a = &updated
			changed = true
		}
		out = append(out, a)
	}

	if changed {
		en.cache.Invalidate()
	}
	logger.Info("Recalculated audiences", "count", len(out), "customers", len(customers))
	return out, nil
}

// Members returns the customers currently in an audience, at most limit of
// them when limit is positive.
func (en *Engine) Members(ctx context.Context, id string, limit int) ([]segment.Customer, error) {
	a, err := en.audiences.Get(id)
	if err != nil {
		return nil, err
	}
	customers, err := en.customers.List()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	members := en.evaluator().Filter(customers, en.conditions(a))
	if limit > 0 && len(members) > limit {
		members = members[:limit]
	}
	return members, nil
}

// Match tests one customer against every audience. Audiences whose
// compiled expression fails still report the evaluator's result.
func (en *Engine) Match(customer segment.Customer) ([]*MatchResult, error) {
	audiences, err := en.ListAudiences()
	if err != nil {
		return nil, err
	}

	ev := en.evaluator()
	activation := segment.CELActivation(customer, ev.Now())

	results := make([]*MatchResult, 0, len(audiences))
	for _, a := range audiences {
		r := &MatchResult{
			AudienceID:   a.ID,
			AudienceName: a.Name,
			Matched:      ev.Evaluate(customer, a.Conditions),
		}

		en.mu.RLock()
		prog, ok := en.programs[a.ID]
		en.mu.RUnlock()

		if ok {
			out, _, err := prog.Eval(activation)
			if err != nil {
				r.Error = err
			} else if b, ok := out.Value().(bool); ok {
				r.ExpressionMatched = &b
			}
		}
		results = append(results, r)
	}
	return results, nil
}

func (en *Engine) now() time.Time {
	en.mu.RLock()
	defer en.mu.RUnlock()
	return en.clock()
}
