package contrast

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Engine manages the CEL environment and screen compilation/evaluation for
// one project. Thread-safe: compiled programs sit behind an RWMutex so
// concurrent screening never blocks on compilation of unrelated screens.
type Engine struct {
	env      *cel.Env
	store    ScreenStore
	cache    ScreensCache           // cache for active screens list
	programs map[string]cel.Program // screenID -> compiled program
	mu       sync.RWMutex
}

// screenEnv declares the variables a screen expression may reference. The
// comparison record has a fixed shape, so unlike a user-defined schema these
// declarations are typed rather than dynamic; `model` carries free-form
// metadata about the summary the comparison came from.
func screenEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("base", cel.StringType),
		cel.Variable("comparison", cel.StringType),
		cel.Variable("estimate", cel.DoubleType),
		cel.Variable("pooledSE", cel.DoubleType),
		cel.Variable("lower", cel.DoubleType),
		cel.Variable("upper", cel.DoubleType),
		cel.Variable("width", cel.DoubleType),
		cel.Variable("level", cel.DoubleType),
		cel.Variable("model", cel.DynType),
	)
}

// NewEngine creates a screens engine backed by the given store and compiles
// all active screens up front.
func NewEngine(store ScreenStore) (*Engine, error) {
	env, err := screenEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	en := &Engine{
		env:      env,
		store:    store,
		cache:    NewInMemoryScreensCache(DefaultCacheConfig()),
		programs: make(map[string]cel.Program),
	}

	if err := en.CompileAllScreens(); err != nil {
		return nil, fmt.Errorf("failed to compile screens: %w", err)
	}

	return en, nil
}

// CompileScreen compiles a single screen expression to a CEL program and
// caches it. A cost limit guards against runaway expressions; tracing is
// enabled so results can carry an evaluation trace.
func (en *Engine) CompileScreen(screenID, expression string) error {
	ast, issues := en.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := en.env.Program(ast,
		cel.EvalOptions(cel.OptTrackState),
		cel.CostLimit(1000000),
	)
	if err != nil {
		return fmt.Errorf("program creation error: %w", err)
	}

	en.mu.Lock()
	en.programs[screenID] = prog
	en.mu.Unlock()

	return nil
}

// screenVars flattens a comparison (and its source summary's metadata) into
// the activation a screen program evaluates against.
func screenVars(cmp *Comparison, model *ModelSummary) map[string]any {
	vars := map[string]any{
		"base":       cmp.Base,
		"comparison": cmp.Comparison,
		"estimate":   cmp.Estimate,
		"pooledSE":   cmp.PooledSE,
		"lower":      cmp.Lower,
		"upper":      cmp.Upper,
		"width":      cmp.Width(),
		"level":      cmp.Level,
	}

	meta := map[string]any{}
	if model != nil {
		meta["id"] = model.ID
		meta["name"] = model.Name
		meta["family"] = model.Family
	}
	vars["model"] = meta

	return vars
}

// Screen evaluates a single screen against one comparison. Non-boolean
// expression results are treated as no-match; evaluation errors are captured
// on the result as well as returned.
func (en *Engine) Screen(screenID string, cmp *Comparison, model *ModelSummary) (*ScreenResult, error) {
	screen, err := en.store.Get(screenID)
	if err != nil {
		return nil, err
	}
	return en.screen(screen, cmp, model)
}

// screen evaluates an already-loaded screen, touching only the compiled
// program cache. Keeping the store out of this path matters for ScreenAll:
// against the Postgres store every read is a query, and an all-pairs request
// runs the screens once per pair.
func (en *Engine) screen(sc *Screen, cmp *Comparison, model *ModelSummary) (*ScreenResult, error) {
	en.mu.RLock()
	prog, exists := en.programs[sc.ID]
	en.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("screen %s is not compiled", sc.ID)
	}

	out, details, err := prog.Eval(screenVars(cmp, model))
	if err != nil {
		return &ScreenResult{
			ScreenID:   sc.ID,
			ScreenName: sc.Name,
			Matched:    false,
			Error:      err,
		}, err
	}

	matched := false
	if boolVal, ok := out.Value().(bool); ok {
		matched = boolVal
	}

	return &ScreenResult{
		ScreenID:   sc.ID,
		ScreenName: sc.Name,
		Matched:    matched,
		Trace:      details.State(),
	}, nil
}

// ScreenAll evaluates every active screen against one comparison, working
// entirely from the cached screen list so no store reads happen per screen.
// A screen that fails to evaluate contributes a result carrying its error;
// the other screens still run.
func (en *Engine) ScreenAll(cmp *Comparison, model *ModelSummary) ([]*ScreenResult, error) {
	screens := en.cache.Get()
	if screens == nil {
		var err error
		screens, err = en.store.ListActive()
		if err != nil {
			return nil, err
		}
		en.cache.Set(screens)
	}

	results := make([]*ScreenResult, 0, len(screens))
	for _, sc := range screens {
		result, err := en.screen(sc, cmp, model)
		if err != nil && result == nil {
			result = &ScreenResult{
				ScreenID:   sc.ID,
				ScreenName: sc.Name,
				Error:      err,
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// CompileAllScreens compiles all active screens from the store and primes
// the cache with the active list.
func (en *Engine) CompileAllScreens() error {
	screens, err := en.store.ListActive()
	if err != nil {
		return err
	}

	for _, screen := range screens {
		if err := en.CompileScreen(screen.ID, screen.Expression); err != nil {
			return fmt.Errorf("failed to compile screen %s: %w", screen.ID, err)
		}
	}

	en.cache.Set(screens)

	return nil
}

// AddScreen validates that the screen compiles, then stores it. If the
// store write fails the compiled program is removed again so the engine
// never serves a screen the store does not know about.
func (en *Engine) AddScreen(s *Screen) error {
	if _, err := en.store.Get(s.ID); err == nil {
		return fmt.Errorf("screen with ID %s already exists", s.ID)
	}

	if err := en.CompileScreen(s.ID, s.Expression); err != nil {
		return fmt.Errorf("screen validation failed: %w", err)
	}

	if err := en.store.Add(s); err != nil {
		en.mu.Lock()
		delete(en.programs, s.ID)
		en.mu.Unlock()
		return err
	}

	en.cache.Invalidate()

	return nil
}

// UpdateScreen validates the new expression, recompiles, and updates the
// store.
func (en *Engine) UpdateScreen(s *Screen) error {
	if err := en.CompileScreen(s.ID, s.Expression); err != nil {
		return fmt.Errorf("screen validation failed: %w", err)
	}

	if err := en.store.Update(s); err != nil {
		return err
	}

	en.cache.Invalidate()

	return nil
}

// DeleteScreen removes a screen from the store and drops its compiled
// program.
func (en *Engine) DeleteScreen(id string) error {
	if err := en.store.Delete(id); err != nil {
		return err
	}

	en.mu.Lock()
	delete(en.programs, id)
	en.mu.Unlock()

	en.cache.Invalidate()

	return nil
}
