package contrast

import (
	"strings"
	"sync"
	"testing"
)

func testComparison() *Comparison {
	return &Comparison{
		Base:       "speciesAdelie",
		Comparison: "speciesGentoo",
		Estimate:   5.0,
		PooledSE:   1.0,
		Lower:      3.04,
		Upper:      6.96,
		Level:      0.95,
	}
}

// TestNewEngine verifies the engine constructor with an empty store.
func TestNewEngine(t *testing.T) {
	engine, err := NewEngine(NewInMemoryScreenStore())
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	if engine == nil {
		t.Fatal("NewEngine() should return non-nil engine")
	}
}

// TestNewEngineCompilesExistingScreens verifies active screens already in
// the store are compiled on construction, inactive ones skipped.
func TestNewEngineCompilesExistingScreens(t *testing.T) {
	store := NewInMemoryScreenStore()

	screens := []*Screen{
		{ID: "screen-1", Name: "Excludes Zero", Expression: `lower > 0.0 || upper < 0.0`, Active: true},
		{ID: "screen-2", Name: "Narrow", Expression: `width < 10.0`, Active: true},
		{ID: "screen-3", Name: "Disabled", Expression: `estimate > 100.0`, Active: false},
	}
	for _, screen := range screens {
		if err := store.Add(screen); err != nil {
			t.Fatalf("Failed to add screen: %v", err)
		}
	}

	engine, err := NewEngine(store)
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}

	result, err := engine.Screen("screen-1", testComparison(), nil)
	if err != nil {
		t.Fatalf("Screen() failed for pre-compiled screen: %v", err)
	}
	if !result.Matched {
		t.Errorf("interval [3.04, 6.96] excludes zero, screen should match")
	}

	if _, err := engine.Screen("screen-3", testComparison(), nil); err == nil {
		t.Error("inactive screen should not be compiled")
	}
}

// TestCompileScreenInvalidExpression verifies compilation errors surface
// with a descriptive message.
func TestCompileScreenInvalidExpression(t *testing.T) {
	engine, err := NewEngine(NewInMemoryScreenStore())
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}

	cases := []string{
		`estimate >`,          // syntax error
		`unknownVar > 1.0`,    // undeclared variable
		`estimate > "string"`, // type mismatch
	}
	for _, expr := range cases {
		if err := engine.CompileScreen("bad", expr); err == nil {
			t.Errorf("CompileScreen(%q) should fail", expr)
		} else if !strings.Contains(err.Error(), "error") {
			t.Errorf("CompileScreen(%q) error should be descriptive, got: %v", expr, err)
		}
	}
}

// TestScreenEvaluation verifies match and no-match outcomes against a
// comparison's fields.
func TestScreenEvaluation(t *testing.T) {
	store := NewInMemoryScreenStore()
	engine, err := NewEngine(store)
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}

	cases := []struct {
		name    string
		expr    string
		matched bool
	}{
		{"excludes zero", `lower > 0.0 || upper < 0.0`, true},
		{"positive estimate", `estimate > 0.0`, true},
		{"narrow interval", `width < 1.0`, false},
		{"base name", `base == "speciesAdelie"`, true},
		{"level check", `level >= 0.95`, true},
		{"pooled SE bound", `pooledSE > 2.0`, false},
	}

	for i, tc := range cases {
		screen := &Screen{
			ID:         "screen-" + string(rune('a'+i)),
			Name:       tc.name,
			Expression: tc.expr,
			Active:     true,
		}
		if err := engine.AddScreen(screen); err != nil {
			t.Fatalf("AddScreen(%q) failed: %v", tc.name, err)
		}

		result, err := engine.Screen(screen.ID, testComparison(), nil)
		if err != nil {
			t.Fatalf("Screen(%q) failed: %v", tc.name, err)
		}
		if result.Matched != tc.matched {
			t.Errorf("%q: Matched = %v, want %v", tc.name, result.Matched, tc.matched)
		}
	}
}

// TestScreenModelMetadata verifies screens can reference the source
// summary's metadata through the model variable.
func TestScreenModelMetadata(t *testing.T) {
	engine, err := NewEngine(NewInMemoryScreenStore())
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}

	screen := &Screen{
		ID:         "meta-screen",
		Name:       "Mixed Models Only",
		Expression: `model.family == "lmer" && estimate > 0.0`,
		Active:     true,
	}
	if err := engine.AddScreen(screen); err != nil {
		t.Fatalf("AddScreen() failed: %v", err)
	}

	model := &ModelSummary{ID: "m1", Name: "mass ~ species", Family: "lmer"}
	result, err := engine.Screen("meta-screen", testComparison(), model)
	if err != nil {
		t.Fatalf("Screen() failed: %v", err)
	}
	if !result.Matched {
		t.Error("screen should match an lmer model with positive estimate")
	}

	lm := &ModelSummary{ID: "m2", Name: "mass ~ species", Family: "lm"}
	result, err = engine.Screen("meta-screen", testComparison(), lm)
	if err != nil {
		t.Fatalf("Screen() failed: %v", err)
	}
	if result.Matched {
		t.Error("screen should not match an lm model")
	}
}

// TestScreenNonBooleanResult verifies a screen whose expression yields a
// non-boolean value is treated as no-match rather than an error.
func TestScreenNonBooleanResult(t *testing.T) {
	engine, err := NewEngine(NewInMemoryScreenStore())
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}

	screen := &Screen{
		ID:         "numeric-screen",
		Name:       "Numeric",
		Expression: `estimate + 1.0`,
		Active:     true,
	}
	if err := engine.AddScreen(screen); err != nil {
		t.Fatalf("AddScreen() failed: %v", err)
	}

	result, err := engine.Screen("numeric-screen", testComparison(), nil)
	if err != nil {
		t.Fatalf("Screen() failed: %v", err)
	}
	if result.Matched {
		t.Error("non-boolean result should be treated as no-match")
	}
}

// TestAddScreenRejectsInvalid verifies an uncompilable screen never lands
// in the store.
func TestAddScreenRejectsInvalid(t *testing.T) {
	store := NewInMemoryScreenStore()
	engine, err := NewEngine(store)
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}

	screen := &Screen{
		ID:         "broken",
		Name:       "Broken",
		Expression: `lower >`,
		Active:     true,
	}
	if err := engine.AddScreen(screen); err == nil {
		t.Fatal("AddScreen() with invalid expression should fail")
	}

	if _, err := store.Get("broken"); err == nil {
		t.Error("invalid screen should not have been stored")
	}
}

// TestAddScreenDuplicate verifies duplicate IDs are rejected.
func TestAddScreenDuplicate(t *testing.T) {
	engine, err := NewEngine(NewInMemoryScreenStore())
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}

	screen := &Screen{ID: "dup", Name: "First", Expression: `estimate > 0.0`, Active: true}
	if err := engine.AddScreen(screen); err != nil {
		t.Fatalf("first AddScreen() failed: %v", err)
	}

	again := &Screen{ID: "dup", Name: "Second", Expression: `estimate < 0.0`, Active: true}
	if err := engine.AddScreen(again); err == nil {
		t.Error("AddScreen() with duplicate ID should fail")
	}
}

// TestUpdateScreenRecompiles verifies an update swaps in the new program.
func TestUpdateScreenRecompiles(t *testing.T) {
	engine, err := NewEngine(NewInMemoryScreenStore())
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}

	screen := &Screen{ID: "s1", Name: "Positive", Expression: `estimate > 0.0`, Active: true}
	if err := engine.AddScreen(screen); err != nil {
		t.Fatalf("AddScreen() failed: %v", err)
	}

	result, _ := engine.Screen("s1", testComparison(), nil)
	if !result.Matched {
		t.Fatal("original screen should match")
	}

	updated := &Screen{ID: "s1", Name: "Negative", Expression: `estimate < 0.0`, Active: true}
	if err := engine.UpdateScreen(updated); err != nil {
		t.Fatalf("UpdateScreen() failed: %v", err)
	}

	result, err = engine.Screen("s1", testComparison(), nil)
	if err != nil {
		t.Fatalf("Screen() after update failed: %v", err)
	}
	if result.Matched {
		t.Error("updated screen should no longer match a positive estimate")
	}
}

// TestDeleteScreenDropsProgram verifies a deleted screen cannot be
// evaluated.
func TestDeleteScreenDropsProgram(t *testing.T) {
	engine, err := NewEngine(NewInMemoryScreenStore())
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}

	screen := &Screen{ID: "gone", Name: "Gone", Expression: `estimate > 0.0`, Active: true}
	if err := engine.AddScreen(screen); err != nil {
		t.Fatalf("AddScreen() failed: %v", err)
	}

	if err := engine.DeleteScreen("gone"); err != nil {
		t.Fatalf("DeleteScreen() failed: %v", err)
	}

	if _, err := engine.Screen("gone", testComparison(), nil); err == nil {
		t.Error("deleted screen should not evaluate")
	}
}

// TestScreenAll verifies every active screen runs against the comparison
// and results arrive per screen.
func TestScreenAll(t *testing.T) {
	store := NewInMemoryScreenStore()
	engine, err := NewEngine(store)
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}

	toAdd := []*Screen{
		{ID: "s1", Name: "Excludes Zero", Expression: `lower > 0.0 || upper < 0.0`, Active: true},
		{ID: "s2", Name: "Huge Effect", Expression: `estimate > 100.0`, Active: true},
	}
	for _, screen := range toAdd {
		if err := engine.AddScreen(screen); err != nil {
			t.Fatalf("AddScreen(%s) failed: %v", screen.ID, err)
		}
	}

	results, err := engine.ScreenAll(testComparison(), nil)
	if err != nil {
		t.Fatalf("ScreenAll() failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	matched := map[string]bool{}
	for _, res := range results {
		matched[res.ScreenID] = res.Matched
	}
	if !matched["s1"] {
		t.Error("s1 should match")
	}
	if matched["s2"] {
		t.Error("s2 should not match")
	}
}

// countingScreenStore wraps the in-memory store and counts Get calls.
type countingScreenStore struct {
	*InMemoryScreenStore
	gets int
}

func (s *countingScreenStore) Get(id string) (*Screen, error) {
	s.gets++
	return s.InMemoryScreenStore.Get(id)
}

// TestScreenAllUsesCachedScreens verifies batch screening runs from the
// cached screen list without per-screen store reads. Against the Postgres
// store each read is a query, and all-pairs requests run the screens once
// per pair, so reads here multiply into pairs-times-screens queries.
func TestScreenAllUsesCachedScreens(t *testing.T) {
	store := &countingScreenStore{InMemoryScreenStore: NewInMemoryScreenStore()}
	engine, err := NewEngine(store)
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}

	toAdd := []*Screen{
		{ID: "s1", Name: "Excludes Zero", Expression: `lower > 0.0 || upper < 0.0`, Active: true},
		{ID: "s2", Name: "Positive", Expression: `estimate > 0.0`, Active: true},
		{ID: "s3", Name: "Narrow", Expression: `width < 1.0`, Active: true},
	}
	for _, screen := range toAdd {
		if err := engine.AddScreen(screen); err != nil {
			t.Fatalf("AddScreen(%s) failed: %v", screen.ID, err)
		}
	}

	// First call repopulates the cache after the AddScreen invalidations;
	// count store reads across the evaluations that follow.
	if _, err := engine.ScreenAll(testComparison(), nil); err != nil {
		t.Fatalf("ScreenAll() failed: %v", err)
	}
	store.gets = 0

	for i := 0; i < 10; i++ {
		results, err := engine.ScreenAll(testComparison(), nil)
		if err != nil {
			t.Fatalf("ScreenAll() failed: %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("got %d results, want 3", len(results))
		}
	}

	if store.gets != 0 {
		t.Errorf("ScreenAll performed %d store reads, want 0", store.gets)
	}
}

// TestEngineConcurrentScreening verifies concurrent evaluation against the
// RWMutex-guarded program cache.
func TestEngineConcurrentScreening(t *testing.T) {
	engine, err := NewEngine(NewInMemoryScreenStore())
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}

	screen := &Screen{ID: "c1", Name: "Concurrent", Expression: `estimate > 0.0`, Active: true}
	if err := engine.AddScreen(screen); err != nil {
		t.Fatalf("AddScreen() failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := engine.Screen("c1", testComparison(), nil)
			if err != nil {
				t.Errorf("concurrent Screen() failed: %v", err)
				return
			}
			if !result.Matched {
				t.Error("concurrent Screen() should match")
			}
		}()
	}
	wg.Wait()
}
