// Package scenario provides a multi-step test harness for validating the
// dynamics of the resonance engine.
//
// The harness exercises the real Engine and SQLiteHistoryStore with no mocks.
// Scenarios are Go builders that construct a pre-seeded population, run a
// sequence of steps (mutations followed by ticks), and capture a snapshot
// after each step for property-based assertions.
//
// Each test gets an isolated SQLite database via t.TempDir() and a sandboxed
// HOME so user data is never touched.
//
// Usage:
//
//	func TestIsolatedBasisCollapse(t *testing.T) {
//	    r := scenario.NewRunner(t)
//	    result := r.Run(scenario.Scenario{
//	        Name:     "isolated-basis",
//	        Config:   scenario.Config(4, 0, 1),
//	        Entities: []scenario.EntitySpec{scenario.BasisEntity("a", 2)},
//	        Steps:    scenario.Ticks(1, 1),
//	    })
//	    scenario.AssertCollapsedTo(t, result, "a", 2, 0)
//	}
package scenario
