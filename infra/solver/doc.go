// Package solver provides the pure-Go MILP backend registered as "bnb".
//
// The search is best-first branch-and-bound with diving: after a branch the
// child nearest to the relaxed value is solved next and its sibling is
// queued by bound. With the default dual engine the root box is presolved
// by activity-bound propagation, rows that can no longer bind are dropped
// and every node LP is solved by a bounded dual simplex warm-started from
// its parent's basis. Once an incumbent exists, the reduced costs of a node
// LP tighten the integer bounds its children inherit. The simplex engine
// solves each node with the gonum simplex instead and also serves as the
// fallback when the dual simplex gives up on a node. A run of degenerate
// dual pivots switches the node LP to Bland's rule so it cannot cycle.
//
// The backend proves days of the three-pump farm optimal in well under a
// second. The tree grows quickly with the fleet: from five or six pumps a
// day often reaches the time limit and is returned as Feasible with a gap.
// Configure solver.type "highs" for such fleets.
//
// The HiGHS backend lives in the highs subpackage behind a build tag.
package solver
