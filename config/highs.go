//go:build highs

package config

// The HiGHS backend is selected with optimizer.solver.type "highs".
import _ "github.com/kilianp07/agriwater/infra/solver/highs"
