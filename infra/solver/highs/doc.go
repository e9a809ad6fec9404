// Package highs registers the "highs" MILP backend, a binding to the HiGHS
// C library. It is compiled with the highs build tag and needs libhighs
// visible to pkg-config:
//
//	go build -tags highs ./...
//
// Without the tag the package is empty and only the pure-Go backend is
// available.
package highs
