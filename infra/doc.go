// Package infra contains technical adapters such as the branch-and-bound
// solver, MQTT clients, CSV feeds and metrics exporters. These packages
// should depend only on the interfaces defined in the core packages.
package infra
