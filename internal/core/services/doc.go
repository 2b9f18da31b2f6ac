// Package services implements the backfill engine and the driving port
// interfaces. Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// Every service is constructed explicitly with its collaborators; none
// of them keeps package-level state.
package services
