// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// Services perform no I/O of their own; all infrastructure access
// goes through driven ports.
package services
