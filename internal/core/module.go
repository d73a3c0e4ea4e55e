// Package core is the contract between the session runner and the modules it
// drives.
//
// A Builder is registered once per process and carries the module's params.
// For every session the runner calls Init on each builder; a nil Module
// declines activation for that session. The runner then feeds events to
// OnEvent one at a time and calls OnDestroy when the participant leaves the
// signaling room.
package core

// Builder materializes a Module for one session.
type Builder interface {
	Namespace() string
	Init(ctx *InitContext) (Module, error)
}

// Module is the per-session instance. It is only ever called from the
// owning runner's goroutine.
type Module interface {
	Namespace() string
	OnEvent(ctx *ModuleContext, ev Event) error
	OnDestroy(ctx *DestroyContext) error
}

// Slot is filled by a module with frontend data while handling Joined,
// ParticipantJoined and ParticipantUpdated. A nil Value is omitted.
type Slot struct {
	Value any
}

func (s *Slot) Set(v any) {
	if s != nil {
		s.Value = v
	}
}
