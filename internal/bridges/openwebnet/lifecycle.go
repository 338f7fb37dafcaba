package openwebnet

// LifecycleParticipant is a thing handler driven by the host.
//
// Initialize attaches the handler and starts whatever it needs; Dispose
// releases it when the host stops; HandleRemoval releases it when the
// thing is deleted. Dispose and HandleRemoval return only after the
// handler stops producing updates.
type LifecycleParticipant interface {
	Initialize() error
	Dispose()
	HandleRemoval()
}

var (
	_ LifecycleParticipant = (*Bridge)(nil)
	_ LifecycleParticipant = (*Device)(nil)
)
