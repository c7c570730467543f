package emit

// NullEmitter discards every event. It is the default when no emitter is
// configured, so engine code never has to nil-check.
type NullEmitter struct{}

// NewNullEmitter returns the discarding emitter.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit implements Emitter.
func (*NullEmitter) Emit(Event) {}
