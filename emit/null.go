package emit

// NullEmitter discards every event. Useful when observability overhead is
// unwanted, or as the default in tests that don't assert on the event
// stream.
type NullEmitter struct{}

func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

func (n *NullEmitter) Emit(Event) {}
