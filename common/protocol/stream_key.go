package protocol

// StreamKey identifies a stream within a sync attempt. The zero value is the
// legacy key: state that is not tied to any stream.
type StreamKey struct {
	Name      string
	Namespace string
}

// LegacyStreamKey buckets legacy (untyped) state messages.
var LegacyStreamKey = StreamKey{}

// NewStreamKey builds the key for a descriptor.
func NewStreamKey(d StreamDescriptor) StreamKey {
	return StreamKey{Name: d.Name, Namespace: d.Namespace}
}

// IsLegacy reports whether the key has no stream name.
func (k StreamKey) IsLegacy() bool {
	return k.Name == ""
}

// NamespacePtr returns nil for an empty namespace.
func (k StreamKey) NamespacePtr() *string {
	if k.Namespace == "" {
		return nil
	}
	ns := k.Namespace
	return &ns
}

// Descriptor converts the key back to a descriptor.
func (k StreamKey) Descriptor() StreamDescriptor {
	return StreamDescriptor{Name: k.Name, Namespace: k.Namespace}
}

func (k StreamKey) String() string {
	switch {
	case k.IsLegacy():
		return "<legacy>"
	case k.Namespace == "":
		return k.Name
	default:
		return k.Namespace + "." + k.Name
	}
}
