// Package bus implements the in-process event registry eventkit builds
// everything else on: typed descriptors, match expressions, and a
// context that dispatches emissions to registered listeners in order.
package bus

// FlowDirection tags a descriptor with the direction a transport adapter
// observed it travelling, so an adapter can avoid re-publishing a frame
// it just delivered inbound.
type FlowDirection int

const (
	FlowUnspecified FlowDirection = iota
	FlowInbound
	FlowOutbound
)

func (f FlowDirection) String() string {
	switch f {
	case FlowInbound:
		return "inbound"
	case FlowOutbound:
		return "outbound"
	default:
		return "unspecified"
	}
}

// Descriptor identifies a logical message on the bus. Two descriptors
// are equal iff their IDs match; Kind and Flow are metadata used by
// predicate matchers (e.g. "every invoke-shaped descriptor") and by
// transport adapters, never by equality.
type Descriptor struct {
	ID   string
	Kind string
	Flow FlowDirection
}

// WithFlow returns a copy of d tagged with the given flow direction.
func (d Descriptor) WithFlow(flow FlowDirection) Descriptor {
	d.Flow = flow
	return d
}

// EventDescriptor is a compile-time-typed handle on a Descriptor. The
// type parameter never appears at runtime and only annotates the
// intended payload type; Emit and On take the embedded Descriptor and
// deliver Body as any, so listeners still type-assert it.
type EventDescriptor[T any] struct {
	Descriptor
}

// Define creates an event descriptor for the given tag. Re-invoking
// Define with the same tag yields descriptors that compare equal on ID;
// descriptors are cheap to create and compare.
func Define[T any](tag string) EventDescriptor[T] {
	return EventDescriptor[T]{Descriptor{ID: tag, Kind: "event"}}
}
