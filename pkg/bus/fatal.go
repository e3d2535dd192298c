package bus

// FatalError is the payload carried by a descriptor registered as a
// fatal source via RegisterFatalSource.
type FatalError struct {
	Err error
}

// RegisterFatalSource arms m as a fatal-transport source: whenever an
// emission matching m occurs, every function previously registered via
// OnFatal runs with the error extracted from the envelope body (which
// must be a FatalError, or any error — both are accepted). Registration
// is additive: calling this more than once adds further fatal sources,
// it does not replace earlier ones.
func (c *Context) RegisterFatalSource(m Match) {
	c.mu.Lock()
	c.fatalSource = append(c.fatalSource, m)
	c.mu.Unlock()

	c.On(m, func(env Envelope, _ EmitOptions) {
		err := extractError(env.Body)
		c.mu.Lock()
		fns := append([]func(error){}, c.fatalFns...)
		c.mu.Unlock()
		for _, fn := range fns {
			fn(err)
		}
	})
}

func extractError(body any) error {
	switch v := body.(type) {
	case FatalError:
		return v.Err
	case error:
		return v
	default:
		return nil
	}
}

// OnFatal registers fn to run whenever any registered fatal source
// fires. Used internally by pkg/invoke to reject every pending call on
// this context; exposed publicly so other long-lived per-context state
// (e.g. a remote-methods dispatcher) can hook the same signal.
func (c *Context) OnFatal(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fatalFns = append(c.fatalFns, fn)
}
