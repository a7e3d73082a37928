package bus

import "context"

// disabledBus is the no-op adapter used when distribution is off or the
// startup probe failed. It keeps single-process deployments correct without
// any retry storms against a down dependency.
type disabledBus struct{}

// Disabled returns the permanently unavailable bus.
func Disabled() Bus { return disabledBus{} }

func (disabledBus) Available() bool { return false }

func (disabledBus) Publish(ctx context.Context, channel string, msg any) {}

func (disabledBus) PSubscribe(ctx context.Context, p string, h Handler) {}

func (disabledBus) Close() error { return nil }
