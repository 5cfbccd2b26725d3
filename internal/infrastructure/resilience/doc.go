/*
Package resilience provides a circuit breaker for calls to a monitor that
may be down.

A Breaker starts closed. Failures inside a window are counted and, once
Settings.Trip says so, the circuit opens and every call fails fast with
ErrCircuitOpen. After the cooldown it admits Settings.Probes calls
(half-open): that many consecutive successes close it, any failure opens
it again.

# Usage

	b := resilience.New("monitor", resilience.Settings{Cooldown: 5 * time.Second})
	snap, err := resilience.Do(b, func() (*Snapshot, error) {
		return fetch(ctx)
	})
*/
package resilience
