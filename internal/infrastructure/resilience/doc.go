/*
Package resilience implements a circuit breaker for calls to unreliable
dependencies, used to guard requests to the frontend bridge endpoint.

The breaker starts closed and passes requests through. When the
ReadyToTrip predicate fires on accumulated failures it opens, failing
calls immediately with ErrCircuitOpen. After Timeout it lets a limited
number of probe requests through (half-open); enough consecutive
successes close it again, any failure re-opens it.

	breaker := resilience.New("frontend", resilience.Settings{
		Timeout: 30 * time.Second,
	})
	result, err := breaker.Execute(func() (interface{}, error) {
		return client.Call()
	})
*/
package resilience
