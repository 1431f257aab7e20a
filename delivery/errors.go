package delivery

import "errors"

// errQueueFull is returned by MemQueue.Enqueue when the bounded channel is
// full. It is not part of the SDK's error taxonomy (spec §7 doesn't name a
// queue-full condition) since it's a local backpressure signal, not a
// delivery outcome the server ever sees.
var errQueueFull = errors.New("delivery: in-memory queue is full, record dropped")
