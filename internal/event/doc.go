// Package event provides the synchronous pub-sub bus that decouples the
// floor controller, the pattern coordinator, the barrier manager, and any
// observers (CLI, transports) from one another.
//
// Events follow a "category.action" naming convention:
//
//	floor.requested        a participant asked for the floor
//	floor.granted          the floor changed hands
//	floor.released         the holder yielded or was revoked
//	floor.timeout          a grant deadline expired
//	floor.deadlock         the detector found a stuck floor
//	floor.reset            an emergency reset cleared all floor state
//	participant.registered / .unregistered / .degraded / .restored
//	task.created / .status_changed
//	thread.completed
//	sync.fired             a barrier's completion policy was satisfied
//	context.preserved      a shared-context write was broadcast
//
// Handlers are invoked synchronously in registration order. A panicking
// handler is recovered and logged so it cannot block delivery to the
// remaining handlers. Publishers must not assume handlers have finished
// any asynchronous work of their own.
package event
