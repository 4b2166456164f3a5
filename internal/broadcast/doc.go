// Package broadcast provides the event primitives and the fan-out hub that
// pushes job and lead updates to every connected viewer. Delivery is at most
// once per connection; a viewer that cannot receive simply misses the event.
package broadcast
