// Package aggregator is the single consumer of the event queue.
//
// On every cadence tick it drains the queue, folds each event into the registry, hands the
// batch to the sinks and the activity feed, and re-evaluates the privacy rules. When the
// context is cancelled or the queue is closed, one final drain applies whatever was already
// queued before Run returns.
//
//	decoders ──► Queue ──(tick)──► Registry.Upsert ──► rules.Engine.Evaluate
//	                                    │
//	                                    ├──► Sinks (NATS, ...)
//	                                    └──► ActivityFeed
package aggregator
