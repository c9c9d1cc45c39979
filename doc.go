// Package slotpool provides replicated allocation of a fixed-size slot
// pool across the members of a shared session.
//
// Each joining member is assigned one slot from a pool of N numbered
// slots; each slot is owned by at most one member. A single replica, the
// coordinator, is authoritative for mutations; every replica receives
// whole-table snapshots and reconciles them into typed assign/unassign
// events. Coordinator identity can change at runtime without notice, and
// a verification sweep repairs any drift the handoff left behind.
//
// # Quick Start
//
//	import "github.com/arloliu/slotpool"
//
//	cfg := slotpool.Config{SlotCount: 64}
//
//	sess, err := slotpool.NewSession(&cfg, roster, transport)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := sess.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Stop(context.Background())
//
//	unregister := sess.RegisterListener(myAssigner)
//	defer unregister()
//
// The roster and transport collaborators answer "who is present" and
// "how do snapshots move"; NATS JetStream KV backed implementations live
// in the roster and transport subpackages, and test fakes in the
// slotpooltest package.
//
// # Key Properties
//
//   - Each member owns at most one slot; each slot at most one owner
//   - Free slots are reused in FIFO order via an O(1) circular queue
//   - Publishes are debounced: a burst of joins within one interval
//     yields a single snapshot carrying the converged table
//   - Unassign events always precede the reassign of the same slot, so a
//     resource is never observed as doubly owned
//   - Snapshots referencing locally unknown members are deferred and
//     retried once the member's join arrives; no event fires twice
//   - A newly promoted coordinator cross-checks table against roster and
//     repairs orphaned slots and un-slotted members
//
// # Architecture
//
// All session state is confined to one run loop goroutine. Roster and
// transport callbacks are marshaled onto the loop, mutation and
// reconciliation run to completion between events, and the only timing
// primitives are the debounce and settle-delay timers. Convergence
// between replicas relies on idempotent, order-tolerant reconciliation
// of whole-table snapshots, not on cross-replica locking.
package slotpool
