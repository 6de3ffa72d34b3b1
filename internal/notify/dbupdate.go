package notify

// EventDBUpdated is the event type written whenever a process commits a
// change to a profile database, so that any other process holding that
// database open can invalidate its in-memory caches (C6's search cache and
// C9's constitutional cache) rather than waiting out their TTL.
const EventDBUpdated = "db_updated"

// Invalidator is the subset of internal/cache.Cache the db-update bridge
// needs. specFolder equal to GlobalKey invalidates the global entry.
type Invalidator interface {
	InvalidateFolder(specFolder string)
	InvalidateGlobal()
}

// GlobalKey mirrors internal/cache.GlobalKey without importing the cache
// package, keeping notify dependency-free of the component it notifies.
const GlobalKey = "__global__"

// NotifyDBUpdated writes a db_updated marker for specFolder (or GlobalKey
// for a change affecting constitutional memories across every folder).
func NotifyDBUpdated(w *EventWriter, specFolder string) error {
	return w.Notify(EventDBUpdated, specFolder)
}

// BridgeToCache returns an EventWatcher callback that invalidates inv in
// response to db_updated events, ignoring every other event type so the
// same events directory can also carry memory_created/enrichment_* events
// for other subscribers.
func BridgeToCache(inv Invalidator) func(eventType, specFolder string) {
	return func(eventType, specFolder string) {
		if eventType != EventDBUpdated {
			return
		}
		if specFolder == GlobalKey {
			inv.InvalidateGlobal()
			return
		}
		inv.InvalidateFolder(specFolder)
	}
}
