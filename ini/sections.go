package ini

// Well-known section and key names shared by the Tracker, Delivery Engine,
// and Triggered-Limits Cache. These are the only sections the SDK writes;
// an embedding application may add its own sections to the same file
// without conflict.
const (
	SectionTracker         = "tracker"
	SectionTriggeredLimits = "triggered_limits"
	SectionDelivery        = "delivery"

	KeyTriggeredLimitsPayload = "payload"
	KeyDeliveryDBPath         = "db_path"
	KeyTrackerDeliveryManager = "delivery_manager"
)

// GetDeliveryManager returns the configured delivery strategy name from
// [tracker].delivery_manager, one of "immediate", "mem_queue", or
// "persistent_queue".
func (s *Store) GetDeliveryManager() (string, bool, error) {
	return s.Get(SectionTracker, KeyTrackerDeliveryManager)
}

// SetDeliveryManager records the delivery strategy name under
// [tracker].delivery_manager.
func (s *Store) SetDeliveryManager(name string) error {
	return s.Set(SectionTracker, KeyTrackerDeliveryManager, name)
}

// GetTriggeredLimitsPayload returns the raw JSON envelope stored under
// [triggered_limits].payload, if present.
func (s *Store) GetTriggeredLimitsPayload() (string, bool, error) {
	return s.Get(SectionTriggeredLimits, KeyTriggeredLimitsPayload)
}

// SetTriggeredLimitsPayload overwrites [triggered_limits].payload with the
// given JSON envelope. Envelopes are stored verbatim and fully replaced on
// every call, never merged.
func (s *Store) SetTriggeredLimitsPayload(envelopeJSON string) error {
	return s.Set(SectionTriggeredLimits, KeyTriggeredLimitsPayload, envelopeJSON)
}

// GetDeliveryDBPath returns the configured persistent-queue database path
// from [delivery].db_path, if present.
func (s *Store) GetDeliveryDBPath() (string, bool, error) {
	return s.Get(SectionDelivery, KeyDeliveryDBPath)
}

// SetDeliveryDBPath records the persistent-queue database path under
// [delivery].db_path.
func (s *Store) SetDeliveryDBPath(path string) error {
	return s.Set(SectionDelivery, KeyDeliveryDBPath, path)
}
