// Package types provides core data types for the stayridge storage layer.
package types

// RecordID is a monotonically increasing identifier scoped to a single partition.
// The first record appended to a partition receives ID 1.
type RecordID uint64

// Record is a denormalized booking row. All fields needed for filtering and
// sorting are carried on the record itself; joins to other entities happen in
// the layer above this store.
type Record struct {
	// BookingRef is the 16-byte UUID assigned to the booking
	BookingRef []byte `json:"booking_ref"`

	// PropertyID identifies the property being booked
	PropertyID int64 `json:"property_id"`

	// GuestID identifies the guest who made the booking
	GuestID int64 `json:"guest_id"`

	// StartDate is the Unix timestamp (nanoseconds) of check-in.
	// This is the partition key.
	StartDate int64 `json:"start_date"`

	// EndDate is the Unix timestamp (nanoseconds) of check-out
	EndDate int64 `json:"end_date"`

	// Status is the booking status (e.g., "pending", "confirmed", "canceled")
	Status string `json:"status"`

	// NightlyRate is the agreed per-night rate, denormalized from payments
	NightlyRate float64 `json:"nightly_rate"`

	// Payload carries booking-specific data, compressed with Snappy in the WAL
	Payload map[string]interface{} `json:"payload"`
}

// PartitionKeyField is the name of the field records are partitioned by.
const PartitionKeyField = "start_date"

// IndexableFields lists the fields secondary indexes may be declared over.
var IndexableFields = []string{"start_date", "end_date", "status", "guest_id", "property_id"}

// Field returns the value of the named field and whether the field exists.
// Only fields usable in predicates and indexes are addressable by name;
// the payload is opaque to the storage layer.
func (r Record) Field(name string) (interface{}, bool) {
	switch name {
	case "booking_ref":
		return r.BookingRef, true
	case "property_id":
		return r.PropertyID, true
	case "guest_id":
		return r.GuestID, true
	case "start_date":
		return r.StartDate, true
	case "end_date":
		return r.EndDate, true
	case "status":
		return r.Status, true
	case "nightly_rate":
		return r.NightlyRate, true
	}
	return nil, false
}

// IsIndexable reports whether the named field may carry a secondary index.
func IsIndexable(name string) bool {
	for _, f := range IndexableFields {
		if f == name {
			return true
		}
	}
	return false
}
