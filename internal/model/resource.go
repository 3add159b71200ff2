package model

import "time"

// Resource is a lendable item (projector, tent, chairs) owned by one
// padalinys.  Capacity is the number of identical units available.
type Resource struct {
	ID           string     // resources.id (UUID)
	Name         string     // resources.name
	Description  string     // resources.description
	Location     string     // resources.location
	Capacity     int        // resources.capacity
	PadalinysID  uint64     // resources.padalinys_id
	IsReservable bool       // resources.is_reservable
	CreatedAt    time.Time  // resources.created_at
	UpdatedAt    time.Time  // resources.updated_at
	DeletedAt    *time.Time // resources.deleted_at (nullable)
}

// Padalinys is a tenant: a student-union unit that owns resources.
type Padalinys struct {
	ID        uint64    // padaliniai.id
	Shortname string    // padaliniai.shortname
	Fullname  string    // padaliniai.fullname
	Alias     string    // padaliniai.alias
	CreatedAt time.Time // padaliniai.created_at
	UpdatedAt time.Time // padaliniai.updated_at
}
