package models

import "time"

// Folder represents a destination folder owned by a single owner.
// ParentID is nil for an owner's root folder.
type Folder struct {
	ID        string
	OwnerID   string
	ParentID  *string
	Name      string
	CreatedAt time.Time
}
