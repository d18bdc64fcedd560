// Package models contains shared data types used by the server and clients.
package models

import "time"

// RecordType distinguishes files from folders.
type RecordType string

const (
	TypeFile   RecordType = "file"
	TypeFolder RecordType = "folder"
)

// Record is a stored file or folder entry. Hierarchy is flat: each record
// points at its parent by ID, and the tree is reassembled on demand.
type Record struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Name      string     `json:"name"`
	Path      string     `json:"path"`
	Type      RecordType `json:"type"`
	Extension string     `json:"extension,omitempty"`
	Size      int64      `json:"size"`
	ParentID  string     `json:"parent_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsFolder reports whether the record is a folder.
func (r *Record) IsFolder() bool {
	return r.Type == TypeFolder
}

// RecordContent is a file record together with its content.
type RecordContent struct {
	Record
	Content string `json:"content"`
}

// Node is a Record augmented with a materialized list of child Nodes,
// used only for display. Nodes are rebuilt from flat records on every
// tree build and never mutated across rebuilds.
type Node struct {
	Record
	Children []*Node `json:"children,omitempty"`
}

// Project groups a set of records under one owner.
type Project struct {
	ID        string    `json:"id"`
	OwnerID   int       `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
