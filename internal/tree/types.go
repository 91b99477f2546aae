// Package tree models the entries returned by the remote drive when listing a
// folder, classifies them, and encodes the node records persisted in the
// local cache.
package tree

import (
	"time"

	"github.com/driveindex/driveindex/internal/nodeid"
)

// Kind is the classification of a remote tree entry.
type Kind int

const (
	// KindOther covers entries the cache does not track (albums, photos,
	// unknown future node types).
	KindOther Kind = iota
	KindFolder
	KindFile
)

// String returns the lowercase kind name used in logs, metrics and output.
func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindFile:
		return "file"
	default:
		return "other"
	}
}

// Entry is one child returned by a folder listing. At most one of Folder and
// File is set; when neither is, OtherType names the unsupported node type.
type Entry struct {
	Folder    *FolderNode
	File      *FileNode
	OtherType string
}

// FolderNode is the folder payload of an entry. Identity may be partial.
type FolderNode struct {
	Identity   nodeid.Identity
	ParentID   string
	Name       string
	ModifiedAt time.Time
}

// FileNode is the file payload of an entry. Identity may be partial.
type FileNode struct {
	Identity   nodeid.Identity
	ParentID   string
	Name       string
	MediaType  string
	Size       int64
	ModifiedAt time.Time
	RevisionID string
}

// Record is the decoded form of a persisted node blob.
type Record struct {
	Kind       Kind
	Identity   nodeid.Identity
	Name       string
	MediaType  string
	Size       int64
	ModifiedAt time.Time
	RevisionID string
}
