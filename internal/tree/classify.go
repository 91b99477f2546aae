package tree

import (
	"github.com/driveindex/driveindex/internal/nodeid"
)

// Classify reports whether e is a folder, a file, or neither, and returns the
// matching payload. A folder payload wins if a malformed entry carries both.
func Classify(e Entry) (Kind, *FolderNode, *FileNode) {
	switch {
	case e.Folder != nil:
		return KindFolder, e.Folder, nil
	case e.File != nil:
		return KindFile, nil, e.File
	default:
		return KindOther, nil, nil
	}
}

// ResolveIdentity builds the synthetic identity of a child listed under
// parent: the child's own fields win, absent ones are inherited.
func ResolveIdentity(child, parent nodeid.Identity) nodeid.Identity {
	return child.Inherit(parent)
}

// JoinPath appends name to a '/'-joined parent path. The traversal root has
// the empty path, so its children are addressed by name alone.
func JoinPath(parent, name string) string {
	if parent == "" {
		return name
	}

	return parent + "/" + name
}

// Child is the classified, addressable view of an entry under a known parent.
type Child struct {
	Kind     Kind
	Name     string
	Path     string
	Identity nodeid.Identity
	Folder   *FolderNode
	File     *FileNode
}

// Resolve classifies e and computes its full path and synthetic identity.
// ok is false for KindOther entries, which callers skip.
func Resolve(e Entry, parentPath string, parent nodeid.Identity) (c Child, ok bool) {
	kind, folder, file := Classify(e)

	switch kind {
	case KindFolder:
		return Child{
			Kind:     KindFolder,
			Name:     folder.Name,
			Path:     JoinPath(parentPath, folder.Name),
			Identity: ResolveIdentity(folder.Identity, parent),
			Folder:   folder,
		}, true
	case KindFile:
		return Child{
			Kind:     KindFile,
			Name:     file.Name,
			Path:     JoinPath(parentPath, file.Name),
			Identity: ResolveIdentity(file.Identity, parent),
			File:     file,
		}, true
	default:
		return Child{Kind: KindOther}, false
	}
}

// Encode serializes the child's node record with its resolved identity.
func (c Child) Encode() ([]byte, error) {
	switch c.Kind {
	case KindFolder:
		return EncodeFolder(c.Folder, c.Identity)
	case KindFile:
		return EncodeFile(c.File, c.Identity)
	default:
		return nil, ErrUnencodable
	}
}
