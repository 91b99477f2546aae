// Package nodeid provides the identity triple used to address a node in the
// remote drive: the node's own ID plus the share and volume that contain it.
//
// Remote listings frequently omit the share and volume IDs of children (and
// occasionally the node ID itself) because they are implied by the folder
// being listed. Inherit fills those gaps from the parent so every node can be
// addressed on its own later, without re-listing its parent.
//
// This is a leaf package with zero external dependencies beyond stdlib.
package nodeid

import (
	"encoding"
	"fmt"
	"strings"
)

// keySeparator joins the three components in Key(). Remote IDs are
// base64url-ish and never contain it.
const keySeparator = "/"

// Identity addresses a single node. Empty fields mean "absent in the
// response that produced this value".
type Identity struct {
	NodeID   string
	ShareID  string
	VolumeID string
}

// New creates an Identity from raw remote IDs. Surrounding whitespace is
// trimmed; empty strings stay absent.
func New(nodeID, shareID, volumeID string) Identity {
	return Identity{
		NodeID:   strings.TrimSpace(nodeID),
		ShareID:  strings.TrimSpace(shareID),
		VolumeID: strings.TrimSpace(volumeID),
	}
}

// Inherit returns the synthetic identity of a child: each field is taken from
// id when present and from parent otherwise. The receiver is not modified.
func (id Identity) Inherit(parent Identity) Identity {
	out := id

	if out.NodeID == "" {
		out.NodeID = parent.NodeID
	}

	if out.ShareID == "" {
		out.ShareID = parent.ShareID
	}

	if out.VolumeID == "" {
		out.VolumeID = parent.VolumeID
	}

	return out
}

// IsZero reports whether all three fields are absent.
func (id Identity) IsZero() bool {
	return id.NodeID == "" && id.ShareID == "" && id.VolumeID == ""
}

// Complete reports whether the identity carries everything needed to list
// the node's children.
func (id Identity) Complete() bool {
	return id.NodeID != "" && id.ShareID != "" && id.VolumeID != ""
}

// Key returns a stable "volume/share/node" string suitable for map keys and
// request coalescing.
func (id Identity) Key() string {
	return id.VolumeID + keySeparator + id.ShareID + keySeparator + id.NodeID
}

// String returns a compact representation for logging.
func (id Identity) String() string {
	return fmt.Sprintf("node=%s share=%s volume=%s", orDash(id.NodeID), orDash(id.ShareID), orDash(id.VolumeID))
}

// MarshalText implements encoding.TextMarshaler using the Key() format.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.Key()), nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

// Compile-time interface assertions.
var (
	_ encoding.TextMarshaler = Identity{}
	_ fmt.Stringer           = Identity{}
)
