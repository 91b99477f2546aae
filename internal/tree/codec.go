package tree

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/driveindex/driveindex/internal/nodeid"
)

// Codec errors. Use errors.Is to check.
var (
	// ErrUnencodable is returned when a node lacks what a record needs
	// (a name and a node ID).
	ErrUnencodable = errors.New("tree: node cannot be encoded")
	// ErrMalformedRecord is returned when stored bytes are not a valid record.
	ErrMalformedRecord = errors.New("tree: malformed node record")
)

// Record field numbers. The layout is protobuf wire format so records stay
// readable by any protobuf tooling and tolerate added fields.
const (
	fieldKind       protowire.Number = 1
	fieldIdentity   protowire.Number = 2
	fieldName       protowire.Number = 3
	fieldSize       protowire.Number = 4
	fieldModified   protowire.Number = 5
	fieldMediaType  protowire.Number = 6
	fieldRevisionID protowire.Number = 7
)

// Identity submessage field numbers.
const (
	fieldNodeID   protowire.Number = 1
	fieldShareID  protowire.Number = 2
	fieldVolumeID protowire.Number = 3
)

// EncodeFolder serializes a folder record carrying id, which should be the
// resolved synthetic identity rather than the folder's partial one.
func EncodeFolder(f *FolderNode, id nodeid.Identity) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil folder", ErrUnencodable)
	}

	return encodeRecord(Record{
		Kind:       KindFolder,
		Identity:   id,
		Name:       f.Name,
		ModifiedAt: f.ModifiedAt,
	})
}

// EncodeFile serializes a file record carrying id.
func EncodeFile(f *FileNode, id nodeid.Identity) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil file", ErrUnencodable)
	}

	return encodeRecord(Record{
		Kind:       KindFile,
		Identity:   id,
		Name:       f.Name,
		MediaType:  f.MediaType,
		Size:       f.Size,
		ModifiedAt: f.ModifiedAt,
		RevisionID: f.RevisionID,
	})
}

func encodeRecord(r Record) ([]byte, error) {
	if r.Name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrUnencodable)
	}

	if r.Identity.NodeID == "" {
		return nil, fmt.Errorf("%w: %q has no node id", ErrUnencodable, r.Name)
	}

	b := make([]byte, 0, 64+len(r.Name))

	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Kind))

	b = protowire.AppendTag(b, fieldIdentity, protowire.BytesType)
	b = protowire.AppendBytes(b, encodeIdentity(r.Identity))

	b = protowire.AppendTag(b, fieldName, protowire.BytesType)
	b = protowire.AppendString(b, r.Name)

	if r.Size != 0 {
		b = protowire.AppendTag(b, fieldSize, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(r.Size))
	}

	if !r.ModifiedAt.IsZero() {
		b = protowire.AppendTag(b, fieldModified, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(r.ModifiedAt.Unix()))
	}

	if r.MediaType != "" {
		b = protowire.AppendTag(b, fieldMediaType, protowire.BytesType)
		b = protowire.AppendString(b, r.MediaType)
	}

	if r.RevisionID != "" {
		b = protowire.AppendTag(b, fieldRevisionID, protowire.BytesType)
		b = protowire.AppendString(b, r.RevisionID)
	}

	return b, nil
}

func encodeIdentity(id nodeid.Identity) []byte {
	var b []byte

	for _, f := range []struct {
		num protowire.Number
		val string
	}{
		{fieldNodeID, id.NodeID},
		{fieldShareID, id.ShareID},
		{fieldVolumeID, id.VolumeID},
	} {
		if f.val == "" {
			continue
		}

		b = protowire.AppendTag(b, f.num, protowire.BytesType)
		b = protowire.AppendString(b, f.val)
	}

	return b
}

// DecodeRecord parses a persisted node record. Unknown fields are skipped.
func DecodeRecord(data []byte) (Record, error) {
	var r Record

	if len(data) == 0 {
		return r, fmt.Errorf("%w: empty", ErrMalformedRecord)
	}

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Record{}, malformed(protowire.ParseError(n))
		}

		data = data[n:]

		n, err := decodeField(&r, num, typ, data)
		if err != nil {
			return Record{}, err
		}

		data = data[n:]
	}

	if r.Identity.NodeID == "" {
		return Record{}, fmt.Errorf("%w: missing node id", ErrMalformedRecord)
	}

	return r, nil
}

// decodeField consumes one field value into r and returns the bytes used.
func decodeField(r *Record, num protowire.Number, typ protowire.Type, data []byte) (int, error) {
	switch {
	case num == fieldKind && typ == protowire.VarintType:
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return 0, malformed(protowire.ParseError(n))
		}

		r.Kind = Kind(v)

		return n, nil

	case (num == fieldSize || num == fieldModified) && typ == protowire.VarintType:
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return 0, malformed(protowire.ParseError(n))
		}

		if num == fieldSize {
			r.Size = protowire.DecodeZigZag(v)
		} else {
			r.ModifiedAt = time.Unix(protowire.DecodeZigZag(v), 0).UTC()
		}

		return n, nil

	case num == fieldIdentity && typ == protowire.BytesType:
		v, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return 0, malformed(protowire.ParseError(n))
		}

		id, err := decodeIdentity(v)
		if err != nil {
			return 0, err
		}

		r.Identity = id

		return n, nil

	case (num == fieldName || num == fieldMediaType || num == fieldRevisionID) && typ == protowire.BytesType:
		v, n := protowire.ConsumeString(data)
		if n < 0 {
			return 0, malformed(protowire.ParseError(n))
		}

		switch num {
		case fieldName:
			r.Name = v
		case fieldMediaType:
			r.MediaType = v
		default:
			r.RevisionID = v
		}

		return n, nil

	default:
		n := protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return 0, malformed(protowire.ParseError(n))
		}

		return n, nil
	}
}

func decodeIdentity(data []byte) (nodeid.Identity, error) {
	var id nodeid.Identity

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nodeid.Identity{}, malformed(protowire.ParseError(n))
		}

		data = data[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nodeid.Identity{}, malformed(protowire.ParseError(n))
			}

			data = data[n:]

			continue
		}

		v, n := protowire.ConsumeString(data)
		if n < 0 {
			return nodeid.Identity{}, malformed(protowire.ParseError(n))
		}

		data = data[n:]

		switch num {
		case fieldNodeID:
			id.NodeID = v
		case fieldShareID:
			id.ShareID = v
		case fieldVolumeID:
			id.VolumeID = v
		}
	}

	return id, nil
}

// DecodeIdentity returns only the identity stored in a node record.
func DecodeIdentity(data []byte) (nodeid.Identity, error) {
	r, err := DecodeRecord(data)
	if err != nil {
		return nodeid.Identity{}, err
	}

	return r.Identity, nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformedRecord, err)
}
