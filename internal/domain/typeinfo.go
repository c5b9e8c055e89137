package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	errspkg "github.com/drblury/dynsub/internal/runtime/errors"
)

// TypeInfo is the opaque type reference carried by a publication announcement.
type TypeInfo struct {
	TypeID   string `json:"type_id"`
	TypeName string `json:"type_name"`
}

// TypeRecord is a complete type object: the serialized FileDescriptorSet
// declaring TypeName and everything it imports.
type TypeRecord struct {
	TypeID   string `json:"type_id"`
	TypeName string `json:"type_name"`
	Files    []byte `json:"files"`
}

// NewTypeRecord captures md and its transitive imports.
func NewTypeRecord(md protoreflect.MessageDescriptor) (*TypeRecord, error) {
	if md == nil {
		return nil, fmt.Errorf("%w: nil message descriptor", errspkg.ErrInvalidTypeObject)
	}

	set := &descriptorpb.FileDescriptorSet{}
	seen := map[string]bool{}
	var add func(fd protoreflect.FileDescriptor)
	add = func(fd protoreflect.FileDescriptor) {
		if seen[fd.Path()] {
			return
		}
		seen[fd.Path()] = true
		imports := fd.Imports()
		for i := 0; i < imports.Len(); i++ {
			add(imports.Get(i).FileDescriptor)
		}
		set.File = append(set.File, protodesc.ToFileDescriptorProto(fd))
	}
	add(md.ParentFile())

	files, err := proto.MarshalOptions{Deterministic: true}.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errspkg.ErrInvalidTypeObject, err)
	}

	name := string(md.FullName())
	return &TypeRecord{TypeID: typeID(name, files), TypeName: name, Files: files}, nil
}

// Info returns the reference announced alongside publications of this type.
func (r *TypeRecord) Info() *TypeInfo {
	return &TypeInfo{TypeID: r.TypeID, TypeName: r.TypeName}
}

// MessageDescriptor materializes the type. It fails with ErrInvalidTypeObject
// when the record is corrupt or does not match its TypeID.
func (r *TypeRecord) MessageDescriptor() (protoreflect.MessageDescriptor, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil type record", errspkg.ErrInvalidTypeObject)
	}
	if typeID(r.TypeName, r.Files) != r.TypeID {
		return nil, fmt.Errorf("%w: content does not match type id %s", errspkg.ErrInvalidTypeObject, r.TypeID)
	}

	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(r.Files, &set); err != nil {
		return nil, fmt.Errorf("%w: %w", errspkg.ErrInvalidTypeObject, err)
	}
	files, err := protodesc.NewFiles(&set)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errspkg.ErrInvalidTypeObject, err)
	}
	desc, err := files.FindDescriptorByName(protoreflect.FullName(r.TypeName))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errspkg.ErrInvalidTypeObject, err)
	}
	md, ok := desc.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a message", errspkg.ErrInvalidTypeObject, r.TypeName)
	}
	return md, nil
}

func typeID(name string, files []byte) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(files)
	return hex.EncodeToString(h.Sum(nil)[:16])
}
