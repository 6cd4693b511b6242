package ecs

import "github.com/hmcore/world/internal/stream"

// ComponentWriter is handed to Serializer implementations while a world is
// written. References to objects and components are translated into
// snapshot indices.
type ComponentWriter interface {
	Stream() *stream.Writer
	WriteObjectRef(h ObjectHandle)
	WriteComponentRef(h ComponentHandle)
}

// ComponentReader is the reading counterpart of ComponentWriter.
type ComponentReader interface {
	Stream() *stream.Reader
	ReadObjectRef() ObjectHandle
	ReadComponentRef() ComponentHandle
	// Version is the type version stored in the snapshot.
	Version() uint32
}

// Serializer writes a component's payload.
type Serializer interface {
	Serialize(w ComponentWriter)
}

// Deserializer reads a payload written by Serializer. Errors surface
// through the stream's sticky error.
type Deserializer interface {
	Deserialize(r ComponentReader)
}
