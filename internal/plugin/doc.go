// Package plugin runs transform functions out of process. Parameters and
// results cross the wire as protobuf Struct values on the
// adi.v1.TransformService/Transform method; a Client hides whether the
// function runs behind gRPC or in the same process.
package plugin
