// Package param implements typed, unit-annotated parameters and the tagged
// codec that carries them over the wire.
//
// A Parameter's KeyType tag selects exactly one value shape from a closed set
// (scalars, flat arrays, rectangular matrices, nested structs, coordinates,
// timestamps). The same decoder table serves the JSON encoding used for
// commands and the CBOR encoding used for events, and struct members are run
// back through it recursively.
package param
