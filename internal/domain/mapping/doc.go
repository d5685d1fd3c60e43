// Package mapping implements the bidirectional field-mapping engine between
// external payload shapes and the platform's canonical record shape.
//
// Mapping rules are declarative: canonical field -> dot-notation path into
// the external payload, with optional per-field transformers and validators.
// Transformation is allow-list based; fields without a mapping are dropped.
package mapping
