// Package records defines the measurement records produced by protocol
// decoders and the registry decoders publish themselves through.
package records
