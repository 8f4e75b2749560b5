// Package codec encodes and decodes bridge call envelopes. An envelope is an
// RLP list whose first element is the method name and whose remaining
// elements are the method's positional arguments.
package codec
