// Package storage archives session records produced by completed and
// failed orchestration runs. It is an audit surface, separate from the
// session history the loop itself reads and writes through the memory
// package. The mysql subpackage provides the durable backend.
package storage
