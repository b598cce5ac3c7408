// Package extsort implements an external-memory sort over strings: an
// append-only collection that spills to sorted temp files once it exceeds a
// configured in-memory threshold, and a lazy k-way merge over however many
// runs that produced, under a caller-supplied comparator.
package extsort
