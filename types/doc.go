// Package types contains the shared types and interfaces of the slotpool
// library.
//
// It exists as a separate package so that internal packages can depend on
// these definitions without importing the root slotpool package, avoiding
// import cycles. The root package re-exports the public subset via type
// aliases for user convenience.
package types
