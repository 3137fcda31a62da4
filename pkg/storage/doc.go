// Package storage provides the persistence backends for the EduGate CRM.
//
// # Overview
//
// Business records (customers, follow-ups, users, settings) live in a document
// database behind the DocumentStore interface. Two implementations exist:
//
//   - memory: a single-process store for development and tests
//   - mongo: MongoDB via the official driver
//
// Reads and writes take a query.Filter. Authorization code builds those
// filters (see rbac.BuildCustomerQuery) and services AND them with request
// filters before paging, so a backend never returns rows outside the caller's
// scope.
//
// # Atomicity
//
// Every DocumentWriter method is atomic for a single document. Read-then-write
// sequences are avoided: session versions use AtomicIncrement and guarded
// edits use FindOneAndUpdate with the guard expressed in the filter.
//
// # Subpackages
//
//   - storage/memory: in-process DocumentStore
//   - storage/mongo: MongoDB DocumentStore with index management
//   - storage/postgres: connection setup for the audit database
//   - storage/redis: client setup for the shared state store
package storage
