// Package core defines the shared language of leapquery.
//
// This package contains:
//   - Table entities (TableRef, TableSchema, ColumnDesc, Row)
//   - Query entities (FieldSet, QueryDescriptor, Completion, QueryRun)
//   - Service interfaces (Source, Destination, Input, Sink, RunStore)
//   - The error taxonomy shared by every layer
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
