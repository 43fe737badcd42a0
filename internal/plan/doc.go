// Package plan holds the domain model for the sheet-processing pipeline: the
// phase enum, per-stage completion sets, the durable plan state record, and
// the pure phase policy that decides when a stage is satisfied.
//
// Everything here is side-effect free. Persistence lives in planstore and the
// event-application logic in coordinator; keeping the policy pure is what
// makes threshold behaviour exhaustively testable without a database.
package plan
