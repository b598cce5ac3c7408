package gc

// deleteBatchSize bounds every conditional-remove and unconditional-remove
// batch. 450 is chosen strictly less than a typical store's bulk
// in-clause/IN-list limit, so a batch never needs to be re-partitioned by
// the store itself.
const deleteBatchSize = 450

// progressBatchSize is the cumulative-deletion cadence at which an
// info-level progress line is emitted.
const progressBatchSize = 10_000
