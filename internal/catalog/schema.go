package catalog

// PartitionsSchemaSQL creates the partitions table. Bounds are half-open
// [low, high) in Unix nanoseconds on the partition key.
const PartitionsSchemaSQL = `
CREATE TABLE IF NOT EXISTS partitions (
	partition_id TEXT PRIMARY KEY,
	low          INTEGER NOT NULL,
	high         INTEGER NOT NULL,
	record_count INTEGER NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL,
	retired_at   INTEGER,
	archive_path TEXT
)`

// PartitionsLowIndexSQL speeds up the boundary ordering used on load.
const PartitionsLowIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_partitions_low ON partitions(low)`

// IndexesSchemaSQL creates the per-partition index declarations table.
// fields holds a JSON array preserving declaration order.
const IndexesSchemaSQL = `
CREATE TABLE IF NOT EXISTS partition_indexes (
	partition_id TEXT NOT NULL,
	name         TEXT NOT NULL,
	fields       TEXT NOT NULL,
	state        TEXT NOT NULL,
	auto_created INTEGER NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL,
	PRIMARY KEY (partition_id, name),
	FOREIGN KEY (partition_id) REFERENCES partitions(partition_id)
)`

// AnalyzeSQL refreshes SQLite planner statistics.
const AnalyzeSQL = `ANALYZE`

// AllSchemaSQL returns every schema statement in creation order.
func AllSchemaSQL() []string {
	return []string{
		PartitionsSchemaSQL,
		PartitionsLowIndexSQL,
		IndexesSchemaSQL,
	}
}
