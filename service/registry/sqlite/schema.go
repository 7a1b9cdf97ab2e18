package sqlite

// Timestamps are unix nanoseconds, 0 meaning unset. The item payload column
// holds the JSON encoded dispatch inputs and results.
const schema = `
CREATE TABLE IF NOT EXISTS builders (
	name                      TEXT PRIMARY KEY,
	url                       TEXT NOT NULL,
	processor                 TEXT NOT NULL DEFAULT '',
	virtualized               INTEGER NOT NULL DEFAULT 0,
	vm_host                   TEXT NOT NULL DEFAULT '',
	vm_reset_protocol         TEXT NOT NULL DEFAULT '',
	builder_ok                INTEGER NOT NULL DEFAULT 1,
	fail_notes                TEXT NOT NULL DEFAULT '',
	failure_count             INTEGER NOT NULL DEFAULT 0,
	manual                    INTEGER NOT NULL DEFAULT 0,
	clean_status              TEXT NOT NULL DEFAULT 'DIRTY',
	current_item_id           TEXT NOT NULL DEFAULT '',
	version                   TEXT NOT NULL DEFAULT '',
	date_clean_status_changed INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS queue_items (
	id            TEXT PRIMARY KEY,
	kind          TEXT NOT NULL,
	build_id      TEXT NOT NULL,
	score         INTEGER NOT NULL DEFAULT 0,
	processor     TEXT NOT NULL DEFAULT '',
	virtualized   INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL,
	builder       TEXT NOT NULL DEFAULT '',
	logtail       TEXT NOT NULL DEFAULT '',
	dependencies  TEXT NOT NULL DEFAULT '',
	suite         TEXT NOT NULL DEFAULT '',
	payload       TEXT NOT NULL DEFAULT '{}',
	date_created  INTEGER NOT NULL,
	date_started  INTEGER NOT NULL DEFAULT 0,
	date_finished INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_queue_items_waiting
	ON queue_items (status, score DESC, date_created, id);
`
