package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// sqliteMigrations is the ordered list of SQLite schema migrations.
// Each migration's version must be sequential starting from 1.
var sqliteMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS feed_links (
	id              TEXT PRIMARY KEY,
	sender_email    TEXT NOT NULL,
	core_link       TEXT NOT NULL,
	received_at     DATETIME NOT NULL,
	received_header TEXT NOT NULL DEFAULT '',
	processed_at    DATETIME NOT NULL,
	UNIQUE(sender_email, core_link, received_at)
);

CREATE INDEX IF NOT EXISTS idx_feed_links_sender ON feed_links(sender_email);
CREATE INDEX IF NOT EXISTS idx_feed_links_received_at ON feed_links(received_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_feed_links_sender_received
	ON feed_links(sender_email, received_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
	{
		version: 3,
		sql: `
ALTER TABLE feed_links ADD COLUMN keyed_by_header INTEGER NOT NULL DEFAULT 0;

CREATE UNIQUE INDEX IF NOT EXISTS idx_feed_links_unique_header
	ON feed_links(sender_email, core_link, received_header)
	WHERE keyed_by_header = 1;

INSERT INTO schema_version (version) VALUES (3);
`,
	},
}

// postgresMigrations mirrors sqliteMigrations for PostgreSQL.
var postgresMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS feed_links (
	id              UUID PRIMARY KEY,
	sender_email    TEXT NOT NULL,
	core_link       TEXT NOT NULL,
	received_at     TIMESTAMPTZ NOT NULL,
	received_header TEXT NOT NULL DEFAULT '',
	processed_at    TIMESTAMPTZ NOT NULL,
	CONSTRAINT feed_links_unique_triple UNIQUE (sender_email, core_link, received_at)
);

CREATE INDEX IF NOT EXISTS idx_feed_links_sender ON feed_links(sender_email);
CREATE INDEX IF NOT EXISTS idx_feed_links_received_at ON feed_links(received_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_feed_links_sender_received
	ON feed_links(sender_email, received_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
	{
		version: 3,
		sql: `
ALTER TABLE feed_links ADD COLUMN IF NOT EXISTS keyed_by_header BOOLEAN NOT NULL DEFAULT FALSE;

CREATE UNIQUE INDEX IF NOT EXISTS idx_feed_links_unique_header
	ON feed_links(sender_email, core_link, received_header)
	WHERE keyed_by_header;

INSERT INTO schema_version (version) VALUES (3);
`,
	},
}
