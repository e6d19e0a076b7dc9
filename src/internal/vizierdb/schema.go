package vizierdb

const schema = `
CREATE SCHEMA IF NOT EXISTS vizier;

CREATE TABLE IF NOT EXISTS vizier.viztrails (
	id text PRIMARY KEY,
	properties jsonb NOT NULL,
	default_branch text NOT NULL,
	created_at timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS vizier.branches (
	viztrail_id text NOT NULL REFERENCES vizier.viztrails (id) ON DELETE CASCADE,
	id text NOT NULL,
	properties jsonb NOT NULL,
	source_branch text NOT NULL DEFAULT '',
	workflow_id text NOT NULL DEFAULT '',
	module_id text NOT NULL DEFAULT '',
	forked_at timestamptz NOT NULL,
	created_at timestamptz NOT NULL,
	PRIMARY KEY (viztrail_id, id)
);

CREATE TABLE IF NOT EXISTS vizier.workflows (
	viztrail_id text NOT NULL,
	branch_id text NOT NULL,
	seq integer NOT NULL,
	id text NOT NULL,
	action text NOT NULL,
	package_id text NOT NULL DEFAULT '',
	command_id text NOT NULL DEFAULT '',
	created_at timestamptz NOT NULL,
	PRIMARY KEY (viztrail_id, branch_id, seq),
	FOREIGN KEY (viztrail_id, branch_id) REFERENCES vizier.branches (viztrail_id, id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS vizier.modules (
	viztrail_id text NOT NULL REFERENCES vizier.viztrails (id) ON DELETE CASCADE,
	id text NOT NULL,
	command jsonb NOT NULL,
	external_form text NOT NULL,
	state text NOT NULL,
	revision bigint NOT NULL DEFAULT 0,
	outputs jsonb NOT NULL,
	provenance jsonb NOT NULL,
	created_at timestamptz NOT NULL,
	started_at timestamptz,
	finished_at timestamptz,
	PRIMARY KEY (viztrail_id, id)
);

ALTER TABLE vizier.modules ADD COLUMN IF NOT EXISTS revision bigint NOT NULL DEFAULT 0;

CREATE TABLE IF NOT EXISTS vizier.workflow_modules (
	viztrail_id text NOT NULL,
	branch_id text NOT NULL,
	seq integer NOT NULL,
	position integer NOT NULL,
	module_id text NOT NULL,
	PRIMARY KEY (viztrail_id, branch_id, seq, position),
	FOREIGN KEY (viztrail_id, branch_id, seq) REFERENCES vizier.workflows (viztrail_id, branch_id, seq) ON DELETE CASCADE,
	FOREIGN KEY (viztrail_id, module_id) REFERENCES vizier.modules (viztrail_id, id)
);
`
