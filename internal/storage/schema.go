package storage

const schema = `
CREATE TABLE IF NOT EXISTS owners (
	id                UUID PRIMARY KEY,
	email             VARCHAR(255) NOT NULL,
	password_hash     TEXT NOT NULL DEFAULT '',
	subscription_tier VARCHAR(32) NOT NULL DEFAULT 'free',
	is_active         BOOLEAN NOT NULL DEFAULT TRUE,
	is_superuser      BOOLEAN NOT NULL DEFAULT FALSE,
	last_login_at     TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT owners_email_key UNIQUE (email)
);

CREATE TABLE IF NOT EXISTS api_keys (
	id                    UUID PRIMARY KEY,
	owner_id              UUID NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
	name                  VARCHAR(255) NOT NULL,
	description           TEXT,
	key_hash              VARCHAR(64) NOT NULL,
	key_prefix            VARCHAR(16) NOT NULL,
	scopes                TEXT[] NOT NULL DEFAULT '{}',
	is_active             BOOLEAN NOT NULL DEFAULT TRUE,
	expires_at            TIMESTAMPTZ,
	rate_limit_per_minute INTEGER NOT NULL,
	rate_limit_per_hour   INTEGER NOT NULL,
	rate_limit_per_day    INTEGER NOT NULL,
	total_requests        BIGINT NOT NULL DEFAULT 0,
	requests_today        BIGINT NOT NULL DEFAULT 0,
	requests_this_hour    BIGINT NOT NULL DEFAULT 0,
	requests_this_minute  BIGINT NOT NULL DEFAULT 0,
	last_used_at          TIMESTAMPTZ,
	last_used_ip          VARCHAR(45),
	last_user_agent       TEXT,
	metadata              JSONB,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT api_keys_key_hash_key UNIQUE (key_hash),
	CONSTRAINT api_keys_owner_name_key UNIQUE (owner_id, name)
);

CREATE INDEX IF NOT EXISTS idx_api_keys_owner_active ON api_keys (owner_id, is_active);
`
