package store

// Schema is the DDL executed once at startup to ensure the settlement
// engine's tables exist (§6 persistence schema). Embedding DDL as a Go
// string constant next to the code that queries it keeps the schema and
// its access patterns in the same package.
const Schema = `
CREATE TABLE IF NOT EXISTS settlement (
    ref_id             BIGSERIAL PRIMARY KEY,
    settlement_id      TEXT NOT NULL,
    settlement_version BIGINT NOT NULL,
    pts                TEXT NOT NULL,
    processing_entity  TEXT NOT NULL,
    counterparty_id    TEXT NOT NULL,
    value_date         DATE NOT NULL,
    currency           CHAR(3) NOT NULL,
    amount             NUMERIC(20,2) NOT NULL,
    business_status    TEXT NOT NULL,
    direction          TEXT NOT NULL,
    settlement_type    TEXT NOT NULL,
    is_old             BOOLEAN NOT NULL DEFAULT FALSE,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (settlement_id, pts, processing_entity, settlement_version)
);

CREATE INDEX IF NOT EXISTS idx_settlement_natural_key
    ON settlement (settlement_id, pts, processing_entity, ref_id DESC);

CREATE INDEX IF NOT EXISTS idx_settlement_group
    ON settlement (pts, processing_entity, counterparty_id, value_date, ref_id);

CREATE TABLE IF NOT EXISTS running_total (
    id                 BIGSERIAL PRIMARY KEY,
    pts                TEXT NOT NULL,
    processing_entity  TEXT NOT NULL,
    counterparty_id    TEXT NOT NULL,
    value_date         DATE NOT NULL,
    total              NUMERIC(20,2) NOT NULL,
    ref_id             BIGINT NOT NULL,
    UNIQUE (pts, processing_entity, counterparty_id, value_date)
);

CREATE TABLE IF NOT EXISTS exchange_rate (
    currency     CHAR(3) PRIMARY KEY,
    rate_to_usd  NUMERIC(20,8) NOT NULL,
    update_time  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS activity (
    id                  BIGSERIAL PRIMARY KEY,
    pts                 TEXT NOT NULL,
    processing_entity   TEXT NOT NULL,
    settlement_id       TEXT NOT NULL,
    settlement_version  BIGINT NOT NULL,
    user_id             TEXT NOT NULL,
    user_name           TEXT NOT NULL,
    action_type         TEXT NOT NULL,
    comment             TEXT NOT NULL DEFAULT '',
    create_time         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_activity_settlement
    ON activity (settlement_id, settlement_version, create_time DESC);

CREATE TABLE IF NOT EXISTS workflow_state (
    settlement_id       TEXT NOT NULL,
    settlement_version  BIGINT NOT NULL,
    state               TEXT NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (settlement_id, settlement_version)
);

CREATE TABLE IF NOT EXISTS notification_queue (
    id              BIGSERIAL PRIMARY KEY,
    settlement_id   TEXT NOT NULL,
    version         BIGINT NOT NULL,
    status          TEXT NOT NULL,
    details         TEXT NOT NULL DEFAULT '',
    retry_count     INT NOT NULL DEFAULT 0,
    next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS notification_failure (
    id             BIGSERIAL PRIMARY KEY,
    settlement_id  TEXT NOT NULL,
    version        BIGINT NOT NULL,
    status         TEXT NOT NULL,
    details        TEXT NOT NULL DEFAULT '',
    attempts       INT NOT NULL,
    failed_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dead_letter_event (
    id                 BIGSERIAL PRIMARY KEY,
    pts                TEXT NOT NULL,
    processing_entity  TEXT NOT NULL,
    counterparty_id    TEXT NOT NULL,
    value_date         DATE NOT NULL,
    ref_id             BIGINT NOT NULL,
    last_error         TEXT NOT NULL,
    attempts           INT NOT NULL,
    failed_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
