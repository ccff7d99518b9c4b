// Package store is the sqlite-backed persistence layer for every durable
// entity: merchants, banking profiles, FCIDs and their ledgers,
// back-transactions, and settlements.
package store

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// Open opens (or creates) the sqlite database at dsn, tuned for a single
// writer with many readers: WAL journaling, a bounded busy timeout, and a
// small connection pool (sqlite serializes writes regardless of pool size).
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA busy_timeout = 5000;
		PRAGMA foreign_keys = ON;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS merchants (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  tax_id TEXT,
  biller_id TEXT NOT NULL,
  group_id INTEGER NOT NULL DEFAULT 0,
  site_id INTEGER NOT NULL DEFAULT 0,
  menu_id INTEGER NOT NULL DEFAULT 0,
  token TEXT NOT NULL UNIQUE,
  city TEXT NOT NULL DEFAULT 'BANGKOK',
  created_at TEXT NOT NULL DEFAULT (datetime('now')),
  updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS banking_profiles (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  scope TEXT NOT NULL,
  group_id INTEGER,
  site_id INTEGER,
  store_id INTEGER REFERENCES merchants(id),
  provider TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  scb_app_key TEXT,
  scb_app_secret TEXT,
  scb_callback_url TEXT,
  kbank_customer_id TEXT,
  kbank_consumer_secret TEXT,
  omise_secret_key TEXT,
  stripe_secret_key TEXT,
  created_at TEXT NOT NULL DEFAULT (datetime('now')),
  updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS menus (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  merchant_id INTEGER NOT NULL REFERENCES merchants(id),
  name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS store_quick_amounts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  merchant_id INTEGER NOT NULL REFERENCES merchants(id),
  label TEXT NOT NULL,
  amount_minor INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS fcids (
  code TEXT PRIMARY KEY,
  initial_amount_minor INTEGER NOT NULL,
  current_balance_minor INTEGER NOT NULL,
  payment_method TEXT NOT NULL,
  status TEXT NOT NULL,
  customer_id INTEGER,
  created_at TEXT NOT NULL DEFAULT (datetime('now')),
  updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS counter_transactions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  fcid_code TEXT NOT NULL REFERENCES fcids(code),
  counter_id TEXT,
  counter_user_id TEXT,
  amount_minor INTEGER NOT NULL,
  payment_method TEXT NOT NULL,
  payment_details TEXT NOT NULL DEFAULT '{}',
  status TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS store_transactions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  fcid_code TEXT NOT NULL REFERENCES fcids(code),
  merchant_id INTEGER NOT NULL REFERENCES merchants(id),
  amount_minor INTEGER NOT NULL,
  status TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS payment_transactions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  customer_id INTEGER,
  merchant_id INTEGER NOT NULL REFERENCES merchants(id),
  amount_minor INTEGER NOT NULL,
  payment_method TEXT NOT NULL,
  status TEXT NOT NULL,
  receipt_number TEXT NOT NULL UNIQUE,
  fcid_code TEXT REFERENCES fcids(code),
  ref1 TEXT,
  ref2 TEXT,
  ref3 TEXT,
  bank_account TEXT,
  created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS back_transactions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ref1 TEXT NOT NULL,
  ref2 TEXT,
  ref3 TEXT,
  amount_minor INTEGER NOT NULL,
  paid_at TEXT NOT NULL,
  slip_reference TEXT,
  bank_account TEXT,
  merchant_id INTEGER REFERENCES merchants(id),
  status TEXT NOT NULL,
  raw_payload TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS settlements (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  merchant_id INTEGER NOT NULL REFERENCES merchants(id),
  settlement_date TEXT NOT NULL,
  amount_minor INTEGER NOT NULL,
  status TEXT NOT NULL,
  transferred_at TEXT,
  notified_at TEXT,
  receipt_printed_at TEXT,
  created_at TEXT NOT NULL DEFAULT (datetime('now')),
  UNIQUE(merchant_id, settlement_date)
);

CREATE TABLE IF NOT EXISTS refund_notifications (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  fcid_code TEXT NOT NULL REFERENCES fcids(code),
  customer_id INTEGER,
  amount_minor INTEGER NOT NULL,
  sent INTEGER NOT NULL DEFAULT 0,
  sent_at TEXT,
  created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS crypto_topups (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  fcid_code TEXT NOT NULL REFERENCES fcids(code),
  payment_method TEXT NOT NULL,
  tx_hash TEXT NOT NULL,
  dest_address TEXT NOT NULL,
  expected_amount_minor INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  attempts INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  confirmed_at TEXT,
  created_at TEXT NOT NULL DEFAULT (datetime('now')),
  UNIQUE(payment_method, tx_hash)
);
`

const schemaIndexDDL = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_back_transactions_slip_reference
  ON back_transactions(slip_reference) WHERE slip_reference IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_back_transactions_merchant_paid_at
  ON back_transactions(merchant_id, paid_at);

CREATE INDEX IF NOT EXISTS idx_banking_profiles_store
  ON banking_profiles(store_id) WHERE is_active = 1;

CREATE INDEX IF NOT EXISTS idx_banking_profiles_site
  ON banking_profiles(scope, site_id) WHERE is_active = 1;

CREATE INDEX IF NOT EXISTS idx_banking_profiles_group
  ON banking_profiles(scope, group_id) WHERE is_active = 1;

CREATE INDEX IF NOT EXISTS idx_refund_notifications_fcid_created
  ON refund_notifications(fcid_code, created_at);
`

// EnsureSchema creates every table and index the store needs if they don't
// already exist. Safe to call on every boot.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaDDL); err != nil {
		return err
	}
	_, err := db.Exec(schemaIndexDDL)
	return err
}

// parseSQLiteTime parses a sqlite datetime() column value, tolerating both
// its native "YYYY-MM-DD HH:MM:SS" form and RFC3339. Unparseable values
// (NULL scanned as "") come back as the zero time rather than an error,
// since callers treat most of these timestamps as informational.
func parseSQLiteTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, normalizeSQLiteTime(s)); err == nil {
		return t
	}
	return time.Time{}
}
