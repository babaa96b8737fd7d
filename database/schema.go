package database

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE INDEX idx_users_email (email)
	)`,
	`CREATE TABLE IF NOT EXISTS analysis_logs (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		user_id VARCHAR(36) NULL,
		filename VARCHAR(512) NOT NULL,
		classification VARCHAR(64) NOT NULL,
		people_count INT NOT NULL DEFAULT 0,
		source VARCHAR(32) NOT NULL,
		report_summary TEXT NULL,
		severity_score INT NOT NULL DEFAULT 0,
		timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_analysis_logs_user_timestamp (user_id, timestamp),
		CONSTRAINT fk_analysis_logs_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE SET NULL
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(36) PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS analysis_logs (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(36) NULL REFERENCES users (id) ON DELETE SET NULL,
		filename TEXT NOT NULL,
		classification VARCHAR(64) NOT NULL,
		people_count INTEGER NOT NULL DEFAULT 0,
		source VARCHAR(32) NOT NULL,
		report_summary TEXT NULL,
		severity_score INTEGER NOT NULL DEFAULT 0,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_logs_user_timestamp ON analysis_logs (user_id, timestamp)`,
}
