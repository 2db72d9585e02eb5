package store

// Table DDL shared by the SQLite and MySQL backends. The three tables are
// keyed so that re-processing a message replaces rows instead of
// duplicating them.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS mails_summary (
		user       VARCHAR(100) NOT NULL,
		box        VARCHAR(30)  NOT NULL,
		uid        INT          NOT NULL,
		subject    TEXT         NOT NULL,
		sender     VARCHAR(100),
		recipients TEXT         NOT NULL,
		cc         TEXT,
		sendtime   DATETIME     NOT NULL,
		recvtime   DATETIME     NOT NULL,
		PRIMARY KEY (user, box, uid)
	);`,
	`CREATE TABLE IF NOT EXISTS mails_files (
		user          VARCHAR(100) NOT NULL,
		box           VARCHAR(30)  NOT NULL,
		uid           INT          NOT NULL,
		fogname       VARCHAR(100),
		original_name TEXT,
		storage_type  VARCHAR(50)  NOT NULL,
		storage_point VARCHAR(100) NOT NULL,
		PRIMARY KEY (storage_type, storage_point, fogname)
	);`,
	`CREATE TABLE IF NOT EXISTS error_downloads (
		user      VARCHAR(100) NOT NULL,
		box       VARCHAR(30)  NOT NULL,
		uid       INT          NOT NULL,
		error_msg TEXT,
		PRIMARY KEY (user, box, uid)
	);`,
}

const (
	upsertSummarySQL = `REPLACE INTO mails_summary
		(user, box, uid, subject, sender, recipients, cc, sendtime, recvtime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`

	upsertFileRecordSQL = `REPLACE INTO mails_files
		(user, box, uid, fogname, original_name, storage_type, storage_point)
		VALUES (?, ?, ?, ?, ?, ?, ?);`

	upsertErrorSQL = `REPLACE INTO error_downloads
		(user, box, uid, error_msg)
		VALUES (?, ?, ?, ?);`

	recordedUIDsSQL = `SELECT uid FROM mails_summary
		WHERE user = ? AND box = ? ORDER BY uid;`

	highWaterMarksSQL = `SELECT user, box, MAX(uid) AS max_uid
		FROM mails_summary GROUP BY user, box;`

	summariesAboveSQL = `SELECT user, box, uid, subject, sender, recipients, cc, sendtime, recvtime
		FROM mails_summary
		WHERE user = ? AND box = ? AND uid > ? ORDER BY uid;`

	fileRecordsAboveSQL = `SELECT user, box, uid, fogname, original_name, storage_type, storage_point
		FROM mails_files
		WHERE user = ? AND box = ? AND uid > ? ORDER BY uid;`

	errorsSQL = `SELECT user, box, uid, error_msg FROM error_downloads;`
)
