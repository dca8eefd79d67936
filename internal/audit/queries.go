package audit

const (
	queryInsertEntry = `
		INSERT INTO history (timestamp, action, decision, sample, note)
		VALUES (?, ?, ?, ?, ?)`

	querySelectRecent = `
		SELECT timestamp, action, decision, sample, note FROM (
			SELECT id, timestamp, action, decision, sample, note
			FROM history
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC`

	timestampLayout = "2006-01-02 15:04:05"
)
