package audit

const (
	tableSchema = `
		CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			action TEXT NOT NULL CHECK(action IN ('copy', 'paste', 'toggle', 'error')),
			decision TEXT NOT NULL CHECK(decision IN ('pending', 'allowed', 'blocked', 'failed', 'enabled', 'disabled')),
			sample TEXT NOT NULL DEFAULT '',
			note TEXT NOT NULL DEFAULT ''
		)`

	triggerPreventUpdate = `
		CREATE TRIGGER IF NOT EXISTS history_prevent_update
		BEFORE UPDATE ON history
		FOR EACH ROW
		BEGIN
			SELECT RAISE(FAIL, 'Updates not allowed on history');
		END`

	triggerPreventDelete = `
		CREATE TRIGGER IF NOT EXISTS history_prevent_delete
		BEFORE DELETE ON history
		FOR EACH ROW
		BEGIN
			SELECT RAISE(FAIL, 'Deletes not allowed on history');
		END`
)

func schemaStatements() []string {
	return []string{
		tableSchema,
		triggerPreventUpdate,
		triggerPreventDelete,
	}
}
