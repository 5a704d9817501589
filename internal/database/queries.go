package database

// Account queries
const (
	// The conflict target is the global (network_kind, external_id) key; the
	// WHERE clause leaves rows owned by another user untouched.
	UpsertAccountQuery = `
		INSERT INTO accounts (
			id, user_id, network_kind, external_id,
			display_name, access_token, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(network_kind, external_id) DO UPDATE SET
			display_name = excluded.display_name,
			access_token = excluded.access_token,
			updated_at = excluded.updated_at
		WHERE accounts.user_id = excluded.user_id
	`

	accountColumns = `id, user_id, network_kind, external_id, display_name, access_token, created_at, updated_at`

	SelectAccountByOwnerKeyQuery = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE user_id = ? AND network_kind = ? AND external_id = ?
	`

	SelectAccountByExternalIDQuery = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE network_kind = ? AND external_id = ?
	`

	SelectAccountQuery = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = ? AND user_id = ?
	`

	SelectAccountsByUserQuery = `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE user_id = ?
		ORDER BY created_at ASC, rowid ASC
	`

	DeleteAccountQuery = `DELETE FROM accounts WHERE id = ? AND user_id = ?`
)

// Thread queries
const (
	threadColumns = `t.id, t.user_id, t.account_id, t.external_sender_id, t.display_label,
		t.sender_display_name, t.has_unread, t.created_at, t.updated_at`

	InsertThreadIfAbsentQuery = `
		INSERT INTO threads (
			id, user_id, account_id, external_sender_id, display_label,
			sender_display_name, has_unread, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, external_sender_id) DO NOTHING
	`

	SelectThreadBySenderQuery = `
		SELECT ` + threadColumns + `
		FROM threads t
		WHERE t.account_id = ? AND t.external_sender_id = ?
	`

	SelectThreadWithAccountQuery = `
		SELECT ` + threadColumns + `,
			a.id, a.user_id, a.network_kind, a.external_id, a.display_name,
			a.access_token, a.created_at, a.updated_at
		FROM threads t
		JOIN accounts a ON a.id = t.account_id
		WHERE t.id = ? AND t.user_id = ?
	`

	MarkThreadUnreadQuery = `UPDATE threads SET has_unread = 1, updated_at = ? WHERE id = ?`

	ClaimUnreadQuery = `
		UPDATE threads SET has_unread = 0
		WHERE id = ? AND user_id = ? AND has_unread = 1
	`

	DeleteThreadsByAccountQuery = `DELETE FROM threads WHERE account_id = ?`

	// threadSearchClause selects threads having a message whose body contains
	// the search term. LIKE is case-insensitive for ASCII in SQLite.
	threadSearchClause = ` AND EXISTS (
		SELECT 1 FROM messages m
		WHERE m.thread_id = t.id AND CAST(m.body AS TEXT) LIKE ? ESCAPE '\'
	)`
)

// Message queries
const (
	InsertMessageQuery = `
		INSERT INTO messages (
			id, user_id, thread_id, external_message_id, body, is_outbound, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	SelectMessagesByThreadQuery = `
		SELECT id, user_id, thread_id, external_message_id, body, is_outbound, created_at
		FROM messages
		WHERE thread_id = ? AND user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`

	CountMessagesByThreadQuery = `SELECT COUNT(*) FROM messages WHERE thread_id = ? AND user_id = ?`

	DeleteMessagesByAccountQuery = `
		DELETE FROM messages
		WHERE thread_id IN (SELECT id FROM threads WHERE account_id = ?)
	`

	DeleteMessagesOlderThanQuery = `DELETE FROM messages WHERE created_at < ?`
)
