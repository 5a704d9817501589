// Package database is the SQLite implementation of the inbox store.
package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"pageinbox/internal/migrations"
	"pageinbox/internal/models"
	"pageinbox/internal/secrets"
	"pageinbox/internal/security"
)

type Database struct {
	db        *sql.DB
	encryptor *secrets.Encryptor
}

// NewID returns a 24 character lowercase hex id, the same shape as a Mongo
// ObjectID.
func NewID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:12])
}

func isMemoryPath(dbPath string) bool {
	return dbPath == ":memory:" || strings.HasPrefix(dbPath, "file::memory:")
}

// New opens the database at dbPath, applies pending migrations and returns a
// ready store. A nil encryptor stores access tokens in plaintext.
func New(ctx context.Context, dbPath string, encryptor *secrets.Encryptor) (*Database, error) {
	if err := security.ValidateDatabasePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	dsn := dbPath
	if !isMemoryPath(dbPath) {
		file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600) // #nosec G304 - Path validated above
		if err != nil {
			return nil, fmt.Errorf("failed to create database file: %w", err)
		}
		if err := file.Close(); err != nil {
			return nil, fmt.Errorf("failed to close database file: %w", err)
		}
		dsn = "file:" + dbPath + "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if isMemoryPath(dbPath) {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := migrations.Apply(ctx, db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if encryptor == nil {
		encryptor = &secrets.Encryptor{}
	}
	return &Database{db: db, encryptor: encryptor}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (d *Database) scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	var token string
	if err := row.Scan(&a.ID, &a.UserID, &a.NetworkKind, &a.ExternalID,
		&a.DisplayName, &token, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	plain, err := d.encryptor.Decrypt(token)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	a.AccessToken = plain
	return &a, nil
}

func scanThread(row rowScanner, extra ...any) (*models.Thread, error) {
	var t models.Thread
	dest := append([]any{&t.ID, &t.UserID, &t.AccountID, &t.ExternalSenderID, &t.DisplayLabel,
		&t.SenderDisplayName, &t.HasUnread, &t.CreatedAt, &t.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpsertAccount inserts the account or refreshes display name and token of
// the caller's existing row for the same external id. It returns
// models.ErrAccountTaken when another user already holds that external id.
func (d *Database) UpsertAccount(ctx context.Context, account *models.Account) (*models.Account, error) {
	token, err := d.encryptor.Encrypt(account.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	now := time.Now().UTC()
	err = retryableDBOperation(ctx, func() error {
		_, execErr := d.db.ExecContext(ctx, UpsertAccountQuery,
			NewID(), account.UserID, account.NetworkKind, account.ExternalID,
			account.DisplayName, token, now, now)
		return execErr
	}, "upsert account")
	if err != nil {
		return nil, err
	}

	stored, err := d.scanAccount(d.db.QueryRowContext(ctx, SelectAccountByOwnerKeyQuery,
		account.UserID, account.NetworkKind, account.ExternalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAccountTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read upserted account: %w", err)
	}
	return stored, nil
}

func (d *Database) ListAccounts(ctx context.Context, userID string) ([]*models.Account, error) {
	rows, err := d.db.QueryContext(ctx, SelectAccountsByUserQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a, err := d.scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetAccountByExternalID returns nil when no account matches.
func (d *Database) GetAccountByExternalID(ctx context.Context, networkKind, externalID string) (*models.Account, error) {
	a, err := d.scanAccount(d.db.QueryRowContext(ctx, SelectAccountByExternalIDQuery, networkKind, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// GetAccount returns nil when the account does not exist or belongs to
// another user.
func (d *Database) GetAccount(ctx context.Context, userID, accountID string) (*models.Account, error) {
	a, err := d.scanAccount(d.db.QueryRowContext(ctx, SelectAccountQuery, accountID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (d *Database) DeleteAccount(ctx context.Context, userID, accountID string) (bool, error) {
	var affected int64
	err := retryableDBOperation(ctx, func() error {
		res, execErr := d.db.ExecContext(ctx, DeleteAccountQuery, accountID, userID)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	}, "delete account")
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetThreadBySender returns nil when the pair has no thread yet.
func (d *Database) GetThreadBySender(ctx context.Context, accountID, senderID string) (*models.Thread, error) {
	t, err := scanThread(d.db.QueryRowContext(ctx, SelectThreadBySenderQuery, accountID, senderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return t, nil
}

// CreateThreadIfAbsent inserts thread unless one already exists for its
// (account, sender) pair, and returns whichever row is stored. created
// reports whether this call inserted it.
func (d *Database) CreateThreadIfAbsent(ctx context.Context, thread *models.Thread) (*models.Thread, bool, error) {
	if thread.ID == "" {
		thread.ID = NewID()
	}
	now := time.Now().UTC()
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = now
	}
	thread.UpdatedAt = now

	var affected int64
	err := retryableDBOperation(ctx, func() error {
		res, execErr := d.db.ExecContext(ctx, InsertThreadIfAbsentQuery,
			thread.ID, thread.UserID, thread.AccountID, thread.ExternalSenderID, thread.DisplayLabel,
			thread.SenderDisplayName, thread.HasUnread, thread.CreatedAt.UTC(), thread.UpdatedAt)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	}, "create thread")
	if err != nil {
		return nil, false, err
	}

	stored, err := d.GetThreadBySender(ctx, thread.AccountID, thread.ExternalSenderID)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("thread for account %s vanished after insert", thread.AccountID)
	}
	return stored, affected > 0, nil
}

// GetThreadForUser returns the thread together with its account, or nil when
// the thread does not exist or is not owned by userID.
func (d *Database) GetThreadForUser(ctx context.Context, userID, threadID string) (*models.ThreadWithAccount, error) {
	var a models.Account
	var token string
	t, err := scanThread(d.db.QueryRowContext(ctx, SelectThreadWithAccountQuery, threadID, userID),
		&a.ID, &a.UserID, &a.NetworkKind, &a.ExternalID, &a.DisplayName, &token, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	if a.AccessToken, err = d.encryptor.Decrypt(token); err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	return &models.ThreadWithAccount{Thread: t, Account: &a}, nil
}

func (d *Database) MarkThreadUnread(ctx context.Context, threadID string) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, MarkThreadUnreadQuery, time.Now().UTC(), threadID)
		return err
	}, "mark thread unread")
}

// ClaimUnread clears the unread flag and reports whether it was set. Two
// concurrent claims on one flag never both return true.
func (d *Database) ClaimUnread(ctx context.Context, userID, threadID string) (bool, error) {
	var affected int64
	err := retryableDBOperation(ctx, func() error {
		res, execErr := d.db.ExecContext(ctx, ClaimUnreadQuery, threadID, userID)
		if execErr != nil {
			return execErr
		}
		affected, execErr = res.RowsAffected()
		return execErr
	}, "claim unread")
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// ListThreads returns one page of the user's threads, newest activity first,
// and the total number of matching threads.
func (d *Database) ListThreads(ctx context.Context, q models.ThreadQuery) ([]*models.Thread, int, error) {
	where := ` WHERE t.user_id = ?`
	args := []any{q.UserID}
	if q.Search != "" {
		where += threadSearchClause
		args = append(args, escapeLike(q.Search))
	}

	var total int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM threads t`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count threads: %w", err)
	}

	query := `SELECT ` + threadColumns + ` FROM threads t` + where +
		` ORDER BY t.updated_at DESC, t.rowid DESC LIMIT ? OFFSET ?`
	rows, err := d.db.QueryContext(ctx, query, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var threads []*models.Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan thread: %w", err)
		}
		threads = append(threads, t)
	}
	return threads, total, rows.Err()
}

func (d *Database) DeleteThreadsByAccount(ctx context.Context, accountID string) (int64, error) {
	return d.deleteWhere(ctx, DeleteThreadsByAccountQuery, "delete threads", accountID)
}

func (d *Database) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, InsertMessageQuery,
			msg.ID, msg.UserID, msg.ThreadID, msg.ExternalMessageID,
			msg.Body, msg.IsOutbound, msg.CreatedAt.UTC())
		return err
	}, "create message")
}

// ListMessages returns one page of a thread's messages, newest first.
func (d *Database) ListMessages(ctx context.Context, q models.MessageQuery) ([]*models.Message, int, error) {
	var total int
	if err := d.db.QueryRowContext(ctx, CountMessagesByThreadQuery, q.ThreadID, q.UserID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, SelectMessagesByThreadQuery, q.ThreadID, q.UserID, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.ThreadID, &m.ExternalMessageID,
			&m.Body, &m.IsOutbound, &m.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	return messages, total, rows.Err()
}

func (d *Database) DeleteMessagesByAccount(ctx context.Context, accountID string) (int64, error) {
	return d.deleteWhere(ctx, DeleteMessagesByAccountQuery, "delete messages", accountID)
}

func (d *Database) DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return d.deleteWhere(ctx, DeleteMessagesOlderThanQuery, "purge messages", cutoff.UTC())
}

func (d *Database) deleteWhere(ctx context.Context, query, operationName string, args ...any) (int64, error) {
	var affected int64
	err := retryableDBOperation(ctx, func() error {
		res, err := d.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	}, operationName)
	return affected, err
}
