package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"ChannelPilot/internal/domain"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so repository methods can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store wraps the SQLite handle with typed repository methods.
type Store struct {
	db *sql.DB
}

// New wires a sql.DB opened via Open.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers that manage transactions.
func (s *Store) DB() *sql.DB { return s.db }

// WithTx runs fn inside a transaction and rolls back on error. Transactions
// take the write lock immediately (see Open), so fn observes a stable view.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- channels ---

// InsertChannel adds a new channel row.
func (s *Store) InsertChannel(ctx context.Context, ch domain.Channel) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (id, name, link, category, priority, credibility_score, total_members, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.Name, ch.Link, ch.Category, string(ch.Priority),
		ch.CredibilityScore, ch.TotalMembers, boolToInt(ch.IsActive), now, now)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

// ChannelByLink returns the channel with the given link, or nil.
func (s *Store) ChannelByLink(ctx context.Context, link string) (*domain.Channel, error) {
	return s.channelWhere(ctx, sq.Eq{"link": link})
}

// ChannelByID returns the channel with the given id, or nil.
func (s *Store) ChannelByID(ctx context.Context, id string) (*domain.Channel, error) {
	return s.channelWhere(ctx, sq.Eq{"id": id})
}

func (s *Store) channelWhere(ctx context.Context, pred any) (*domain.Channel, error) {
	query, args, err := sq.Select(channelColumns...).From("channels").Where(pred).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build channel query: %w", err)
	}
	ch, err := scanChannel(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query channel: %w", err)
	}
	return &ch, nil
}

var channelColumns = []string{
	"id", "name", "link", "category", "priority",
	"credibility_score", "total_members", "is_active", "created_at", "updated_at",
}

// ListAvailableChannels returns active channels with no active assignment,
// ordered by priority, credibility and insertion order. The active-assignment
// check always runs against the store, never a cache.
func (s *Store) ListAvailableChannels(ctx context.Context, excluding []string) ([]domain.Channel, error) {
	builder := sq.Select(channelColumns...).
		From("channels").
		Where(sq.Eq{"is_active": 1}).
		Where("NOT EXISTS (SELECT 1 FROM assignments a WHERE a.channel_id = channels.id AND a.status = 'active')").
		OrderBy(
			`CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 WHEN 'low' THEN 2 ELSE 3 END`,
			"credibility_score DESC",
			"rowid ASC",
		)
	if len(excluding) > 0 {
		builder = builder.Where(sq.NotEq{"id": excluding})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build available query: %w", err)
	}
	return s.queryChannels(ctx, query, args...)
}

// ListHighValueChannels returns active channels at or above the credibility
// threshold, best first.
func (s *Store) ListHighValueChannels(ctx context.Context, threshold float64) ([]domain.Channel, error) {
	query, args, err := sq.Select(channelColumns...).
		From("channels").
		Where(sq.Eq{"is_active": 1}).
		Where(sq.GtOrEq{"credibility_score": threshold}).
		OrderBy("credibility_score DESC", "rowid ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build high value query: %w", err)
	}
	return s.queryChannels(ctx, query, args...)
}

func (s *Store) queryChannels(ctx context.Context, query string, args ...any) ([]domain.Channel, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var out []domain.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (domain.Channel, error) {
	var (
		ch       domain.Channel
		priority string
		active   int
	)
	err := row.Scan(&ch.ID, &ch.Name, &ch.Link, &ch.Category, &priority,
		&ch.CredibilityScore, &ch.TotalMembers, &active, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return domain.Channel{}, err
	}
	ch.Priority = domain.Priority(priority)
	ch.IsActive = active == 1
	return ch, nil
}

// UpdateChannelCredibility overwrites the credibility score.
func (s *Store) UpdateChannelCredibility(ctx context.Context, id string, score float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE channels SET credibility_score = ?, updated_at = ? WHERE id = ?`,
		score, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update credibility: %w", err)
	}
	return nil
}

// MarkChannelInactive retires a channel without deleting its history.
func (s *Store) MarkChannelInactive(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE channels SET is_active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark inactive: %w", err)
	}
	return nil
}

// --- accounts ---

// UpsertAccount inserts or refreshes a configured account identity.
func (s *Store) UpsertAccount(ctx context.Context, a domain.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, display_name, status, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET display_name = excluded.display_name, status = excluded.status`,
		a.ID, a.DisplayName, string(a.Status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// ListAccounts returns accounts filtered by status; empty status means all.
func (s *Store) ListAccounts(ctx context.Context, status domain.AccountStatus) ([]domain.Account, error) {
	builder := sq.Select("id", "display_name", "status", "created_at").
		From("accounts").OrderBy("rowid ASC")
	if status != "" {
		builder = builder.Where(sq.Eq{"status": string(status)})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build accounts query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		var (
			a  domain.Account
			st string
		)
		if err := rows.Scan(&a.ID, &a.DisplayName, &st, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.Status = domain.AccountStatus(st)
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- assignments ---

const assignmentColumns = `id, account_id, channel_id, assigned_at, status, last_fetch_at, messages_fetched_total`

// ActiveAssignmentForChannel returns the single active assignment holding the
// channel, or nil. Pass a transaction to re-check under the bind boundary.
func (s *Store) ActiveAssignmentForChannel(ctx context.Context, q DBTX, channelID string) (*domain.Assignment, error) {
	if q == nil {
		q = s.db
	}
	row := q.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE channel_id = ? AND status = 'active'`,
		channelID)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active assignment: %w", err)
	}
	return &a, nil
}

func scanAssignment(row rowScanner) (domain.Assignment, error) {
	var (
		a      domain.Assignment
		status string
		fetch  sql.NullTime
	)
	err := row.Scan(&a.ID, &a.AccountID, &a.ChannelID, &a.AssignedAt, &status, &fetch, &a.MessagesFetchedTotal)
	if err != nil {
		return domain.Assignment{}, err
	}
	a.Status = domain.AssignmentStatus(status)
	if fetch.Valid {
		t := fetch.Time
		a.LastFetchAt = &t
	}
	return a, nil
}

// InsertAssignment persists a new binding. The partial unique index on
// (channel_id, status='active') backstops the in-transaction holder check.
func (s *Store) InsertAssignment(ctx context.Context, q DBTX, a domain.Assignment) error {
	if q == nil {
		q = s.db
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO assignments (id, account_id, channel_id, assigned_at, status, messages_fetched_total)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.AccountID, a.ChannelID, a.AssignedAt, string(a.Status), a.MessagesFetchedTotal)
	if err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

// ReleaseAssignment flips the matching active assignment to released and
// reports whether a row changed.
func (s *Store) ReleaseAssignment(ctx context.Context, q DBTX, accountID, channelID string) (bool, error) {
	if q == nil {
		q = s.db
	}
	res, err := q.ExecContext(ctx,
		`UPDATE assignments SET status = 'released' WHERE account_id = ? AND channel_id = ? AND status = 'active'`,
		accountID, channelID)
	if err != nil {
		return false, fmt.Errorf("release assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("release rows affected: %w", err)
	}
	return n > 0, nil
}

// ListActiveAssignmentsByAccount returns the account's current holdings.
func (s *Store) ListActiveAssignmentsByAccount(ctx context.Context, accountID string) ([]domain.Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE account_id = ? AND status = 'active' ORDER BY assigned_at, rowid`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	var out []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountReleasedForChannel reports prior released bindings for the channel;
// used to distinguish a first bind from a reassignment.
func (s *Store) CountReleasedForChannel(ctx context.Context, q DBTX, channelID string) (int, error) {
	if q == nil {
		q = s.db
	}
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assignments WHERE channel_id = ? AND status = 'released'`,
		channelID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count released: %w", err)
	}
	return n, nil
}

// CountAssignmentsForDay counts bindings an account acquired on a UTC day,
// whatever their current status.
func (s *Store) CountAssignmentsForDay(ctx context.Context, accountID, day string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assignments WHERE account_id = ? AND date(assigned_at) = ?`,
		accountID, day).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count day assignments: %w", err)
	}
	return n, nil
}

// RecordFetch updates fetch bookkeeping on an assignment after a successful
// message pull.
func (s *Store) RecordFetch(ctx context.Context, assignmentID string, at time.Time, messages int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE assignments
		SET last_fetch_at = ?, messages_fetched_total = messages_fetched_total + ?
		WHERE id = ?`,
		at.UTC(), messages, assignmentID)
	if err != nil {
		return fmt.Errorf("record fetch: %w", err)
	}
	return nil
}

// --- quota counters ---

// ConsumeQuota atomically takes n units of the (account, day) counter without
// exceeding limit. Returns false and changes nothing when headroom is short.
func (s *Store) ConsumeQuota(ctx context.Context, q DBTX, accountID, day string, n, limit int) (bool, error) {
	if q == nil {
		q = s.db
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO quota_counters (account_id, day, acquired_count)
		VALUES (?, ?, 0)
		ON CONFLICT (account_id, day) DO NOTHING`,
		accountID, day)
	if err != nil {
		return false, fmt.Errorf("ensure quota row: %w", err)
	}

	res, err := q.ExecContext(ctx, `
		UPDATE quota_counters
		SET acquired_count = acquired_count + ?
		WHERE account_id = ? AND day = ? AND acquired_count + ? <= ?`,
		n, accountID, day, n, limit)
	if err != nil {
		return false, fmt.Errorf("consume quota: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("quota rows affected: %w", err)
	}
	return affected > 0, nil
}

// QuotaCount returns the consumed units for the (account, day) key, zero when
// no counter row exists.
func (s *Store) QuotaCount(ctx context.Context, accountID, day string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT acquired_count FROM quota_counters WHERE account_id = ? AND day = ?`,
		accountID, day).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query quota: %w", err)
	}
	return n, nil
}

// --- assignment history ---

// InsertHistory appends an audit record; history rows are never mutated.
func (s *Store) InsertHistory(ctx context.Context, q DBTX, h domain.HistoryEntry) error {
	if q == nil {
		q = s.db
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO assignment_history (id, account_id, channel_id, action, timestamp, reason)
		VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, h.AccountID, h.ChannelID, string(h.Action), h.Timestamp, h.Reason)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// HistoryForChannel returns the channel's audit trail, oldest first.
func (s *Store) HistoryForChannel(ctx context.Context, channelID string) ([]domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, channel_id, action, timestamp, reason
		 FROM assignment_history WHERE channel_id = ? ORDER BY timestamp, rowid`,
		channelID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		var (
			h      domain.HistoryEntry
			action string
		)
		if err := rows.Scan(&h.ID, &h.AccountID, &h.ChannelID, &action, &h.Timestamp, &h.Reason); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.Action = domain.HistoryAction(action)
		out = append(out, h)
	}
	return out, rows.Err()
}

// --- messages ---

// SaveMessage stores a fetched message with its score; duplicates by
// (channel, message) are ignored so re-fetching a window is idempotent.
func (s *Store) SaveMessage(ctx context.Context, channelID, accountID string, msg domain.RawMessage, score domain.SignalScore) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (channel_id, message_id, sender, message_text, timestamp, is_signal, confidence, fetched_by_account)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (channel_id, message_id) DO NOTHING`,
		channelID, msg.ID, msg.Sender, msg.Text, msg.Timestamp.UTC(),
		boolToInt(score.IsSignal), score.Confidence, accountID)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// CountMessages returns stored message totals for a channel.
func (s *Store) CountMessages(ctx context.Context, channelID string) (total, signals int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(is_signal), 0) FROM messages WHERE channel_id = ?`,
		channelID).Scan(&total, &signals)
	if err != nil {
		return 0, 0, fmt.Errorf("count messages: %w", err)
	}
	return total, signals, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
