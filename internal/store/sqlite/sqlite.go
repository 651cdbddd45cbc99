package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/distirc/internal/model"
	"github.com/vovakirdan/distirc/internal/store"
)

const schema = `
	CREATE TABLE IF NOT EXISTS lines (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		buf_kind TEXT NOT NULL,
		buf_name TEXT NOT NULL DEFAULT '',
		ts       INTEGER NOT NULL,
		type     TEXT NOT NULL,
		sender   TEXT NOT NULL DEFAULT '',
		body     TEXT NOT NULL DEFAULT '',
		reason   TEXT NOT NULL DEFAULT '',
		msg_kind TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS lines_buffer ON lines (buf_kind, buf_name, id);
`

// Line types as stored in the type column.
const (
	typeMessage = "message"
	typeJoin    = "join"
	typePart    = "part"
	typeNotice  = "notice"
	typeTopic   = "topic"
)

// SQLiteStore implements store.LineStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.LineStore = (*SQLiteStore)(nil)

// New opens the archive at dbPath, creating the schema if needed.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveLine appends a line to the archive.
func (s *SQLiteStore) SaveLine(ctx context.Context, key model.BufKey, line model.Line) error {
	row, err := encodeLine(line)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO lines (buf_kind, buf_name, ts, type, sender, body, reason, msg_kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		key.Kind.String(), key.Name, line.Time.UnixMilli(),
		row.typ, row.sender, row.body, row.reason, row.msgKind,
	)
	if err != nil {
		return fmt.Errorf("insert line: %w", err)
	}
	return nil
}

// ListLines retrieves archived lines of a buffer with pagination.
func (s *SQLiteStore) ListLines(ctx context.Context, key model.BufKey, limit int, beforeID *int64) ([]*store.Record, error) {
	var query string
	var args []interface{}

	if beforeID != nil {
		query = `
			SELECT id, ts, type, sender, body, reason, msg_kind
			FROM lines
			WHERE buf_kind = ? AND buf_name = ? AND id < ?
			ORDER BY id DESC
			LIMIT ?
		`
		args = []interface{}{key.Kind.String(), key.Name, *beforeID, limit}
	} else {
		query = `
			SELECT id, ts, type, sender, body, reason, msg_kind
			FROM lines
			WHERE buf_kind = ? AND buf_name = ?
			ORDER BY id DESC
			LIMIT ?
		`
		args = []interface{}{key.Kind.String(), key.Name, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query lines: %w", err)
	}
	defer rows.Close()

	var records []*store.Record
	for rows.Next() {
		var (
			rec store.Record
			ts  int64
			row lineRow
		)
		if err := rows.Scan(&rec.ID, &ts, &row.typ, &row.sender, &row.body, &row.reason, &row.msgKind); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		data, err := row.decode()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", rec.ID, err)
		}
		rec.Key = key
		rec.Line = model.NewLine(time.UnixMilli(ts), data)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lines: %w", err)
	}

	// Reverse to get chronological order
	for i := range len(records) / 2 {
		j := len(records) - 1 - i
		records[i], records[j] = records[j], records[i]
	}

	return records, nil
}

// ListBuffers lists the buffers that have archived lines.
func (s *SQLiteStore) ListBuffers(ctx context.Context) ([]model.BufKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT buf_kind, buf_name FROM lines ORDER BY buf_kind, buf_name`)
	if err != nil {
		return nil, fmt.Errorf("query buffers: %w", err)
	}
	defer rows.Close()

	var keys []model.BufKey
	for rows.Next() {
		var kind, name string
		if err := rows.Scan(&kind, &name); err != nil {
			return nil, fmt.Errorf("scan buffer: %w", err)
		}
		k, err := model.ParseBufKind(kind)
		if err != nil {
			return nil, err
		}
		key, err := model.NewBufKey(k, name)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buffers: %w", err)
	}
	return keys, nil
}

type lineRow struct {
	typ     string
	sender  string
	body    string
	reason  string
	msgKind string
}

func encodeLine(line model.Line) (lineRow, error) {
	switch d := line.Data.(type) {
	case model.Message:
		return lineRow{typ: typeMessage, sender: d.From, body: d.Text, msgKind: d.Kind.String()}, nil
	case model.Join:
		return lineRow{typ: typeJoin, sender: d.User}, nil
	case model.Part:
		return lineRow{typ: typePart, sender: d.User, reason: d.Reason}, nil
	case model.Notice:
		return lineRow{typ: typeNotice, body: d.Text}, nil
	case model.Topic:
		return lineRow{typ: typeTopic, sender: d.User, body: d.Text}, nil
	default:
		return lineRow{}, fmt.Errorf("unsupported line data %T", line.Data)
	}
}

func (r lineRow) decode() (model.LineData, error) {
	switch r.typ {
	case typeMessage:
		return model.Message{From: r.sender, Text: r.body, Kind: model.ParseMsgKind(r.msgKind)}, nil
	case typeJoin:
		return model.Join{User: r.sender}, nil
	case typePart:
		return model.Part{User: r.sender, Reason: r.reason}, nil
	case typeNotice:
		return model.Notice{Text: r.body}, nil
	case typeTopic:
		return model.Topic{User: r.sender, Text: r.body}, nil
	default:
		return nil, fmt.Errorf("unknown line type %q", r.typ)
	}
}
