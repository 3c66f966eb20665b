package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends telemetry records to the event log: action runs, step
// failures, connection transitions. The log is append-only.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

// Record is one persisted event-log row.
type Record struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts" format:"date-time"`
	Type    string `json:"type"`
	Level   string `json:"level"`
	Source  string `json:"source"`
	Message string `json:"message"`
	Payload string `json:"payload_json"`
}

func (w Writer) Append(ctx context.Context, evtType, level, source, message string, payload Payload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx,
		`INSERT INTO events(ts,type,level,source,message,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, level, source, message, string(data))
	return err
}

// Reader queries the event log.
type Reader struct {
	DB *sql.DB
}

// Tail returns the most recent records, oldest first.
func (r Reader) Tail(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,ts,type,level,source,message,payload_json FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.TS, &rec.Type, &rec.Level, &rec.Source, &rec.Message, &rec.Payload); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// After returns up to limit records with id greater than cursor, oldest first.
func (r Reader) After(ctx context.Context, cursor int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,ts,type,level,source,message,payload_json FROM events WHERE id > ? ORDER BY id LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.TS, &rec.Type, &rec.Level, &rec.Source, &rec.Message, &rec.Payload); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
