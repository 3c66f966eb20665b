package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"stagehand/internal/domain"
)

// Repo persists the full action set. The store treats it as a collaborator:
// load the whole ordered record set, save the whole ordered record set.
type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// LoadActions returns all persisted actions in insertion order.
func (r Repo) LoadActions(ctx context.Context) ([]domain.Action, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,name,triggers_json,steps_json,permissions_json FROM actions ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Action
	for rows.Next() {
		var (
			a                               domain.Action
			triggersJSON, stepsJSON, permsJSON string
		)
		if err := rows.Scan(&a.ID, &a.Name, &triggersJSON, &stepsJSON, &permsJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(triggersJSON), &a.Triggers); err != nil {
			return nil, fmt.Errorf("action %s triggers: %w", a.ID, err)
		}
		if err := json.Unmarshal([]byte(stepsJSON), &a.Steps); err != nil {
			return nil, fmt.Errorf("action %s steps: %w", a.ID, err)
		}
		if permsJSON != "" && permsJSON != "null" {
			a.Permissions = &domain.Permissions{}
			if err := json.Unmarshal([]byte(permsJSON), a.Permissions); err != nil {
				return nil, fmt.Errorf("action %s permissions: %w", a.ID, err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveActions overwrites the entire record set in one transaction, preserving
// the slice order as the stored insertion order.
func (r Repo) SaveActions(ctx context.Context, actions []domain.Action) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM actions`); err != nil {
		return fmt.Errorf("clear actions: %w", err)
	}
	now := r.now().UTC().Format(time.RFC3339)
	for i, a := range actions {
		triggersJSON, err := json.Marshal(a.Triggers)
		if err != nil {
			return fmt.Errorf("action %s triggers: %w", a.ID, err)
		}
		stepsJSON, err := json.Marshal(a.Steps)
		if err != nil {
			return fmt.Errorf("action %s steps: %w", a.ID, err)
		}
		permsJSON, err := json.Marshal(a.Permissions)
		if err != nil {
			return fmt.Errorf("action %s permissions: %w", a.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO actions(id,position,name,triggers_json,steps_json,permissions_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
			a.ID, i, a.Name, string(triggersJSON), string(stepsJSON), string(permsJSON), now, now); err != nil {
			return fmt.Errorf("insert action %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}
