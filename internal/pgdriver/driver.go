// Package pgdriver executes translated Cypher against a Postgres
// database and exposes the direct node/edge helpers that bypass the
// translator. The translator core stays free of I/O and logging; both
// live here.
package pgdriver

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	cyphergres "github.com/ritamzico/cyphergres"
)

// Driver wraps a database handle with a tenant id. All statements it
// issues are scoped to that tenant.
type Driver struct {
	db      *sql.DB
	groupID string
	log     *logrus.Logger
}

// Open connects to Postgres and returns a tenant-scoped driver.
func Open(dsn, groupID string, log *logrus.Logger) (*Driver, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return New(db, groupID, log), nil
}

// New wraps an existing handle; used directly by tests.
func New(db *sql.DB, groupID string, log *logrus.Logger) *Driver {
	if log == nil {
		log = logrus.New()
	}
	return &Driver{db: db, groupID: groupID, log: log}
}

// Close releases the underlying handle.
func (d *Driver) Close() error {
	return d.db.Close()
}

// GroupID is the tenant this driver is scoped to.
func (d *Driver) GroupID() string {
	return d.groupID
}

// QueryCypher translates and runs a reading query, returning one map
// per row keyed by output column name. Parse errors propagate; there is
// no fallback translator.
func (d *Driver) QueryCypher(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	sqlText, args, err := cyphergres.Translate(query, params, d.groupID)
	if err != nil {
		return nil, err
	}
	d.log.WithFields(logrus.Fields{"sql": sqlText, "params": len(args)}).Debug("translated cypher")

	rows, err := d.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// ExecCypher translates and runs a writing query, returning the number
// of affected rows.
func (d *Driver) ExecCypher(ctx context.Context, query string, params map[string]any) (int64, error) {
	sqlText, args, err := cyphergres.Translate(query, params, d.groupID)
	if err != nil {
		return 0, err
	}
	d.log.WithFields(logrus.Fields{"sql": sqlText, "params": len(args)}).Debug("translated cypher")

	res, err := d.db.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return 0, fmt.Errorf("execute: %w", err)
	}
	return res.RowsAffected()
}

func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Node is a row of the nodes table.
type Node struct {
	UUID       string
	Type       string
	Name       string
	Summary    string
	Properties map[string]any
}

// Edge is a row of the edges table.
type Edge struct {
	UUID         string
	Source       string
	Target       string
	RelationType string
	Fact         string
	Properties   map[string]any
}

// SaveNode upserts a node keyed on uuid, assigning one when missing.
func (d *Driver) SaveNode(ctx context.Context, n *Node) error {
	if n.UUID == "" {
		n.UUID = uuid.NewString()
	}
	props, err := marshalProps(n.Properties)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO nodes (uuid, type, group_id, name, summary, properties) VALUES ($1, $2, $3, $4, $5, $6) `+
			`ON CONFLICT (uuid) DO UPDATE SET type = $2, name = $4, summary = $5, properties = $6`,
		n.UUID, n.Type, d.groupID, n.Name, n.Summary, props)
	if err != nil {
		return fmt.Errorf("save node %s: %w", n.UUID, err)
	}
	return nil
}

// GetNode loads one node by uuid within the driver's tenant.
func (d *Driver) GetNode(ctx context.Context, id string) (*Node, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT uuid, type, name, summary, properties FROM nodes WHERE uuid = $1 AND group_id = $2`,
		id, d.groupID)
	var n Node
	var props []byte
	if err := row.Scan(&n.UUID, &n.Type, &n.Name, &n.Summary, &props); err != nil {
		return nil, err
	}
	if len(props) > 0 {
		if err := json.Unmarshal(props, &n.Properties); err != nil {
			return nil, fmt.Errorf("node %s properties: %w", n.UUID, err)
		}
	}
	return &n, nil
}

// DeleteNode removes a node and its incident edges.
func (d *Driver) DeleteNode(ctx context.Context, id string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM edges WHERE (source = $1 OR target = $1) AND group_id = $2`, id, d.groupID); err != nil {
		return fmt.Errorf("delete edges of %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM nodes WHERE uuid = $1 AND group_id = $2`, id, d.groupID); err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	return tx.Commit()
}

// SaveEdge upserts an edge keyed on uuid, assigning one when missing.
func (d *Driver) SaveEdge(ctx context.Context, e *Edge) error {
	if e.UUID == "" {
		e.UUID = uuid.NewString()
	}
	props, err := marshalProps(e.Properties)
	if err != nil {
		return err
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT INTO edges (uuid, source, target, relation_type, group_id, fact, properties) VALUES ($1, $2, $3, $4, $5, $6, $7) `+
			`ON CONFLICT (uuid) DO UPDATE SET source = $2, target = $3, relation_type = $4, fact = $6, properties = $7`,
		e.UUID, e.Source, e.Target, e.RelationType, d.groupID, e.Fact, props)
	if err != nil {
		return fmt.Errorf("save edge %s: %w", e.UUID, err)
	}
	return nil
}

func marshalProps(props map[string]any) ([]byte, error) {
	if props == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("marshal properties: %w", err)
	}
	return b, nil
}
