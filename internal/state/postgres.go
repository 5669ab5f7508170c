package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/dirworks/director/internal/models"
)

// PostgresConfig holds connection parameters for PostgresStore, mirroring
// the pool-sizing knobs a production deployment needs.
type PostgresConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns sane defaults for local development.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Database:        "director",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// PostgresStore implements Store against Postgres/CockroachDB via
// database/sql and github.com/lib/pq.
type PostgresStore struct {
	db *sql.DB

	stmtSetVariable  *sql.Stmt
	stmtGetVariable  *sql.Stmt
	stmtGetAllVars   *sql.Stmt
	stmtClearVar     *sql.Stmt
	stmtClearAllVars *sql.Stmt
	stmtGetPlan      *sql.Stmt
	stmtSetPlan      *sql.Stmt
	stmtAppendConv   *sql.Stmt
	stmtGetConvTail  *sql.Stmt
}

// NewPostgresStore opens a connection pool and prepares the store's
// statements. Callers own the returned *sql.DB's lifecycle via Close.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	if config == nil {
		config = DefaultPostgresConfig()
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		config.Host, config.Port, config.User, config.Password,
		config.Database, config.SSLMode, int(config.ConnectTimeout.Seconds()),
	)
	return NewPostgresStoreFromDSN(dsn, config)
}

// NewPostgresStoreFromDSN opens a store from a raw DSN/URL, as used for
// DATABASE_URL-style configuration.
func NewPostgresStoreFromDSN(dsn string, config *PostgresConfig) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) prepareStatements() error {
	var err error
	prep := func(dst **sql.Stmt, query string) {
		if err != nil {
			return
		}
		*dst, err = s.db.Prepare(query)
	}

	prep(&s.stmtSetVariable, `
		INSERT INTO workflow_memory (workflow_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (workflow_id, key) DO UPDATE SET value = EXCLUDED.value
	`)
	prep(&s.stmtGetVariable, `
		SELECT value FROM workflow_memory WHERE workflow_id = $1 AND key = $2
	`)
	prep(&s.stmtGetAllVars, `
		SELECT key, value FROM workflow_memory WHERE workflow_id = $1
	`)
	prep(&s.stmtClearVar, `
		DELETE FROM workflow_memory WHERE workflow_id = $1 AND key = $2
	`)
	prep(&s.stmtClearAllVars, `
		DELETE FROM workflow_memory WHERE workflow_id = $1
	`)
	prep(&s.stmtGetPlan, `
		SELECT data FROM workflow_plans WHERE workflow_id = $1 ORDER BY created_at DESC LIMIT 1
	`)
	prep(&s.stmtSetPlan, `
		INSERT INTO workflow_plans (workflow_id, data, reason, created_at)
		VALUES ($1, $2, $3, $4)
	`)
	prep(&s.stmtAppendConv, `
		INSERT INTO conversation_messages
			(workflow_id, seq, role, content, tool_calls, tool_results, reasoning_encrypted, reasoning_summary, tokens, created_at)
		VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM conversation_messages WHERE workflow_id = $1), $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq
	`)
	prep(&s.stmtGetConvTail, `
		SELECT seq, role, content, tool_calls, tool_results, reasoning_encrypted, reasoning_summary, tokens, created_at
		FROM conversation_messages
		WHERE workflow_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`)
	return err
}

func (s *PostgresStore) UpsertNodes(ctx context.Context, workflowID string, items []UpsertItem) ([]*models.Node, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	existing, err := loadNodesForUpdate(ctx, tx, workflowID)
	if err != nil {
		return nil, err
	}

	result := make([]*models.Node, 0, len(items))
	now := time.Now()

	for _, item := range items {
		if item.Node == nil || len(item.Node.Config) == 0 {
			return nil, ErrInvalidConfig
		}
		switch {
		case item.ReplaceAlias != "" || item.ReplaceID != "":
			target := findNode(existing, item.ReplaceID, item.ReplaceAlias)
			if target == nil {
				return nil, fmt.Errorf("%w: node %q", ErrNotFound, firstNonEmpty(item.ReplaceID, item.ReplaceAlias))
			}
			newAlias := item.Node.Alias
			if newAlias == "" {
				newAlias = target.Alias
			}
			if err := checkAliasUnique(existing, newAlias, target.ID); err != nil {
				return nil, err
			}
			target.Alias = newAlias
			target.Type = item.Node.Type
			target.Config = item.Node.Config
			target.Description = item.Node.Description
			target.StoreVariable = item.Node.StoreVariable
			target.Status = models.NodeStatusPending
			target.Result = nil
			target.UpdatedAt = now
			result = append(result, target.Clone())

		case item.Position != nil:
			pos := *item.Position
			if pos < 1 || pos > len(existing)+1 {
				return nil, fmt.Errorf("%w: position %d (have %d nodes)", ErrRangeError, pos, len(existing))
			}
			if err := checkAliasUnique(existing, item.Node.Alias, ""); err != nil {
				return nil, err
			}
			shift := insertShifter(pos, 1)
			for _, n := range existing {
				if n.Position >= pos {
					n.Position++
				}
				cfg, _, err := rewriteNodeReferences(n.Type, n.Config, shift)
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
				}
				n.Config = cfg
			}
			fresh := item.Node.Clone()
			fresh.WorkflowID = workflowID
			fresh.Position = pos
			if fresh.ID == "" {
				fresh.ID = uuid.NewString()
			}
			fresh.Status = models.NodeStatusPending
			fresh.CreatedAt, fresh.UpdatedAt = now, now
			existing = insertAt(existing, pos-1, fresh)
			result = append(result, fresh.Clone())

		default:
			if err := checkAliasUnique(existing, item.Node.Alias, ""); err != nil {
				return nil, err
			}
			fresh := item.Node.Clone()
			fresh.WorkflowID = workflowID
			fresh.Position = len(existing) + 1
			if fresh.ID == "" {
				fresh.ID = uuid.NewString()
			}
			fresh.Status = models.NodeStatusPending
			fresh.CreatedAt, fresh.UpdatedAt = now, now
			existing = append(existing, fresh)
			result = append(result, fresh.Clone())
		}
	}

	if err := replaceNodes(ctx, tx, workflowID, existing); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return result, nil
}

func (s *PostgresStore) DeleteNodes(ctx context.Context, workflowID string, ids []string, opts DeleteOptions) (*DeleteResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	existing, err := loadNodesForUpdate(ctx, tx, workflowID)
	if err != nil {
		return nil, err
	}

	removeSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		removeSet[id] = true
	}
	if opts.DeleteChildren {
		growRemoveSetWithChildren(existing, removeSet)
	}

	var removedPositions []int
	var removedIDs []string
	for _, n := range existing {
		if removeSet[n.ID] {
			removedPositions = append(removedPositions, n.Position)
			removedIDs = append(removedIDs, n.ID)
		}
	}
	result := &DeleteResult{RemovedIDs: removedIDs}
	if opts.DryRun {
		return result, nil
	}

	survivors := make([]*models.Node, 0, len(existing)-len(removedIDs))
	for _, n := range existing {
		if !removeSet[n.ID] {
			survivors = append(survivors, n)
		}
	}

	shift := deleteShifter(removedPositions)
	rewritten := 0
	for _, n := range survivors {
		newPos, _ := shift(n.Position)
		n.Position = newPos
		if opts.HandleDependencies {
			cfg, changed, err := rewriteNodeReferences(n.Type, n.Config, shift)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
			}
			n.Config = cfg
			rewritten += changed
		}
	}

	if err := replaceNodes(ctx, tx, workflowID, survivors); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	result.RewrittenRefs = rewritten
	return result, nil
}

func (s *PostgresStore) GetNodes(ctx context.Context, workflowID string) ([]*models.Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position, alias, type, config, description, status, result, store_variable, created_at, updated_at
		FROM workflow_nodes WHERE workflow_id = $1 ORDER BY position ASC
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()
	return scanNodes(rows, workflowID)
}

func (s *PostgresStore) GetNode(ctx context.Context, workflowID, idOrAlias string) (*models.Node, error) {
	nodes, err := s.GetNodes(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	n := findNode(nodes, idOrAlias, idOrAlias)
	if n == nil {
		return nil, ErrNotFound
	}
	return n, nil
}

func (s *PostgresStore) SetVariable(ctx context.Context, workflowID, key string, value json.RawMessage) error {
	if _, err := s.stmtSetVariable.ExecContext(ctx, workflowID, key, []byte(value)); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) GetVariable(ctx context.Context, workflowID, key string) (json.RawMessage, error) {
	var raw []byte
	err := s.stmtGetVariable.QueryRowContext(ctx, workflowID, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return json.RawMessage(raw), nil
}

func (s *PostgresStore) GetAllVariables(ctx context.Context, workflowID string) (map[string]json.RawMessage, error) {
	rows, err := s.stmtGetAllVars.QueryContext(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()
	out := map[string]json.RawMessage{}
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		out[key] = json.RawMessage(raw)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ClearVariable(ctx context.Context, workflowID, key string) error {
	if _, err := s.stmtClearVar.ExecContext(ctx, workflowID, key); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) ClearAllVariables(ctx context.Context, workflowID string) error {
	if _, err := s.stmtClearAllVars.ExecContext(ctx, workflowID); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) ClearIterationFor(ctx context.Context, workflowID string, iteratePosition int) error {
	suffix := fmt.Sprintf("%%@iter:%d:%%", iteratePosition)
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM workflow_memory WHERE workflow_id = $1 AND key LIKE $2
	`, workflowID, suffix)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) GetPlan(ctx context.Context, workflowID string) (*models.Plan, error) {
	var raw []byte
	err := s.stmtGetPlan.QueryRowContext(ctx, workflowID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	var plan models.Plan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("%w: decode plan: %v", ErrStorageUnavailable, err)
	}
	return &plan, nil
}

func (s *PostgresStore) SetPlan(ctx context.Context, workflowID string, plan *models.Plan) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	if _, err := s.stmtSetPlan.ExecContext(ctx, workflowID, raw, plan.Notes, time.Now()); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) GetLatestDescription(ctx context.Context, workflowID string) (*models.WorkflowDescription, error) {
	var d models.WorkflowDescription
	err := s.db.QueryRowContext(ctx, `
		SELECT workflow_id, version, data, reason, created_at
		FROM workflow_descriptions WHERE workflow_id = $1
		ORDER BY version DESC LIMIT 1
	`, workflowID).Scan(&d.WorkflowID, &d.Version, &d.Data, &d.Reason, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &d, nil
}

func (s *PostgresStore) AppendDescriptionVersion(ctx context.Context, workflowID, data, reason string) (*models.WorkflowDescription, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	var maxVersion sql.NullInt64
	if err := tx.QueryRowContext(ctx, `
		SELECT MAX(version) FROM workflow_descriptions WHERE workflow_id = $1
	`, workflowID).Scan(&maxVersion); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	version := int(maxVersion.Int64) + 1
	now := time.Now()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO workflow_descriptions (workflow_id, version, data, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, workflowID, version, data, reason, now); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &models.WorkflowDescription{
		WorkflowID: workflowID,
		Version:    version,
		Data:       data,
		Reason:     reason,
		CreatedAt:  now,
	}, nil
}

func (s *PostgresStore) ListDescriptionHistory(ctx context.Context, workflowID string) ([]*models.WorkflowDescription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workflow_id, version, data, reason, created_at
		FROM workflow_descriptions WHERE workflow_id = $1 ORDER BY version ASC
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()
	var out []*models.WorkflowDescription
	for rows.Next() {
		var d models.WorkflowDescription
		if err := rows.Scan(&d.WorkflowID, &d.Version, &d.Data, &d.Reason, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendConversationMessage(ctx context.Context, workflowID string, msg *models.ConversationMessage) error {
	toolCalls, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("encode tool_calls: %w", err)
	}
	toolResults, err := json.Marshal(msg.ToolResults)
	if err != nil {
		return fmt.Errorf("encode tool_results: %w", err)
	}
	tokens, err := json.Marshal(msg.Tokens)
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}
	var seq int64
	err = s.stmtAppendConv.QueryRowContext(ctx, workflowID, string(msg.Role), msg.Content,
		toolCalls, toolResults, msg.ReasoningEncrypted, msg.ReasoningSummary, tokens, time.Now()).Scan(&seq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	msg.Seq = seq
	return nil
}

func (s *PostgresStore) GetConversationHistory(ctx context.Context, workflowID string, limit int) ([]*models.ConversationMessage, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.stmtGetConvTail.QueryContext(ctx, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []*models.ConversationMessage
	for rows.Next() {
		var m models.ConversationMessage
		var role string
		var toolCalls, toolResults, tokens []byte
		if err := rows.Scan(&m.Seq, &role, &m.Content, &toolCalls, &toolResults, &m.ReasoningEncrypted, &m.ReasoningSummary, &tokens, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		m.WorkflowID = workflowID
		m.Role = models.Role(role)
		_ = json.Unmarshal(toolCalls, &m.ToolCalls)
		_ = json.Unmarshal(toolResults, &m.ToolResults)
		_ = json.Unmarshal(tokens, &m.Tokens)
		out = append(out, &m)
	}
	// Rows arrived newest-first; callers expect chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func loadNodesForUpdate(ctx context.Context, tx *sql.Tx, workflowID string) ([]*models.Node, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, position, alias, type, config, description, status, result, store_variable, created_at, updated_at
		FROM workflow_nodes WHERE workflow_id = $1 ORDER BY position ASC FOR UPDATE
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()
	return scanNodes(rows, workflowID)
}

func scanNodes(rows *sql.Rows, workflowID string) ([]*models.Node, error) {
	var out []*models.Node
	for rows.Next() {
		n := &models.Node{WorkflowID: workflowID}
		var config, result []byte
		var typ, status string
		if err := rows.Scan(&n.ID, &n.Position, &n.Alias, &typ, &config, &n.Description, &status, &result, &n.StoreVariable, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		n.Type = models.NodeType(typ)
		n.Status = models.NodeStatus(status)
		n.Config = json.RawMessage(config)
		if len(result) > 0 {
			n.Result = json.RawMessage(result)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// replaceNodes overwrites a workflow's entire node set within tx. Full
// replace is simpler and safe here because UpsertNodes/DeleteNodes already
// hold the row lock from loadNodesForUpdate and the node count per workflow
// is small (tens, not millions).
func replaceNodes(ctx context.Context, tx *sql.Tx, workflowID string, nodes []*models.Node) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_nodes WHERE workflow_id = $1`, workflowID); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO workflow_nodes
			(id, workflow_id, position, alias, type, config, description, status, result, store_variable, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer stmt.Close()

	for _, n := range nodes {
		if _, err := stmt.ExecContext(ctx, n.ID, workflowID, n.Position, n.Alias, string(n.Type),
			[]byte(n.Config), n.Description, string(n.Status), []byte(n.Result), n.StoreVariable, n.CreatedAt, n.UpdatedAt); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
	}
	return nil
}
