package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrForbiddenStatement marks a statement whose effect is not a pure
	// projection. It is a programming defect, fatal to the caller.
	ErrForbiddenStatement = errors.New("forbidden statement")
	// ErrStoreUnavailable marks transient connectivity failures; upstream may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrSchemaMismatch marks a store whose schema does not satisfy the
	// contract tables. Fatal at startup.
	ErrSchemaMismatch = errors.New("store schema mismatch")
)

// ContractTables are the relations the core depends on. Schema() validates
// their presence; the catalogue self-check validates formula columns against
// player_season_stats.
var ContractTables = []string{"players", "teams", "leagues", "seasons", "player_season_stats"}

const statsTable = "player_season_stats"

var forbiddenKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true,
	"ALTER": true, "CREATE": true, "TRUNCATE": true, "GRANT": true,
	"REVOKE": true, "COPY": true, "MERGE": true, "VACUUM": true,
}

type Config struct {
	PoolSize       int
	AcquireTimeout time.Duration
}

// Gateway is the only component that speaks SQL. Every statement passes the
// projection check and runs inside a read-only transaction; the session pool
// is bounded and acquisition times out.
type Gateway struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewGateway(db *sqlx.DB, cfg Config) *Gateway {
	poolSize := cfg.PoolSize
	if poolSize < 1 {
		poolSize = 8
	}
	timeout := cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)

	return &Gateway{db: db, timeout: timeout}
}

// Table is a materialised projection result. Row values are indexed by the
// Columns order; RowMap builds a name-indexed view of one row. Callers must
// not assume anything beyond this materialisation.
type Table struct {
	Columns []string
	Rows    [][]any
}

func (t *Table) Len() int { return len(t.Rows) }

func (t *Table) RowMap(i int) map[string]any {
	out := make(map[string]any, len(t.Columns))
	for c, name := range t.Columns {
		out[name] = t.Rows[i][c]
	}
	return out
}

// Fetch executes a parameterised projection. Parameters are bound by name;
// string interpolation never happens here. Statements that are not pure
// projections are rejected with ErrForbiddenStatement before touching the
// store.
func (g *Gateway) Fetch(ctx context.Context, template string, params map[string]any) (*Table, error) {
	table := &Table{}
	err := g.FetchEach(ctx, template, params, func(columns []string, row []any) error {
		if table.Columns == nil {
			table.Columns = columns
		}
		table.Rows = append(table.Rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

// FetchEach is the streaming variant: fn is invoked per row while the cursor
// is open. Returning an error from fn aborts the scan and the transaction.
func (g *Gateway) FetchEach(ctx context.Context, template string, params map[string]any, fn func(columns []string, row []any) error) error {
	if err := inspectStatement(template); err != nil {
		return err
	}
	if params == nil {
		params = map[string]any{}
	}

	acquireCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	tx, err := g.db.BeginTxx(acquireCtx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("%w: begin read-only tx: %w", ErrStoreUnavailable, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := sqlx.NamedQueryContext(ctx, tx, template, params)
	if err != nil {
		return fmt.Errorf("execute projection: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("read result columns: %w", err)
	}

	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		if err := fn(columns, values); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rows: %w", err)
	}

	return nil
}

// SchemaDescriptor lists table and column names known to the gateway. Types
// are inferred by callers; names are the contract.
type SchemaDescriptor struct {
	Tables map[string]map[string]bool
}

func (s SchemaDescriptor) HasTable(table string) bool {
	cols, ok := s.Tables[table]
	return ok && len(cols) > 0
}

// StatColumns returns the player_season_stats column set, the namespace every
// catalogue formula resolves against.
func (s SchemaDescriptor) StatColumns() map[string]bool {
	return s.Tables[statsTable]
}

// Schema reads the contract tables from information_schema. A missing
// contract table is a deployment defect and reports ErrSchemaMismatch.
func (g *Gateway) Schema(ctx context.Context) (SchemaDescriptor, error) {
	const template = `SELECT table_name, column_name
FROM information_schema.columns
WHERE table_schema = 'public' AND table_name IN ('players', 'teams', 'leagues', 'seasons', 'player_season_stats')
ORDER BY table_name, ordinal_position`

	descriptor := SchemaDescriptor{Tables: make(map[string]map[string]bool, len(ContractTables))}
	err := g.FetchEach(ctx, template, nil, func(_ []string, row []any) error {
		if len(row) != 2 {
			return fmt.Errorf("unexpected schema row width %d", len(row))
		}
		table := asString(row[0])
		column := asString(row[1])
		if descriptor.Tables[table] == nil {
			descriptor.Tables[table] = make(map[string]bool)
		}
		descriptor.Tables[table][column] = true
		return nil
	})
	if err != nil {
		return SchemaDescriptor{}, err
	}

	for _, table := range ContractTables {
		if !descriptor.HasTable(table) {
			return SchemaDescriptor{}, fmt.Errorf("%w: missing table %s", ErrSchemaMismatch, table)
		}
	}

	return descriptor, nil
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// inspectStatement is the statement-level defensive layer: the template must
// begin with a projection keyword and must not contain a mutation keyword
// anywhere outside string literals. Session read-only mode and database
// privileges back this up.
func inspectStatement(template string) error {
	tokens := keywordTokens(template)
	if len(tokens) == 0 {
		return fmt.Errorf("%w: empty statement", ErrForbiddenStatement)
	}
	if tokens[0] != "SELECT" && tokens[0] != "WITH" {
		return fmt.Errorf("%w: statement must begin with a projection keyword, got %s", ErrForbiddenStatement, tokens[0])
	}
	for _, tok := range tokens {
		if forbiddenKeywords[tok] {
			return fmt.Errorf("%w: mutation keyword %s", ErrForbiddenStatement, tok)
		}
	}
	return nil
}

// keywordTokens extracts upper-cased word tokens, skipping single-quoted
// literals so data containing keyword-like text does not trip the check.
func keywordTokens(template string) []string {
	var tokens []string
	var current strings.Builder
	inLiteral := false

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, strings.ToUpper(current.String()))
			current.Reset()
		}
	}

	for _, r := range template {
		if inLiteral {
			if r == '\'' {
				inLiteral = false
			}
			continue
		}
		switch {
		case r == '\'':
			inLiteral = true
			flush()
		case r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	return tokens
}
