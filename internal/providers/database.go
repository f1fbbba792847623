package providers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/config"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/router"
)

// maxResultRows bounds how many rows of a query are read back.
const maxResultRows = 5

var (
	sqlTriggers = regexp.MustCompile(`(?i)\b(run query|mysql)\b`)

	createDatabasePattern = regexp.MustCompile(`(?i)^\s*create\s+(?:a\s+)?database\b(?:\s+for\b)?`)
	createTablePattern    = regexp.MustCompile("(?i)CREATE\\s+TABLE\\s+(?:IF\\s+NOT\\s+EXISTS\\s+)?`?(\\w+)")
	identifierPattern     = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// databasePrefix names databases created on request.
const databasePrefix = "friday_"

// NoSubjectResponse asks for the missing subject of "create a database".
const NoSubjectResponse = "Please specify what the database is for, like students or employees."

// DatabaseServer opens connections and creates databases.
type DatabaseServer interface {
	// Open connects to the named database; "" connects to the server itself.
	Open(name string) (*sql.DB, error)
	CreateDatabase(ctx context.Context, name string) error
}

// SQLRunner executes SQL spoken by the user against a MySQL server.
type SQLRunner struct {
	server DatabaseServer
	gen    router.Answerer

	mu       sync.Mutex
	db       *sql.DB
	database string
}

// NewSQLRunner creates a runner. The connection is opened on first use.
// gen translates natural language to SQL and may be nil.
func NewSQLRunner(cfg config.MySQLConfig, gen router.Answerer) *SQLRunner {
	return NewSQLRunnerWithServer(mysqlServer{cfg: cfg}, cfg.Database, gen)
}

// NewSQLRunnerWithServer creates a runner that starts on database.
func NewSQLRunnerWithServer(server DatabaseServer, database string, gen router.Answerer) *SQLRunner {
	return &SQLRunner{server: server, database: database, gen: gen}
}

// NewSQLRunnerWithDB creates a runner over an open database.
func NewSQLRunnerWithDB(db *sql.DB, gen router.Answerer) *SQLRunner {
	return &SQLRunner{db: db, gen: gen}
}

// DSN returns the driver connection string for cfg.
func DSN(cfg config.MySQLConfig) string {
	return driverConfig(cfg).FormatDSN()
}

func driverConfig(cfg config.MySQLConfig) *mysql.Config {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Database
	mc.Timeout = 5 * time.Second
	mc.ParseTime = true
	return mc
}

// mysqlServer is the DatabaseServer for a MySQL host.
type mysqlServer struct {
	cfg config.MySQLConfig
}

func (m mysqlServer) Open(name string) (*sql.DB, error) {
	if m.cfg.Host == "" {
		return nil, errors.New("mysql host not configured")
	}
	mc := driverConfig(m.cfg)
	mc.DBName = name
	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

func (m mysqlServer) CreateDatabase(ctx context.Context, name string) error {
	db, err := m.Open("")
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS `"+name+"`")
	return err
}

func (r *SQLRunner) conn() (*sql.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db != nil {
		return r.db, nil
	}
	if r.server == nil {
		return nil, errors.New("mysql host not configured")
	}
	db, err := r.server.Open(r.database)
	if err != nil {
		return nil, err
	}
	r.db = db
	return db, nil
}

// Database returns the name of the database statements run against.
func (r *SQLRunner) Database() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.database
}

// Exec runs the statement in utterance after removing the trigger words.
func (r *SQLRunner) Exec(ctx context.Context, utterance string) (string, error) {
	query := strings.TrimSpace(sqlTriggers.ReplaceAllString(utterance, " "))
	if query == "" {
		return "", errors.New("no SQL statement given")
	}
	return r.run(ctx, query)
}

// Translate asks the model for SQL matching utterance and runs it.
// "create a database for <subject>" instead creates friday_<subject> with a
// generated table and switches to it.
func (r *SQLRunner) Translate(ctx context.Context, utterance string) (string, error) {
	if loc := createDatabasePattern.FindStringIndex(utterance); loc != nil {
		return r.createDatabase(ctx, strings.TrimSpace(utterance[loc[1]:]))
	}
	if r.gen == nil {
		return "", router.ErrNotConfigured
	}
	prompt := "Assume the database has tables relevant to the current context. " +
		"Convert the following request to SQL. Reply with the SQL statement only: " + utterance
	out, err := r.gen.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("translate to sql: %w", err)
	}
	query := stripCodeFence(out)
	if query == "" {
		return "", errors.New("model returned no SQL")
	}
	result, err := r.run(ctx, query)
	if err != nil {
		return "", fmt.Errorf("%s: %w", query, err)
	}
	return "SQL: " + query + "\n" + result, nil
}

func (r *SQLRunner) createDatabase(ctx context.Context, subject string) (string, error) {
	subject = strings.TrimRight(strings.ToLower(subject), ".!?")
	if subject == "" {
		return NoSubjectResponse, nil
	}
	name := databasePrefix + strings.Join(strings.Fields(subject), "_")
	if !identifierPattern.MatchString(name) {
		return "", fmt.Errorf("%q is not a valid database name", name)
	}
	if r.gen == nil {
		return "", router.ErrNotConfigured
	}
	if r.server == nil {
		return "", errors.New("mysql host not configured")
	}

	prompt := fmt.Sprintf("Generate a MySQL CREATE TABLE statement for a table called %s "+
		"with appropriate columns. Only output the SQL statement.", subject)
	out, err := r.gen.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate schema: %w", err)
	}
	schema := stripCodeFence(out)
	if schema == "" {
		return "", errors.New("model returned no table schema")
	}
	table := subject
	if m := createTablePattern.FindStringSubmatch(schema); m != nil {
		table = m[1]
	}

	if err := r.server.CreateDatabase(ctx, name); err != nil {
		return "", fmt.Errorf("create database %s: %w", name, err)
	}
	db, err := r.server.Open(name)
	if err != nil {
		return "", fmt.Errorf("connect to %s: %w", name, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return "", fmt.Errorf("create table: %w", err)
	}

	r.mu.Lock()
	prev := r.db
	r.db, r.database = db, name
	r.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return fmt.Sprintf("Database '%s' and table '%s' created. Now using this database.", name, table), nil
}

func (r *SQLRunner) run(ctx context.Context, query string) (string, error) {
	db, err := r.conn()
	if err != nil {
		return "", err
	}
	if returnsRows(query) {
		return r.queryRows(ctx, db, query)
	}
	res, err := db.ExecContext(ctx, query)
	if err != nil {
		return "", err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "Query executed successfully.", nil
	}
	return fmt.Sprintf("Query executed successfully. %d row(s) affected.", n), nil
}

func returnsRows(query string) bool {
	fields := strings.Fields(strings.ToLower(query))
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "select", "show", "describe", "desc", "explain", "with":
		return true
	}
	return false
}

func (r *SQLRunner) queryRows(ctx context.Context, db *sql.DB, query string) (string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}

	var lines []string
	for rows.Next() && len(lines) < maxResultRows {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		parts := make([]string, len(cols))
		for i, col := range cols {
			parts[i] = col + "=" + formatValue(values[i])
		}
		lines = append(lines, strings.Join(parts, ", "))
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "Query ran successfully. No rows returned.", nil
	}
	return strings.Join(lines, "\n"), nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.DateTime)
	default:
		return fmt.Sprint(t)
	}
}

// Close releases the connection pool.
func (r *SQLRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}
