package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"blogapi/domain/entities"
	"blogapi/domain/services"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/golang-module/carbon/v2"
	"github.com/gouniverse/uid"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

var _ services.Storage = (*Storage)(nil)

const dialect = "sqlite3"

const (
	columnSeq             = "seq"
	columnID              = "id"
	columnAuthorFirstName = "author_first_name"
	columnAuthorLastName  = "author_last_name"
	columnTitle           = "title"
	columnContent         = "content"
	columnCreated         = "created"
)

// row mirrors a table row. Created is a carbon date-time string in UTC.
type row struct {
	Seq             int64  `db:"seq" goqu:"skipinsert"`
	ID              string `db:"id"`
	AuthorFirstName string `db:"author_first_name"`
	AuthorLastName  string `db:"author_last_name"`
	Title           string `db:"title"`
	Content         string `db:"content"`
	Created         string `db:"created"`
}

func (r row) post() entities.Post {
	return entities.Post{
		Id: r.ID,
		Author: entities.Author{
			FirstName: r.AuthorFirstName,
			LastName:  r.AuthorLastName,
		},
		Title:   r.Title,
		Content: r.Content,
		Created: carbon.Parse(r.Created, carbon.UTC).StdTime(),
	}
}

// Open opens the SQLite database at dsn. The pool holds a single connection:
// SQLite allows one writer at a time, and every connection to a ":memory:"
// DSN would otherwise get a database of its own.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database %q: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewStorageOptions define the options for creating a new post storage
type NewStorageOptions struct {
	DB                 *sql.DB
	TableName          string
	AutomigrateEnabled bool
	DebugEnabled       bool
}

// Storage keeps posts in a SQLite table. The database handle is owned by the
// caller.
type Storage struct {
	db        *sql.DB
	gdb       *goqu.Database
	tableName string
}

// NewStorage creates a new post storage, creating the table first when
// automigration is enabled.
func NewStorage(opts NewStorageOptions) (*Storage, error) {
	if opts.DB == nil {
		return nil, errors.New("sqlite storage: DB is required")
	}
	if opts.TableName == "" {
		opts.TableName = "posts"
	}

	s := &Storage{
		db:        opts.DB,
		gdb:       goqu.New(dialect, opts.DB),
		tableName: opts.TableName,
	}
	if opts.DebugEnabled {
		s.gdb.Logger(debugLogger{})
	}

	if opts.AutomigrateEnabled {
		if err := s.AutoMigrate(context.Background()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AutoMigrate creates the posts table if it does not exist.
func (s *Storage) AutoMigrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.sqlCreateTable()); err != nil {
		return fmt.Errorf("creating table %q: %w", s.tableName, err)
	}
	return nil
}

func (s *Storage) sqlCreateTable() string {
	return `CREATE TABLE IF NOT EXISTS ` + quoteIdentifier(s.tableName) + ` (
	` + columnSeq + ` INTEGER PRIMARY KEY AUTOINCREMENT,
	` + columnID + ` TEXT NOT NULL UNIQUE,
	` + columnAuthorFirstName + ` TEXT NOT NULL,
	` + columnAuthorLastName + ` TEXT NOT NULL,
	` + columnTitle + ` TEXT NOT NULL,
	` + columnContent + ` TEXT NOT NULL,
	` + columnCreated + ` TEXT NOT NULL
)`
}

func (s *Storage) GetPosts(ctx context.Context) ([]entities.Post, error) {
	var rows []row
	err := s.gdb.From(s.tableName).
		Prepared(true).
		Order(goqu.C(columnSeq).Asc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}

	return lo.Map(rows, func(r row, _ int) entities.Post {
		return r.post()
	}), nil
}

func (s *Storage) GetPost(ctx context.Context, id string) (*entities.Post, error) {
	var r row
	found, err := s.gdb.From(s.tableName).
		Prepared(true).
		Where(goqu.C(columnID).Eq(id)).
		ScanStructContext(ctx, &r)
	if err != nil {
		return nil, fmt.Errorf("getting post %q: %w", id, err)
	}
	if !found {
		return nil, fmt.Errorf("%q: %w", id, services.ErrPostNotFound)
	}

	post := r.post()
	return &post, nil
}

func (s *Storage) StorePost(ctx context.Context, post *entities.Post) error {
	r := row{
		ID:              uid.HumanUid(),
		AuthorFirstName: post.Author.FirstName,
		AuthorLastName:  post.Author.LastName,
		Title:           post.Title,
		Content:         post.Content,
		Created:         carbon.Now(carbon.UTC).ToDateTimeString(),
	}

	_, err := s.gdb.Insert(s.tableName).
		Prepared(true).
		Rows(r).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("storing post: %w", err)
	}

	*post = r.post()
	return nil
}

func (s *Storage) EditPost(ctx context.Context, id string, changes entities.PostChanges) error {
	if changes.Empty() {
		_, err := s.GetPost(ctx, id)
		return err
	}

	record := goqu.Record{}
	if changes.Title != nil {
		record[columnTitle] = *changes.Title
	}
	if changes.Content != nil {
		record[columnContent] = *changes.Content
	}

	res, err := s.gdb.Update(s.tableName).
		Prepared(true).
		Set(record).
		Where(goqu.C(columnID).Eq(id)).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("editing post %q: %w", id, err)
	}
	return expectAffected(res, id)
}

func (s *Storage) DeletePost(ctx context.Context, id string) error {
	res, err := s.gdb.Delete(s.tableName).
		Prepared(true).
		Where(goqu.C(columnID).Eq(id)).
		Executor().
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("deleting post %q: %w", id, err)
	}
	return expectAffected(res, id)
}

// DropTable removes the posts table and everything in it.
func (s *Storage) DropTable(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+quoteIdentifier(s.tableName)); err != nil {
		return fmt.Errorf("dropping table %q: %w", s.tableName, err)
	}
	return nil
}

func expectAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%q: %w", id, services.ErrPostNotFound)
	}
	return nil
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// debugLogger routes goqu's SQL log to logrus at debug level.
type debugLogger struct{}

func (debugLogger) Printf(format string, v ...interface{}) {
	log.Debugf(format, v...)
}
