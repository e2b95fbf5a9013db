package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"hookrelay.io/internal/apps"
	"hookrelay.io/internal/envelope"
	"hookrelay.io/internal/ids"
	"hookrelay.io/internal/obs"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// PoolConfig tunes the database/sql pool. Zero values keep the defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store persists applications and their secrets in PostgreSQL.
type Store struct {
	db     *sql.DB
	cipher envelope.Cipher
	now    func() time.Time
}

var _ apps.Store = (*Store)(nil)

// ErrNoConnection is returned by every operation on a Store without a database handle.
var ErrNoConnection = errors.New("database connection unavailable")

func Open(dsn string, pool PoolConfig, cipher envelope.Cipher) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if pool.MaxOpenConns <= 0 {
		pool.MaxOpenConns = 50
	}
	if pool.MaxIdleConns <= 0 {
		pool.MaxIdleConns = 25
	}
	if pool.ConnMaxLifetime <= 0 {
		pool.ConnMaxLifetime = 15 * time.Minute
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, cipher), nil
}

// New wraps an existing handle.
func New(db *sql.DB, cipher envelope.Cipher) *Store {
	return &Store{db: db, cipher: cipher, now: time.Now}
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return ErrNoConnection
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Create(ctx context.Context, app *apps.Application) error {
	if s.db == nil {
		return ErrNoConnection
	}
	if err := apps.Prepare(app, s.now()); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		insert into applications (id, org_id, uid, name, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, string(app.ID), string(app.OrgID), nullIfEmpty(string(app.UID)), app.Name, app.CreatedAt, app.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return apps.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *Store) FindApp(ctx context.Context, orgID ids.OrganizationID, idOrUID ids.ApplicationIDOrUID) (*apps.Application, error) {
	if s.db == nil {
		return nil, ErrNoConnection
	}
	row := s.db.QueryRowContext(ctx, `
		select id, org_id, uid, name, created_at, updated_at
		from applications
		where org_id = $1 and (id = $2 or uid = $2)
		limit 1
	`, string(orgID), string(idOrUID))
	app, err := scanApp(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apps.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return app, nil
}

func (s *Store) List(ctx context.Context, orgID ids.OrganizationID) ([]*apps.Application, error) {
	if s.db == nil {
		return nil, ErrNoConnection
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, org_id, uid, name, created_at, updated_at
		from applications
		where org_id = $1
		order by id
	`, string(orgID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*apps.Application
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, app)
	}
	return result, rows.Err()
}

func (s *Store) Delete(ctx context.Context, orgID ids.OrganizationID, appID ids.ApplicationID) error {
	if s.db == nil {
		return ErrNoConnection
	}
	res, err := s.db.ExecContext(ctx, `delete from applications where org_id = $1 and id = $2`, string(orgID), string(appID))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apps.ErrNotFound
	}
	return nil
}

func (s *Store) PutSecret(ctx context.Context, appID ids.ApplicationID, name string, value []byte) error {
	if s.db == nil {
		return ErrNoConnection
	}
	if name == "" {
		return apps.ErrInvalidInput
	}
	sealed, err := s.cipher.Encrypt(value)
	obs.ObserveCipher("encrypt", err)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into app_secrets (app_id, name, value, updated_at)
		values ($1, $2, $3, $4)
		on conflict (app_id, name) do update
		set value = excluded.value, updated_at = excluded.updated_at
	`, string(appID), name, sealed, s.now().UTC())
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return apps.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) GetSecret(ctx context.Context, appID ids.ApplicationID, name string) ([]byte, error) {
	if s.db == nil {
		return nil, ErrNoConnection
	}
	var sealed []byte
	err := s.db.QueryRowContext(ctx, `select value from app_secrets where app_id = $1 and name = $2`, string(appID), name).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apps.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	plain, err := s.cipher.Decrypt(sealed)
	obs.ObserveCipher("decrypt", err)
	return plain, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApp(row scanner) (*apps.Application, error) {
	var (
		app   apps.Application
		id    string
		orgID string
		uid   sql.NullString
	)
	if err := row.Scan(&id, &orgID, &uid, &app.Name, &app.CreatedAt, &app.UpdatedAt); err != nil {
		return nil, err
	}
	app.ID = ids.ApplicationID(id)
	app.OrgID = ids.OrganizationID(orgID)
	if uid.Valid {
		app.UID = ids.ApplicationUID(uid.String)
	}
	return &app, nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
