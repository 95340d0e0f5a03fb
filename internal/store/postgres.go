package store

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/agency-crm/internal/db"
	"github.com/sells-group/agency-crm/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// psql builds queries with Postgres dollar placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., the backup service's connection introspection).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS companies (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	domain         TEXT NOT NULL DEFAULT '',
	phone          TEXT NOT NULL DEFAULT '',
	city           TEXT NOT NULL DEFAULT '',
	country        TEXT NOT NULL DEFAULT '',
	size           TEXT,
	type           TEXT NOT NULL DEFAULT 'PROSPECT',
	source         TEXT NOT NULL DEFAULT 'MANUAL',
	annual_revenue NUMERIC NOT NULL DEFAULT 0,
	owner_id       TEXT NOT NULL REFERENCES users(id),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contacts (
	id         TEXT PRIMARY KEY,
	first_name TEXT NOT NULL DEFAULT '',
	last_name  TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	phone      TEXT NOT NULL DEFAULT '',
	job_title  TEXT NOT NULL DEFAULT '',
	company_id TEXT REFERENCES companies(id) ON DELETE SET NULL,
	owner_id   TEXT NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS deals (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	value               NUMERIC NOT NULL DEFAULT 0,
	currency            TEXT NOT NULL DEFAULT 'USD',
	probability         INT NOT NULL DEFAULT 0 CHECK (probability BETWEEN 0 AND 100),
	weighted_value      NUMERIC NOT NULL DEFAULT 0,
	stage               TEXT NOT NULL DEFAULT 'INQUIRY',
	expected_close_date TIMESTAMPTZ,
	actual_close_date   TIMESTAMPTZ,
	closed_status       TEXT NOT NULL DEFAULT '',
	lost_reason         TEXT NOT NULL DEFAULT '',
	lost_reason_note    TEXT NOT NULL DEFAULT '',
	owner_id            TEXT NOT NULL REFERENCES users(id),
	company_id          TEXT NOT NULL REFERENCES companies(id),
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	stage_changed_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS deal_stage_history (
	id         TEXT PRIMARY KEY,
	deal_id    TEXT NOT NULL REFERENCES deals(id) ON DELETE CASCADE,
	from_stage TEXT,
	to_stage   TEXT NOT NULL,
	changed_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	company_id TEXT REFERENCES companies(id) ON DELETE CASCADE,
	contact_id TEXT REFERENCES contacts(id) ON DELETE CASCADE,
	deal_id    TEXT REFERENCES deals(id) ON DELETE CASCADE,
	author_id  TEXT NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS activities (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	subject    TEXT NOT NULL,
	due_at     TIMESTAMPTZ,
	done       BOOLEAN NOT NULL DEFAULT FALSE,
	company_id TEXT REFERENCES companies(id) ON DELETE CASCADE,
	contact_id TEXT REFERENCES contacts(id) ON DELETE CASCADE,
	deal_id    TEXT REFERENCES deals(id) ON DELETE CASCADE,
	owner_id   TEXT NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_companies_name ON companies(lower(name));
CREATE INDEX IF NOT EXISTS idx_contacts_company_id ON contacts(company_id);
CREATE INDEX IF NOT EXISTS idx_deals_stage ON deals(stage);
CREATE INDEX IF NOT EXISTS idx_deals_company_id ON deals(company_id);
CREATE INDEX IF NOT EXISTS idx_stage_history_deal ON deal_stage_history(deal_id, created_at);
CREATE INDEX IF NOT EXISTS idx_activities_owner ON activities(owner_id, done);
`

// Migrate applies the schema. An advisory lock prevents concurrent migration
// runs from overlapping deploys.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock(7230114)"); err != nil {
		return eris.Wrap(err, "postgres: acquire migration advisory lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_unlock(7230114)"); err != nil {
			log.Warn("failed to release migration advisory lock", zap.Error(err))
		}
	}()

	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt,
	)
	return eris.Wrap(err, "postgres: create user")
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE id = $1`, id))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE lower(email) = lower($1)`, email))
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan user")
	}
	return &u, nil
}

// --- Companies ---

const companyColumns = `id, name, domain, phone, city, country, size, type, source, annual_revenue::text, owner_id, created_at, updated_at`

func (s *PostgresStore) CreateCompany(ctx context.Context, c *model.Company) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO companies (id, name, domain, phone, city, country, size, type, source, annual_revenue, owner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.Name, c.Domain, c.Phone, c.City, c.Country, sizePtr(c.Size),
		string(c.Type), string(c.Source), c.AnnualRevenue.String(), c.OwnerID,
		c.CreatedAt, c.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: create company")
}

func (s *PostgresStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	return scanCompany(s.pool.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
}

func (s *PostgresStore) GetCompanyByName(ctx context.Context, name string) (*model.Company, error) {
	return scanCompany(s.pool.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE lower(name) = lower($1) LIMIT 1`, name))
}

func (s *PostgresStore) AnyCompany(ctx context.Context) (*model.Company, error) {
	return scanCompany(s.pool.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies ORDER BY created_at LIMIT 1`))
}

func (s *PostgresStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error) {
	q := psql.Select(companyColumns).From("companies").OrderBy("created_at DESC")
	if filter.Type != "" {
		q = q.Where(sq.Eq{"type": string(filter.Type)})
	}
	if filter.Search != "" {
		q = q.Where(sq.ILike{"name": "%" + filter.Search + "%"})
	}
	q = paginate(q, filter.Limit, filter.Offset)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list companies")
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var out []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list companies rows")
}

func (s *PostgresStore) UpdateCompany(ctx context.Context, c *model.Company) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET name = $1, domain = $2, phone = $3, city = $4, country = $5,
		 size = $6, type = $7, source = $8, annual_revenue = $9, owner_id = $10, updated_at = $11
		 WHERE id = $12`,
		c.Name, c.Domain, c.Phone, c.City, c.Country, sizePtr(c.Size),
		string(c.Type), string(c.Source), c.AnnualRevenue.String(), c.OwnerID,
		c.UpdatedAt, c.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update company")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteCompany(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "postgres: delete company")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCompany(row rowScanner) (*model.Company, error) {
	var (
		c       model.Company
		size    *string
		revenue string
		typ     string
		source  string
	)
	err := row.Scan(&c.ID, &c.Name, &c.Domain, &c.Phone, &c.City, &c.Country,
		&size, &typ, &source, &revenue, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan company")
	}
	if size != nil {
		sz := model.CompanySize(*size)
		c.Size = &sz
	}
	c.Type = model.CompanyType(typ)
	c.Source = model.CompanySource(source)
	c.AnnualRevenue, err = decimal.NewFromString(revenue)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: parse annual revenue %q", revenue)
	}
	return &c, nil
}

func sizePtr(size *model.CompanySize) *string {
	if size == nil {
		return nil
	}
	s := string(*size)
	return &s
}

// --- Contacts ---

const contactColumns = `id, first_name, last_name, email, phone, job_title, company_id, owner_id, created_at, updated_at`

func (s *PostgresStore) CreateContact(ctx context.Context, c *model.Contact) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contacts (id, first_name, last_name, email, phone, job_title, company_id, owner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.FirstName, c.LastName, c.Email, c.Phone, c.JobTitle,
		c.CompanyID, c.OwnerID, c.CreatedAt, c.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: create contact")
}

func (s *PostgresStore) GetContact(ctx context.Context, id string) (*model.Contact, error) {
	return scanContact(s.pool.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id))
}

func (s *PostgresStore) ListContacts(ctx context.Context, filter ContactFilter) ([]model.Contact, error) {
	q := psql.Select(contactColumns).From("contacts").OrderBy("created_at DESC")
	if filter.CompanyID != "" {
		q = q.Where(sq.Eq{"company_id": filter.CompanyID})
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where(sq.Or{
			sq.ILike{"first_name": pattern},
			sq.ILike{"last_name": pattern},
			sq.ILike{"email": pattern},
		})
	}
	q = paginate(q, filter.Limit, filter.Offset)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list contacts")
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contacts")
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list contacts rows")
}

func (s *PostgresStore) UpdateContact(ctx context.Context, c *model.Contact) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contacts SET first_name = $1, last_name = $2, email = $3, phone = $4,
		 job_title = $5, company_id = $6, owner_id = $7, updated_at = $8 WHERE id = $9`,
		c.FirstName, c.LastName, c.Email, c.Phone, c.JobTitle, c.CompanyID,
		c.OwnerID, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update contact")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteContact(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "postgres: delete contact")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanContact(row rowScanner) (*model.Contact, error) {
	var c model.Contact
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone,
		&c.JobTitle, &c.CompanyID, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan contact")
	}
	return &c, nil
}

// --- Deals ---

const dealColumns = `id, name, value::text, currency, probability, weighted_value::text, stage,
	expected_close_date, actual_close_date, closed_status, lost_reason, lost_reason_note,
	owner_id, company_id, created_at, updated_at, stage_changed_at`

func (s *PostgresStore) CreateDealWithHistory(ctx context.Context, d *model.Deal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin create deal")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO deals (id, name, value, currency, probability, weighted_value, stage,
		 expected_close_date, actual_close_date, closed_status, lost_reason, lost_reason_note,
		 owner_id, company_id, created_at, updated_at, stage_changed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		d.ID, d.Name, d.Value.String(), d.Currency, d.Probability,
		d.WeightedValue.String(), string(d.Stage), d.ExpectedCloseDate,
		d.ActualCloseDate, string(d.ClosedStatus), string(d.LostReason),
		d.LostReasonNote, d.OwnerID, d.CompanyID, d.CreatedAt, d.UpdatedAt,
		d.StageChangedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert deal")
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO deal_stage_history (id, deal_id, from_stage, to_stage, changed_by, created_at)
		 VALUES ($1, $2, NULL, $3, $4, $5)`,
		newID(), d.ID, string(d.Stage), d.OwnerID, d.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert creation history")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit create deal")
}

func (s *PostgresStore) GetDeal(ctx context.Context, id string) (*model.Deal, error) {
	return scanDeal(s.pool.QueryRow(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE id = $1`, id))
}

func (s *PostgresStore) ListDeals(ctx context.Context, filter DealFilter) ([]model.Deal, error) {
	q := psql.Select(dealColumns).From("deals").OrderBy("created_at DESC")
	if filter.Stage != "" {
		q = q.Where(sq.Eq{"stage": string(filter.Stage)})
	}
	if filter.ClosedStatus != "" {
		q = q.Where(sq.Eq{"closed_status": string(filter.ClosedStatus)})
	}
	if filter.CompanyID != "" {
		q = q.Where(sq.Eq{"company_id": filter.CompanyID})
	}
	q = paginate(q, filter.Limit, filter.Offset)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list deals")
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list deals")
	}
	defer rows.Close()

	var out []model.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list deals rows")
}

func (s *PostgresStore) UpdateDeal(ctx context.Context, d *model.Deal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE deals SET name = $1, value = $2, currency = $3, probability = $4,
		 weighted_value = $5, expected_close_date = $6, owner_id = $7, company_id = $8,
		 updated_at = $9 WHERE id = $10`,
		d.Name, d.Value.String(), d.Currency, d.Probability,
		d.WeightedValue.String(), d.ExpectedCloseDate, d.OwnerID, d.CompanyID,
		d.UpdatedAt, d.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update deal")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteDeal(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM deals WHERE id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "postgres: delete deal")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyStageChange updates the deal row and appends the history entry in one
// transaction.
func (s *PostgresStore) ApplyStageChange(ctx context.Context, change StageChange) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin stage change")
	}
	defer tx.Rollback(ctx)

	q := psql.Update("deals").
		Set("stage", string(change.ToStage)).
		Set("stage_changed_at", change.ChangedAt).
		Set("updated_at", change.ChangedAt).
		Where(sq.Eq{"id": change.DealID})
	if change.Probability != nil {
		q = q.Set("probability", *change.Probability)
	}
	if change.WeightedValue != nil {
		q = q.Set("weighted_value", change.WeightedValue.String())
	}
	if change.ClosedStatus != nil {
		q = q.Set("closed_status", string(*change.ClosedStatus))
	}
	if change.ActualCloseDate != nil {
		q = q.Set("actual_close_date", *change.ActualCloseDate)
	}
	if change.LostReason != nil {
		q = q.Set("lost_reason", string(*change.LostReason))
	}
	if change.LostReasonNote != nil {
		q = q.Set("lost_reason_note", *change.LostReasonNote)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return eris.Wrap(err, "postgres: build stage change")
	}
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return eris.Wrap(err, "postgres: update deal stage")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	from := string(change.FromStage)
	_, err = tx.Exec(ctx,
		`INSERT INTO deal_stage_history (id, deal_id, from_stage, to_stage, changed_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		newID(), change.DealID, from, string(change.ToStage), change.ChangedBy, change.ChangedAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert stage history")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit stage change")
}

func (s *PostgresStore) ListStageHistory(ctx context.Context, dealID string) ([]model.DealStageHistory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, deal_id, from_stage, to_stage, changed_by, created_at
		 FROM deal_stage_history WHERE deal_id = $1 ORDER BY created_at, id`, dealID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stage history")
	}
	defer rows.Close()

	var out []model.DealStageHistory
	for rows.Next() {
		var (
			h    model.DealStageHistory
			from *string
			to   string
		)
		if err := rows.Scan(&h.ID, &h.DealID, &from, &to, &h.ChangedBy, &h.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage history")
		}
		if from != nil {
			fs := model.DealStage(*from)
			h.FromStage = &fs
		}
		h.ToStage = model.DealStage(to)
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list stage history rows")
}

func scanDeal(row rowScanner) (*model.Deal, error) {
	var (
		d                   model.Deal
		value, weighted     string
		stage, status, lost string
	)
	err := row.Scan(&d.ID, &d.Name, &value, &d.Currency, &d.Probability,
		&weighted, &stage, &d.ExpectedCloseDate, &d.ActualCloseDate, &status,
		&lost, &d.LostReasonNote, &d.OwnerID, &d.CompanyID, &d.CreatedAt,
		&d.UpdatedAt, &d.StageChangedAt)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan deal")
	}
	d.Stage = model.DealStage(stage)
	d.ClosedStatus = model.ClosedStatus(status)
	d.LostReason = model.LostReason(lost)
	if d.Value, err = decimal.NewFromString(value); err != nil {
		return nil, eris.Wrapf(err, "postgres: parse deal value %q", value)
	}
	if d.WeightedValue, err = decimal.NewFromString(weighted); err != nil {
		return nil, eris.Wrapf(err, "postgres: parse weighted value %q", weighted)
	}
	return &d, nil
}

// --- Notes ---

func (s *PostgresStore) CreateNote(ctx context.Context, n *model.Note) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notes (id, body, company_id, contact_id, deal_id, author_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.Body, n.CompanyID, n.ContactID, n.DealID, n.AuthorID, n.CreatedAt, n.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: create note")
}

func (s *PostgresStore) ListNotes(ctx context.Context, dealID, companyID, contactID string) ([]model.Note, error) {
	q := psql.Select("id, body, company_id, contact_id, deal_id, author_id, created_at, updated_at").
		From("notes").OrderBy("created_at DESC")
	if dealID != "" {
		q = q.Where(sq.Eq{"deal_id": dealID})
	}
	if companyID != "" {
		q = q.Where(sq.Eq{"company_id": companyID})
	}
	if contactID != "" {
		q = q.Where(sq.Eq{"contact_id": contactID})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list notes")
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list notes")
	}
	defer rows.Close()

	var out []model.Note
	for rows.Next() {
		var n model.Note
		if err := rows.Scan(&n.ID, &n.Body, &n.CompanyID, &n.ContactID, &n.DealID,
			&n.AuthorID, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan note")
		}
		out = append(out, n)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list notes rows")
}

func (s *PostgresStore) DeleteNote(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notes WHERE id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "postgres: delete note")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Activities ---

func (s *PostgresStore) CreateActivity(ctx context.Context, a *model.Activity) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO activities (id, kind, subject, due_at, done, company_id, contact_id, deal_id, owner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, string(a.Kind), a.Subject, a.DueAt, a.Done, a.CompanyID,
		a.ContactID, a.DealID, a.OwnerID, a.CreatedAt, a.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: create activity")
}

func (s *PostgresStore) ListActivities(ctx context.Context, ownerID string, done *bool) ([]model.Activity, error) {
	q := psql.Select("id, kind, subject, due_at, done, company_id, contact_id, deal_id, owner_id, created_at, updated_at").
		From("activities").OrderBy("due_at NULLS LAST, created_at DESC")
	if ownerID != "" {
		q = q.Where(sq.Eq{"owner_id": ownerID})
	}
	if done != nil {
		q = q.Where(sq.Eq{"done": *done})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list activities")
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list activities")
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		var (
			a    model.Activity
			kind string
		)
		if err := rows.Scan(&a.ID, &kind, &a.Subject, &a.DueAt, &a.Done,
			&a.CompanyID, &a.ContactID, &a.DealID, &a.OwnerID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan activity")
		}
		a.Kind = model.ActivityKind(kind)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list activities rows")
}

func (s *PostgresStore) UpdateActivity(ctx context.Context, a *model.Activity) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE activities SET kind = $1, subject = $2, due_at = $3, done = $4, updated_at = $5 WHERE id = $6`,
		string(a.Kind), a.Subject, a.DueAt, a.Done, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update activity")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteActivity(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM activities WHERE id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "postgres: delete activity")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Bulk clear ---

// clearOrder respects foreign keys: children before parents.
var clearOrder = []string{
	"deal_stage_history",
	"activities",
	"notes",
	"deals",
	"contacts",
	"companies",
}

// ClearBusinessData deletes all business entities, preserving user accounts.
func (s *PostgresStore) ClearBusinessData(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin clear")
	}
	defer tx.Rollback(ctx)

	for _, table := range clearOrder {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return eris.Wrapf(err, "postgres: clear %s", table)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit clear")
}

// --- Dashboard aggregates ---

func (s *PostgresStore) StageSummary(ctx context.Context) ([]StageAggregate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT stage, COUNT(*), COALESCE(SUM(value), 0)::text, COALESCE(SUM(weighted_value), 0)::text
		 FROM deals GROUP BY stage`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stage summary")
	}
	defer rows.Close()

	var out []StageAggregate
	for rows.Next() {
		var (
			agg             StageAggregate
			stage           string
			value, weighted string
		)
		if err := rows.Scan(&stage, &agg.Count, &value, &weighted); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage summary")
		}
		agg.Stage = model.DealStage(stage)
		if agg.Value, err = decimal.NewFromString(value); err != nil {
			return nil, eris.Wrapf(err, "postgres: parse stage value %q", value)
		}
		if agg.WeightedValue, err = decimal.NewFromString(weighted); err != nil {
			return nil, eris.Wrapf(err, "postgres: parse stage weighted %q", weighted)
		}
		out = append(out, agg)
	}
	return out, eris.Wrap(rows.Err(), "postgres: stage summary rows")
}

func (s *PostgresStore) OpenPipelineValue(ctx context.Context) (decimal.Decimal, error) {
	return s.scanDecimal(ctx,
		`SELECT COALESCE(SUM(weighted_value), 0)::text FROM deals WHERE closed_status = ''`)
}

func (s *PostgresStore) WonValueSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	return s.scanDecimal(ctx,
		`SELECT COALESCE(SUM(value), 0)::text FROM deals WHERE closed_status = 'WON' AND actual_close_date >= $1`,
		since)
}

func (s *PostgresStore) scanDecimal(ctx context.Context, sql string, args ...any) (decimal.Decimal, error) {
	var text string
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&text); err != nil {
		return decimal.Zero, eris.Wrap(err, "postgres: aggregate query")
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "postgres: parse aggregate %q", text)
	}
	return d, nil
}

// countableTables limits CountEntities to known tables; the table name is
// interpolated into SQL and must never come from user input unchecked.
var countableTables = map[string]bool{
	"companies":  true,
	"contacts":   true,
	"deals":      true,
	"notes":      true,
	"activities": true,
}

func (s *PostgresStore) CountEntities(ctx context.Context, table string) (int, error) {
	if !countableTables[table] {
		return 0, eris.Errorf("postgres: uncountable table %q", table)
	}
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "postgres: count %s", table)
	}
	return n, nil
}
