package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/sells-group/agency-crm/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It exists for local
// development and tests; decimal columns are stored as TEXT and aggregates
// go through SQLite's floating sums, so Postgres is the production driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn}, nil
}

// DB exposes the raw handle for the file-copy backup path.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL
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
	annual_revenue TEXT NOT NULL DEFAULT '0',
	owner_id       TEXT NOT NULL REFERENCES users(id),
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
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
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS deals (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	value               TEXT NOT NULL DEFAULT '0',
	currency            TEXT NOT NULL DEFAULT 'USD',
	probability         INTEGER NOT NULL DEFAULT 0 CHECK (probability BETWEEN 0 AND 100),
	weighted_value      TEXT NOT NULL DEFAULT '0',
	stage               TEXT NOT NULL DEFAULT 'INQUIRY',
	expected_close_date DATETIME,
	actual_close_date   DATETIME,
	closed_status       TEXT NOT NULL DEFAULT '',
	lost_reason         TEXT NOT NULL DEFAULT '',
	lost_reason_note    TEXT NOT NULL DEFAULT '',
	owner_id            TEXT NOT NULL REFERENCES users(id),
	company_id          TEXT NOT NULL REFERENCES companies(id),
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL,
	stage_changed_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS deal_stage_history (
	id         TEXT PRIMARY KEY,
	deal_id    TEXT NOT NULL REFERENCES deals(id) ON DELETE CASCADE,
	from_stage TEXT,
	to_stage   TEXT NOT NULL,
	changed_by TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	company_id TEXT REFERENCES companies(id) ON DELETE CASCADE,
	contact_id TEXT REFERENCES contacts(id) ON DELETE CASCADE,
	deal_id    TEXT REFERENCES deals(id) ON DELETE CASCADE,
	author_id  TEXT NOT NULL REFERENCES users(id),
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS activities (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	subject    TEXT NOT NULL,
	due_at     DATETIME,
	done       INTEGER NOT NULL DEFAULT 0,
	company_id TEXT REFERENCES companies(id) ON DELETE CASCADE,
	contact_id TEXT REFERENCES contacts(id) ON DELETE CASCADE,
	deal_id    TEXT REFERENCES deals(id) ON DELETE CASCADE,
	owner_id   TEXT NOT NULL REFERENCES users(id),
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_companies_name ON companies(name);
CREATE INDEX IF NOT EXISTS idx_contacts_company_id ON contacts(company_id);
CREATE INDEX IF NOT EXISTS idx_deals_stage ON deals(stage);
CREATE INDEX IF NOT EXISTS idx_deals_company_id ON deals(company_id);
CREATE INDEX IF NOT EXISTS idx_stage_history_deal ON deal_stage_history(deal_id, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Users ---

func (s *SQLiteStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: create user")
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE lower(email) = lower(?)`, email))
}

// --- Companies ---

const sqliteCompanyColumns = `id, name, domain, phone, city, country, size, type, source, annual_revenue, owner_id, created_at, updated_at`

func (s *SQLiteStore) CreateCompany(ctx context.Context, c *model.Company) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (id, name, domain, phone, city, country, size, type, source, annual_revenue, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Domain, c.Phone, c.City, c.Country, sizePtr(c.Size),
		string(c.Type), string(c.Source), c.AnnualRevenue.String(), c.OwnerID,
		c.CreatedAt, c.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: create company")
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	return scanCompany(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteCompanyColumns+` FROM companies WHERE id = ?`, id))
}

func (s *SQLiteStore) GetCompanyByName(ctx context.Context, name string) (*model.Company, error) {
	return scanCompany(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteCompanyColumns+` FROM companies WHERE lower(name) = lower(?) LIMIT 1`, name))
}

func (s *SQLiteStore) AnyCompany(ctx context.Context) (*model.Company, error) {
	return scanCompany(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteCompanyColumns+` FROM companies ORDER BY created_at LIMIT 1`))
}

func (s *SQLiteStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error) {
	q := sq.Select(sqliteCompanyColumns).From("companies").OrderBy("created_at DESC")
	if filter.Type != "" {
		q = q.Where(sq.Eq{"type": string(filter.Type)})
	}
	if filter.Search != "" {
		q = q.Where(sq.Like{"lower(name)": "%" + strings.ToLower(filter.Search) + "%"})
	}
	q = paginate(q, filter.Limit, filter.Offset)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list companies")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
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
	return out, eris.Wrap(rows.Err(), "sqlite: list companies rows")
}

func (s *SQLiteStore) UpdateCompany(ctx context.Context, c *model.Company) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET name = ?, domain = ?, phone = ?, city = ?, country = ?,
		 size = ?, type = ?, source = ?, annual_revenue = ?, owner_id = ?, updated_at = ?
		 WHERE id = ?`,
		c.Name, c.Domain, c.Phone, c.City, c.Country, sizePtr(c.Size),
		string(c.Type), string(c.Source), c.AnnualRevenue.String(), c.OwnerID,
		c.UpdatedAt, c.ID,
	)
	return sqliteMutation(res, err, "sqlite: update company")
}

func (s *SQLiteStore) DeleteCompany(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM companies WHERE id = ?`, id)
	return sqliteMutation(res, err, "sqlite: delete company")
}

// --- Contacts ---

const sqliteContactColumns = `id, first_name, last_name, email, phone, job_title, company_id, owner_id, created_at, updated_at`

func (s *SQLiteStore) CreateContact(ctx context.Context, c *model.Contact) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, first_name, last_name, email, phone, job_title, company_id, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.FirstName, c.LastName, c.Email, c.Phone, c.JobTitle,
		c.CompanyID, c.OwnerID, c.CreatedAt, c.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: create contact")
}

func (s *SQLiteStore) GetContact(ctx context.Context, id string) (*model.Contact, error) {
	return scanContact(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteContactColumns+` FROM contacts WHERE id = ?`, id))
}

func (s *SQLiteStore) ListContacts(ctx context.Context, filter ContactFilter) ([]model.Contact, error) {
	q := sq.Select(sqliteContactColumns).From("contacts").OrderBy("created_at DESC")
	if filter.CompanyID != "" {
		q = q.Where(sq.Eq{"company_id": filter.CompanyID})
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		q = q.Where(sq.Or{
			sq.Like{"lower(first_name)": pattern},
			sq.Like{"lower(last_name)": pattern},
			sq.Like{"lower(email)": pattern},
		})
	}
	q = paginate(q, filter.Limit, filter.Offset)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list contacts")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contacts")
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
	return out, eris.Wrap(rows.Err(), "sqlite: list contacts rows")
}

func (s *SQLiteStore) UpdateContact(ctx context.Context, c *model.Contact) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET first_name = ?, last_name = ?, email = ?, phone = ?,
		 job_title = ?, company_id = ?, owner_id = ?, updated_at = ? WHERE id = ?`,
		c.FirstName, c.LastName, c.Email, c.Phone, c.JobTitle, c.CompanyID,
		c.OwnerID, c.UpdatedAt, c.ID,
	)
	return sqliteMutation(res, err, "sqlite: update contact")
}

func (s *SQLiteStore) DeleteContact(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
	return sqliteMutation(res, err, "sqlite: delete contact")
}

// --- Deals ---

const sqliteDealColumns = `id, name, value, currency, probability, weighted_value, stage,
	expected_close_date, actual_close_date, closed_status, lost_reason, lost_reason_note,
	owner_id, company_id, created_at, updated_at, stage_changed_at`

func (s *SQLiteStore) CreateDealWithHistory(ctx context.Context, d *model.Deal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin create deal")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO deals (id, name, value, currency, probability, weighted_value, stage,
		 expected_close_date, actual_close_date, closed_status, lost_reason, lost_reason_note,
		 owner_id, company_id, created_at, updated_at, stage_changed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Name, d.Value.String(), d.Currency, d.Probability,
		d.WeightedValue.String(), string(d.Stage), d.ExpectedCloseDate,
		d.ActualCloseDate, string(d.ClosedStatus), string(d.LostReason),
		d.LostReasonNote, d.OwnerID, d.CompanyID, d.CreatedAt, d.UpdatedAt,
		d.StageChangedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert deal")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO deal_stage_history (id, deal_id, from_stage, to_stage, changed_by, created_at)
		 VALUES (?, ?, NULL, ?, ?, ?)`,
		newID(), d.ID, string(d.Stage), d.OwnerID, d.CreatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert creation history")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit create deal")
}

func (s *SQLiteStore) GetDeal(ctx context.Context, id string) (*model.Deal, error) {
	return scanDeal(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteDealColumns+` FROM deals WHERE id = ?`, id))
}

func (s *SQLiteStore) ListDeals(ctx context.Context, filter DealFilter) ([]model.Deal, error) {
	q := sq.Select(sqliteDealColumns).From("deals").OrderBy("created_at DESC")
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

	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list deals")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list deals")
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
	return out, eris.Wrap(rows.Err(), "sqlite: list deals rows")
}

func (s *SQLiteStore) UpdateDeal(ctx context.Context, d *model.Deal) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deals SET name = ?, value = ?, currency = ?, probability = ?,
		 weighted_value = ?, expected_close_date = ?, owner_id = ?, company_id = ?,
		 updated_at = ? WHERE id = ?`,
		d.Name, d.Value.String(), d.Currency, d.Probability,
		d.WeightedValue.String(), d.ExpectedCloseDate, d.OwnerID, d.CompanyID,
		d.UpdatedAt, d.ID,
	)
	return sqliteMutation(res, err, "sqlite: update deal")
}

func (s *SQLiteStore) DeleteDeal(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM deals WHERE id = ?`, id)
	return sqliteMutation(res, err, "sqlite: delete deal")
}

func (s *SQLiteStore) ApplyStageChange(ctx context.Context, change StageChange) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin stage change")
	}
	defer tx.Rollback()

	q := sq.Update("deals").
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

	query, args, err := q.ToSql()
	if err != nil {
		return eris.Wrap(err, "sqlite: build stage change")
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrap(err, "sqlite: update deal stage")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO deal_stage_history (id, deal_id, from_stage, to_stage, changed_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		newID(), change.DealID, string(change.FromStage), string(change.ToStage),
		change.ChangedBy, change.ChangedAt,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert stage history")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit stage change")
}

func (s *SQLiteStore) ListStageHistory(ctx context.Context, dealID string) ([]model.DealStageHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, deal_id, from_stage, to_stage, changed_by, created_at
		 FROM deal_stage_history WHERE deal_id = ? ORDER BY created_at, id`, dealID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stage history")
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
			return nil, eris.Wrap(err, "sqlite: scan stage history")
		}
		if from != nil {
			fs := model.DealStage(*from)
			h.FromStage = &fs
		}
		h.ToStage = model.DealStage(to)
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list stage history rows")
}

// --- Notes ---

func (s *SQLiteStore) CreateNote(ctx context.Context, n *model.Note) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (id, body, company_id, contact_id, deal_id, author_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Body, n.CompanyID, n.ContactID, n.DealID, n.AuthorID, n.CreatedAt, n.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: create note")
}

func (s *SQLiteStore) ListNotes(ctx context.Context, dealID, companyID, contactID string) ([]model.Note, error) {
	q := sq.Select("id, body, company_id, contact_id, deal_id, author_id, created_at, updated_at").
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

	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list notes")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list notes")
	}
	defer rows.Close()

	var out []model.Note
	for rows.Next() {
		var n model.Note
		if err := rows.Scan(&n.ID, &n.Body, &n.CompanyID, &n.ContactID, &n.DealID,
			&n.AuthorID, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan note")
		}
		out = append(out, n)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list notes rows")
}

func (s *SQLiteStore) DeleteNote(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	return sqliteMutation(res, err, "sqlite: delete note")
}

// --- Activities ---

func (s *SQLiteStore) CreateActivity(ctx context.Context, a *model.Activity) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activities (id, kind, subject, due_at, done, company_id, contact_id, deal_id, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Kind), a.Subject, a.DueAt, a.Done, a.CompanyID,
		a.ContactID, a.DealID, a.OwnerID, a.CreatedAt, a.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: create activity")
}

func (s *SQLiteStore) ListActivities(ctx context.Context, ownerID string, done *bool) ([]model.Activity, error) {
	q := sq.Select("id, kind, subject, due_at, done, company_id, contact_id, deal_id, owner_id, created_at, updated_at").
		From("activities").OrderBy("due_at IS NULL, due_at, created_at DESC")
	if ownerID != "" {
		q = q.Where(sq.Eq{"owner_id": ownerID})
	}
	if done != nil {
		q = q.Where(sq.Eq{"done": *done})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list activities")
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list activities")
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
			return nil, eris.Wrap(err, "sqlite: scan activity")
		}
		a.Kind = model.ActivityKind(kind)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list activities rows")
}

func (s *SQLiteStore) UpdateActivity(ctx context.Context, a *model.Activity) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE activities SET kind = ?, subject = ?, due_at = ?, done = ?, updated_at = ? WHERE id = ?`,
		string(a.Kind), a.Subject, a.DueAt, a.Done, a.UpdatedAt, a.ID,
	)
	return sqliteMutation(res, err, "sqlite: update activity")
}

func (s *SQLiteStore) DeleteActivity(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM activities WHERE id = ?`, id)
	return sqliteMutation(res, err, "sqlite: delete activity")
}

// --- Bulk clear ---

func (s *SQLiteStore) ClearBusinessData(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin clear")
	}
	defer tx.Rollback()

	for _, table := range clearOrder {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return eris.Wrapf(err, "sqlite: clear %s", table)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit clear")
}

// --- Dashboard aggregates ---

func (s *SQLiteStore) StageSummary(ctx context.Context) ([]StageAggregate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, COUNT(*),
		 CAST(COALESCE(SUM(CAST(value AS NUMERIC)), 0) AS TEXT),
		 CAST(COALESCE(SUM(CAST(weighted_value AS NUMERIC)), 0) AS TEXT)
		 FROM deals GROUP BY stage`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stage summary")
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
			return nil, eris.Wrap(err, "sqlite: scan stage summary")
		}
		agg.Stage = model.DealStage(stage)
		if agg.Value, err = decimal.NewFromString(value); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse stage value %q", value)
		}
		if agg.WeightedValue, err = decimal.NewFromString(weighted); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse stage weighted %q", weighted)
		}
		out = append(out, agg)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: stage summary rows")
}

func (s *SQLiteStore) OpenPipelineValue(ctx context.Context) (decimal.Decimal, error) {
	return s.scanDecimal(ctx,
		`SELECT CAST(COALESCE(SUM(CAST(weighted_value AS NUMERIC)), 0) AS TEXT) FROM deals WHERE closed_status = ''`)
}

func (s *SQLiteStore) WonValueSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	return s.scanDecimal(ctx,
		`SELECT CAST(COALESCE(SUM(CAST(value AS NUMERIC)), 0) AS TEXT) FROM deals WHERE closed_status = 'WON' AND actual_close_date >= ?`,
		since)
}

func (s *SQLiteStore) scanDecimal(ctx context.Context, query string, args ...any) (decimal.Decimal, error) {
	var text string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&text); err != nil {
		return decimal.Zero, eris.Wrap(err, "sqlite: aggregate query")
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "sqlite: parse aggregate %q", text)
	}
	return d, nil
}

func (s *SQLiteStore) CountEntities(ctx context.Context, table string) (int, error) {
	if !countableTables[table] {
		return 0, eris.Errorf("sqlite: uncountable table %q", table)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "sqlite: count %s", table)
	}
	return n, nil
}

// sqliteMutation folds the exec error and zero-rows check shared by update
// and delete statements.
func sqliteMutation(res sql.Result, err error, msg string) error {
	if err != nil {
		return eris.Wrap(err, msg)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
