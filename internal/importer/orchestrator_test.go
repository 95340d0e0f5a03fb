package importer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/agency-crm/internal/deal"
	"github.com/sells-group/agency-crm/internal/model"
	"github.com/sells-group/agency-crm/internal/store"
)

type fakeImportStore struct {
	companies []*model.Company
	contacts  []*model.Contact
	cleared   bool

	failCompanyName string // CreateCompany fails for this name
}

func (f *fakeImportStore) CreateCompany(_ context.Context, c *model.Company) error {
	if f.failCompanyName != "" && c.Name == f.failCompanyName {
		return eris.New("store: duplicate company")
	}
	f.companies = append(f.companies, c)
	return nil
}

func (f *fakeImportStore) GetCompanyByName(_ context.Context, name string) (*model.Company, error) {
	for _, c := range f.companies {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeImportStore) AnyCompany(_ context.Context) (*model.Company, error) {
	if len(f.companies) == 0 {
		return nil, store.ErrNotFound
	}
	return f.companies[0], nil
}

func (f *fakeImportStore) CreateContact(_ context.Context, c *model.Contact) error {
	f.contacts = append(f.contacts, c)
	return nil
}

func (f *fakeImportStore) ClearBusinessData(context.Context) error {
	f.cleared = true
	return nil
}

type fakeBackup struct {
	calls int
	fail  bool
}

func (f *fakeBackup) Create(context.Context) (*model.BackupArtifact, error) {
	f.calls++
	if f.fail {
		return nil, eris.New("backup: pg_dump exited 1")
	}
	return &model.BackupArtifact{
		ID:        "crm_20240101_120000",
		Filename:  "crm_20240101_120000.sql",
		Size:      2048,
		CreatedAt: time.Now(),
	}, nil
}

type fakeProvisioner struct{}

func (fakeProvisioner) EnsureDefaultOwner(context.Context) (*model.User, error) {
	return &model.User{ID: "owner-1", Email: "admin@agency.local"}, nil
}

type fakeDealCreator struct {
	created []deal.CreateParams
}

func (f *fakeDealCreator) Create(_ context.Context, p deal.CreateParams) (*model.Deal, error) {
	f.created = append(f.created, p)
	return &model.Deal{ID: "deal-1", Name: p.Name, Stage: p.Stage}, nil
}

func newTestOrchestrator(fs *fakeImportStore, fb *fakeBackup, fd *fakeDealCreator) *Orchestrator {
	return NewOrchestrator(fs, fd, fb, fakeProvisioner{}, semaphore.NewWeighted(1))
}

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

const companiesCSV = "Record ID,Company name,Company Domain Name,City,Number of Employees,Annual Revenue,Lifecycle Stage\n" +
	"501,Acme Agency,acme.example,BERLIN,25,\"$1,000,000\",customer\n" +
	"502,,nameless.example,Paris,5,,lead\n" +
	"503,Globex,globex.example,london,1200,250000,opportunity\n"

func TestRun_CompaniesSkipAndCounterInvariant(t *testing.T) {
	fs := &fakeImportStore{}
	fb := &fakeBackup{}
	o := newTestOrchestrator(fs, fb, &fakeDealCreator{})

	res, err := o.Run(context.Background(), Files{Companies: []byte(companiesCSV)})
	require.NoError(t, err)
	require.NotNil(t, res.Companies)

	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Companies.Total)
	assert.Equal(t, 2, res.Companies.Imported)
	assert.Equal(t, 1, res.Companies.Skipped)
	assert.Equal(t, 0, res.Companies.Failed)
	assert.Equal(t, res.Companies.Total, res.Companies.Imported+res.Companies.Skipped+res.Companies.Failed)

	assert.Equal(t, 1, fb.calls, "exactly one pre-import backup")
	assert.True(t, fs.cleared, "existing data cleared before load")

	require.Len(t, fs.companies, 2)
	acme := fs.companies[0]
	assert.Equal(t, "Berlin", acme.City, "city is title-cased")
	assert.Equal(t, model.TypeCustomer, acme.Type)
	assert.Equal(t, model.SourceHubspotImport, acme.Source)
	require.NotNil(t, acme.Size)
	assert.Equal(t, model.SizeMedium, *acme.Size)
	assert.True(t, acme.AnnualRevenue.Equal(decimalFromString(t, "1000000")))
	assert.Equal(t, "owner-1", acme.OwnerID)
}

func TestRun_FailedRecordIsCountedNotFatal(t *testing.T) {
	fs := &fakeImportStore{failCompanyName: "Globex"}
	o := newTestOrchestrator(fs, &fakeBackup{}, &fakeDealCreator{})

	res, err := o.Run(context.Background(), Files{Companies: []byte(companiesCSV)})
	require.NoError(t, err)

	assert.True(t, res.Success, "record failures do not fail the run")
	assert.Equal(t, 1, res.Companies.Imported)
	assert.Equal(t, 1, res.Companies.Skipped)
	assert.Equal(t, 1, res.Companies.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "503", res.Errors[0].Identifier, "external ID identifies the record")
	assert.Contains(t, res.Errors[0].Reason, "duplicate company")
}

func TestRun_ContactCompanyLinking(t *testing.T) {
	contactsCSV := "Record ID,First Name,Last Name,Email,Associated Company IDs,Associated Company\n" +
		"901,Ada,Lovelace,ada@acme.example,501,\n" +
		"902,Grace,Hopper,grace@globex.example,,globex\n" +
		"903,Alan,Turing,alan@example.com,999,Nowhere Corp\n" +
		"904,,,missing@example.com,,\n"

	fs := &fakeImportStore{}
	o := newTestOrchestrator(fs, &fakeBackup{}, &fakeDealCreator{})

	res, err := o.Run(context.Background(), Files{
		Companies: []byte(companiesCSV),
		Contacts:  []byte(contactsCSV),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Contacts)

	assert.Equal(t, 3, res.Contacts.Imported)
	assert.Equal(t, 1, res.Contacts.Skipped, "contact with no name is skipped")
	require.Len(t, fs.contacts, 3)

	byEmail := make(map[string]*model.Contact)
	for _, c := range fs.contacts {
		byEmail[c.Email] = c
	}

	acmeID := fs.companies[0].ID
	globexID := fs.companies[1].ID

	require.NotNil(t, byEmail["ada@acme.example"].CompanyID, "linked by external ID")
	assert.Equal(t, acmeID, *byEmail["ada@acme.example"].CompanyID)

	require.NotNil(t, byEmail["grace@globex.example"].CompanyID, "linked by case-insensitive name")
	assert.Equal(t, globexID, *byEmail["grace@globex.example"].CompanyID)

	assert.Nil(t, byEmail["alan@example.com"].CompanyID, "unresolvable association stays unlinked")
}

func TestRun_DealsUsePlaceholderWhenNoCompanies(t *testing.T) {
	dealsCSV := "Record ID,Deal Name,Amount,Deal Stage,Close Date,Deal probability\n" +
		"701,Website Redesign,\"$12,000\",closedwon,2024-03-01,90\n" +
		"702,,500,inquiry,,\n" +
		"703,SEO Retainer,$3000 - $5000,negotiation,,60\n"

	fs := &fakeImportStore{}
	fd := &fakeDealCreator{}
	o := newTestOrchestrator(fs, &fakeBackup{}, fd)

	res, err := o.Run(context.Background(), Files{Deals: []byte(dealsCSV)})
	require.NoError(t, err)
	require.NotNil(t, res.Deals)

	assert.Equal(t, 2, res.Deals.Imported)
	assert.Equal(t, 1, res.Deals.Skipped)

	require.Len(t, fs.companies, 1)
	assert.Equal(t, "Unknown Company", fs.companies[0].Name)

	require.Len(t, fd.created, 2)
	first := fd.created[0]
	assert.Equal(t, fs.companies[0].ID, first.CompanyID)
	assert.Equal(t, model.StageClosedWon, first.Stage)
	assert.Equal(t, 90, first.Probability)
	assert.True(t, first.Value.Equal(decimalFromString(t, "12000")))
	require.NotNil(t, first.ExpectedCloseDate)
	assert.Equal(t, "2024-03-01", first.ExpectedCloseDate.Format("2006-01-02"))

	second := fd.created[1]
	assert.Equal(t, model.StageNegotiation, second.Stage)
	assert.True(t, second.Value.Equal(decimalFromString(t, "4000")), "range amount averages the bounds")
}

func TestRun_BackupFailureAbortsBeforeClear(t *testing.T) {
	fs := &fakeImportStore{}
	o := newTestOrchestrator(fs, &fakeBackup{fail: true}, &fakeDealCreator{})

	res, err := o.Run(context.Background(), Files{Companies: []byte(companiesCSV)})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.False(t, fs.cleared, "destructive clear never runs without a backup")
	assert.Empty(t, fs.companies)
}

func TestRun_RequiresAtLeastOneFile(t *testing.T) {
	o := newTestOrchestrator(&fakeImportStore{}, &fakeBackup{}, &fakeDealCreator{})

	_, err := o.Run(context.Background(), Files{})
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestRun_SingleFlight(t *testing.T) {
	gate := semaphore.NewWeighted(1)
	o := NewOrchestrator(&fakeImportStore{}, &fakeDealCreator{}, &fakeBackup{}, fakeProvisioner{}, gate)

	require.True(t, gate.TryAcquire(1))
	defer gate.Release(1)

	_, err := o.Run(context.Background(), Files{Companies: []byte(companiesCSV)})
	assert.ErrorIs(t, err, ErrBusy)
}
