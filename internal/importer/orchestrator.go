package importer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/agency-crm/internal/deal"
	"github.com/sells-group/agency-crm/internal/model"
	"github.com/sells-group/agency-crm/internal/store"
)

var (
	// ErrNoFiles is returned when an import is requested with no files.
	ErrNoFiles = eris.New("importer: at least one file is required")
	// ErrBusy is returned when another import or restore holds the
	// exclusive gate. Both operations replace the whole database and must
	// never interleave.
	ErrBusy = eris.New("importer: another import or restore is in progress")
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	CreateCompany(ctx context.Context, c *model.Company) error
	GetCompanyByName(ctx context.Context, name string) (*model.Company, error)
	AnyCompany(ctx context.Context) (*model.Company, error)
	CreateContact(ctx context.Context, c *model.Contact) error
	ClearBusinessData(ctx context.Context) error
}

// DealCreator creates deals through the stage engine so every imported deal
// gets its creation history row and terminal coupling.
type DealCreator interface {
	Create(ctx context.Context, p deal.CreateParams) (*model.Deal, error)
}

// BackupService produces the mandatory pre-import backup.
type BackupService interface {
	Create(ctx context.Context) (*model.BackupArtifact, error)
}

// Provisioner supplies the default owner account, created idempotently at
// setup. Injected rather than looked up ad hoc.
type Provisioner interface {
	EnsureDefaultOwner(ctx context.Context) (*model.User, error)
}

// Files holds the uploaded CSV contents by entity type. Nil slices mean the
// file was not supplied.
type Files struct {
	Companies []byte
	Contacts  []byte
	Deals     []byte
}

func (f Files) empty() bool {
	return len(f.Companies) == 0 && len(f.Contacts) == 0 && len(f.Deals) == 0
}

// Orchestrator sequences a HubSpot import: backup, destructive clear, then
// companies -> contacts -> deals with cross-entity ID remapping.
type Orchestrator struct {
	store       Store
	deals       DealCreator
	backups     BackupService
	provisioner Provisioner

	// gate is shared with the restore endpoint; both operations replace
	// the full database and are single-flight.
	gate *semaphore.Weighted
	log  *zap.Logger
}

// NewOrchestrator wires an import orchestrator. The gate must be the same
// semaphore the restore path uses.
func NewOrchestrator(s Store, deals DealCreator, backups BackupService, provisioner Provisioner, gate *semaphore.Weighted) *Orchestrator {
	return &Orchestrator{
		store:       s,
		deals:       deals,
		backups:     backups,
		provisioner: provisioner,
		gate:        gate,
		log:         zap.L().With(zap.String("component", "importer")),
	}
}

// Run executes the import. Success means the process completed; individual
// record failures are counted and reported, not fatal. Infrastructure
// failures (backup, clear) abort the run; an abort after the clear leaves
// partial state, which is why the backup is mandatory and blocking.
func (o *Orchestrator) Run(ctx context.Context, files Files) (*model.ImportResult, error) {
	if files.empty() {
		return nil, ErrNoFiles
	}
	if !o.gate.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer o.gate.Release(1)

	owner, err := o.provisioner.EnsureDefaultOwner(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "importer: ensure default owner")
	}

	artifact, err := o.backups.Create(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "importer: pre-import backup failed, aborting")
	}
	o.log.Info("pre-import backup created",
		zap.String("backup", artifact.Filename),
		zap.Int64("size", artifact.Size),
	)

	if err := o.store.ClearBusinessData(ctx); err != nil {
		return nil, eris.Wrap(err, "importer: clear existing data")
	}

	result := &model.ImportResult{}
	idMap := make(map[string]string)

	if len(files.Companies) > 0 {
		result.Companies = o.importCompanies(ctx, Parse(string(files.Companies)), owner.ID, idMap)
	}
	if len(files.Contacts) > 0 {
		result.Contacts = o.importContacts(ctx, Parse(string(files.Contacts)), owner.ID, idMap)
	}
	if len(files.Deals) > 0 {
		result.Deals = o.importDeals(ctx, Parse(string(files.Deals)), owner.ID)
	}

	result.Success = true
	result.Imported = result.TotalImported()
	result.Errors = result.AllErrors()
	if len(result.Errors) == 0 {
		result.Message = fmt.Sprintf("import complete: %d records imported", result.Imported)
	} else {
		result.Message = fmt.Sprintf("import complete: %d records imported, %d issues", result.Imported, len(result.Errors))
	}

	o.log.Info("import finished",
		zap.Int("imported", result.Imported),
		zap.Int("issues", len(result.Errors)),
	)
	return result, nil
}

// HubSpot export column names.
const (
	colRecordID     = "Record ID"
	colCompanyName  = "Company name"
	colDomain       = "Company Domain Name"
	colPhone        = "Phone Number"
	colCity         = "City"
	colCountry      = "Country/Region"
	colEmployees    = "Number of Employees"
	colRevenue      = "Annual Revenue"
	colLifecycle    = "Lifecycle Stage"
	colFirstName    = "First Name"
	colLastName     = "Last Name"
	colEmail        = "Email"
	colJobTitle     = "Job Title"
	colAssocIDs     = "Associated Company IDs"
	colAssocCompany = "Associated Company"
	colDealName     = "Deal Name"
	colAmount       = "Amount"
	colDealStage    = "Deal Stage"
	colCloseDate    = "Close Date"
	colProbability  = "Deal probability"
)

func (o *Orchestrator) importCompanies(ctx context.Context, records []Record, ownerID string, idMap map[string]string) *model.FileResult {
	res := &model.FileResult{Total: len(records)}
	now := time.Now().UTC()

	for i, rec := range records {
		name := rec[colCompanyName]
		if name == "" {
			res.Skipped++
			continue
		}

		c := &model.Company{
			ID:            uuid.New().String(),
			Name:          name,
			Domain:        strings.ToLower(rec[colDomain]),
			Phone:         rec[colPhone],
			City:          titleCase(rec[colCity]),
			Country:       rec[colCountry],
			Size:          SizeFromEmployeeCount(rec[colEmployees]),
			Type:          CompanyTypeFromLifecycle(rec[colLifecycle]),
			Source:        model.SourceHubspotImport,
			AnnualRevenue: AmountFromBudget(rec[colRevenue]),
			OwnerID:       ownerID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := o.store.CreateCompany(ctx, c); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, model.RecordError{
				Identifier: recordIdentifier(rec, name, i),
				Reason:     err.Error(),
			})
			continue
		}
		res.Imported++
		if ext := rec[colRecordID]; ext != "" {
			idMap[ext] = c.ID
		}
	}
	return res
}

func (o *Orchestrator) importContacts(ctx context.Context, records []Record, ownerID string, idMap map[string]string) *model.FileResult {
	res := &model.FileResult{Total: len(records)}
	now := time.Now().UTC()

	for i, rec := range records {
		first, last := rec[colFirstName], rec[colLastName]
		if first == "" && last == "" {
			res.Skipped++
			continue
		}

		c := &model.Contact{
			ID:        uuid.New().String(),
			FirstName: first,
			LastName:  last,
			Email:     strings.ToLower(rec[colEmail]),
			Phone:     rec[colPhone],
			JobTitle:  rec[colJobTitle],
			CompanyID: o.resolveCompany(ctx, rec, idMap),
			OwnerID:   ownerID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := o.store.CreateContact(ctx, c); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, model.RecordError{
				Identifier: recordIdentifier(rec, strings.TrimSpace(first+" "+last), i),
				Reason:     err.Error(),
			})
			continue
		}
		res.Imported++
	}
	return res
}

// resolveCompany links a contact to its company: external-ID cross-reference
// first (the association column is `;`-separated, first match wins), then a
// case-insensitive name match, otherwise the contact stays unlinked.
func (o *Orchestrator) resolveCompany(ctx context.Context, rec Record, idMap map[string]string) *string {
	for _, ext := range strings.Split(rec[colAssocIDs], ";") {
		if id, ok := idMap[strings.TrimSpace(ext)]; ok {
			return &id
		}
	}
	if name := rec[colAssocCompany]; name != "" {
		if c, err := o.store.GetCompanyByName(ctx, name); err == nil {
			return &c.ID
		}
	}
	return nil
}

func (o *Orchestrator) importDeals(ctx context.Context, records []Record, ownerID string) *model.FileResult {
	res := &model.FileResult{Total: len(records)}

	// Deals are anchored to an arbitrary existing company; the export's
	// deal-to-company association is not carried through this pipeline.
	// A placeholder is created when no company exists at all.
	var anchorID string

	for i, rec := range records {
		name := rec[colDealName]
		if name == "" {
			res.Skipped++
			continue
		}

		if anchorID == "" {
			id, err := o.anchorCompany(ctx, ownerID)
			if err != nil {
				res.Failed++
				res.Errors = append(res.Errors, model.RecordError{
					Identifier: recordIdentifier(rec, name, i),
					Reason:     err.Error(),
				})
				continue
			}
			anchorID = id
		}

		p := deal.CreateParams{
			Name:        name,
			Value:       AmountFromBudget(rec[colAmount]),
			Probability: parseProbability(rec[colProbability]),
			Stage:       StageFromHubspot(rec[colDealStage]),
			CompanyID:   anchorID,
			OwnerID:     ownerID,
		}
		if closeDate := parseDate(rec[colCloseDate]); closeDate != nil {
			p.ExpectedCloseDate = closeDate
		}

		if _, err := o.deals.Create(ctx, p); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, model.RecordError{
				Identifier: recordIdentifier(rec, name, i),
				Reason:     err.Error(),
			})
			continue
		}
		res.Imported++
	}
	return res
}

func (o *Orchestrator) anchorCompany(ctx context.Context, ownerID string) (string, error) {
	c, err := o.store.AnyCompany(ctx)
	if err == nil {
		return c.ID, nil
	}
	if !eris.Is(err, store.ErrNotFound) {
		return "", err
	}

	now := time.Now().UTC()
	placeholder := &model.Company{
		ID:        uuid.New().String(),
		Name:      "Unknown Company",
		Type:      model.TypeProspect,
		Source:    model.SourceHubspotImport,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.CreateCompany(ctx, placeholder); err != nil {
		return "", eris.Wrap(err, "importer: create placeholder company")
	}
	return placeholder.ID, nil
}

// recordIdentifier names a record for the error list: external ID, then a
// display name, then the 1-based row position.
func recordIdentifier(rec Record, name string, index int) string {
	if ext := rec[colRecordID]; ext != "" {
		return ext
	}
	if name != "" {
		return name
	}
	return fmt.Sprintf("row %d", index+1)
}

func parseProbability(s string) int {
	cleaned := strings.TrimSuffix(strings.TrimSpace(s), "%")
	n, err := strconv.Atoi(cleaned)
	if err != nil || n < 0 || n > 100 {
		return 0
	}
	return n
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "01/02/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func titleCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ToLower(s))
}
