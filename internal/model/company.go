package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CompanySize buckets a company by employee count.
type CompanySize string

const (
	SizeSolo        CompanySize = "SOLO"        // 1
	SizeSmall       CompanySize = "SMALL"       // 2-10
	SizeMedium      CompanySize = "MEDIUM"      // 11-50
	SizeLarge       CompanySize = "LARGE"       // 51-200
	SizeEnterprise  CompanySize = "ENTERPRISE"  // 201-1000
	SizeCorporation CompanySize = "CORPORATION" // 1000+
)

// CompanyType is the relationship bucket a company sits in.
type CompanyType string

const (
	TypeProspect    CompanyType = "PROSPECT"
	TypeLead        CompanyType = "LEAD"
	TypeOpportunity CompanyType = "OPPORTUNITY"
	TypeCustomer    CompanyType = "CUSTOMER"
	TypePartner     CompanyType = "PARTNER"
	TypeVendor      CompanyType = "VENDOR"
	TypeOther       CompanyType = "OTHER"
)

// CompanySource records where a company record came from.
type CompanySource string

const (
	SourceHubspotImport CompanySource = "HUBSPOT_IMPORT"
	SourceManual        CompanySource = "MANUAL"
	SourceWeb           CompanySource = "WEB"
	SourceReferral      CompanySource = "REFERRAL"
)

// Company is an organization the agency sells to.
type Company struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Domain        string          `json:"domain,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	City          string          `json:"city,omitempty"`
	Country       string          `json:"country,omitempty"`
	Size          *CompanySize    `json:"size,omitempty"`
	Type          CompanyType     `json:"type"`
	Source        CompanySource   `json:"source"`
	AnnualRevenue decimal.Decimal `json:"annual_revenue"`
	OwnerID       string          `json:"owner_id"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Contact is a person at a company.
type Contact struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	JobTitle  string    `json:"job_title,omitempty"`
	CompanyID *string   `json:"company_id,omitempty"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
