package importer

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/agency-crm/internal/model"
)

func TestCompanyTypeFromLifecycle(t *testing.T) {
	cases := []struct {
		in   string
		want model.CompanyType
	}{
		{"customer", model.TypeCustomer},
		{"Customer", model.TypeCustomer},
		{"Sales Qualified Lead", model.TypeOpportunity},
		{"marketingqualifiedlead", model.TypeLead},
		{"evangelist", model.TypePartner},
		{"subscriber", model.TypeProspect},
		{"", model.TypeProspect},
		{"something-new", model.TypeProspect},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CompanyTypeFromLifecycle(tc.in), "input %q", tc.in)
	}
}

func TestStageFromHubspot(t *testing.T) {
	cases := []struct {
		in   string
		want model.DealStage
	}{
		{"appointmentscheduled", model.StageDiscoveryScheduled},
		{"Closed Won", model.StageClosedWon},
		{"closedlost", model.StageClosedLost},
		{"contractsent", model.StageContract},
		{"negotiation", model.StageNegotiation},
		{"", model.StageInquiry},
		{"made-up stage", model.StageInquiry},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StageFromHubspot(tc.in), "input %q", tc.in)
	}
}

func TestSizeFromEmployeeCount(t *testing.T) {
	cases := []struct {
		in   string
		want model.CompanySize
	}{
		{"1", model.SizeSolo},
		{"10", model.SizeSmall},
		{"11", model.SizeMedium},
		{"50", model.SizeMedium},
		{"200", model.SizeLarge},
		{"201", model.SizeEnterprise},
		{"1,000", model.SizeEnterprise},
		{"5000", model.SizeCorporation},
	}
	for _, tc := range cases {
		got := SizeFromEmployeeCount(tc.in)
		require.NotNil(t, got, "input %q", tc.in)
		assert.Equal(t, tc.want, *got, "input %q", tc.in)
	}

	assert.Nil(t, SizeFromEmployeeCount(""))
	assert.Nil(t, SizeFromEmployeeCount("unknown"))
	assert.Nil(t, SizeFromEmployeeCount("10-50"), "ranges are not a count")
}

func TestAmountFromBudget(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"5000", "5000"},
		{"$5,000", "5000"},
		{"€1234.56", "1234.56"},
		{"Less than $1,000", "1000"},
		{"$1,000 - $3,000", "2000"},
		{"10000-20000", "15000"},
		{"", "0"},
		{"call us", "0"},
	}
	for _, tc := range cases {
		want, err := decimal.NewFromString(tc.want)
		require.NoError(t, err)
		got := AmountFromBudget(tc.in)
		assert.True(t, want.Equal(got), "input %q: want %s, got %s", tc.in, want, got)
	}
}
