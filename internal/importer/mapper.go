package importer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/agency-crm/internal/model"
)

// The mapping functions below are total: import must survive dirty external
// data, so an unrecognized value degrades to a safe default instead of
// aborting the batch.

// lifecycleToType maps HubSpot lifecycle stages to company types.
var lifecycleToType = map[string]model.CompanyType{
	"subscriber":             model.TypeProspect,
	"lead":                   model.TypeLead,
	"marketingqualifiedlead": model.TypeLead,
	"salesqualifiedlead":     model.TypeOpportunity,
	"opportunity":            model.TypeOpportunity,
	"customer":               model.TypeCustomer,
	"evangelist":             model.TypePartner,
	"other":                  model.TypeOther,
}

// CompanyTypeFromLifecycle translates a HubSpot lifecycle stage into a
// company type. Unrecognized or empty input defaults to PROSPECT.
func CompanyTypeFromLifecycle(s string) model.CompanyType {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	if t, ok := lifecycleToType[key]; ok {
		return t
	}
	return model.TypeProspect
}

// hubspotToStage covers every stage of the internal pipeline, keyed by both
// the HubSpot machine names and the human-readable export labels.
var hubspotToStage = map[string]model.DealStage{
	"inquiry":               model.StageInquiry,
	"appointmentscheduled":  model.StageDiscoveryScheduled,
	"discovery scheduled":   model.StageDiscoveryScheduled,
	"qualifiedtobuy":        model.StageProposalNeeded,
	"proposal needed":       model.StageProposalNeeded,
	"presentationscheduled": model.StageProposalSent,
	"proposal sent":         model.StageProposalSent,
	"proposal reviewed":     model.StageProposalReviewed,
	"decisionmakerboughtin": model.StageDecisionMaker,
	"decision maker":        model.StageDecisionMaker,
	"negotiation":           model.StageNegotiation,
	"contractsent":          model.StageContract,
	"contract":              model.StageContract,
	"closedwon":             model.StageClosedWon,
	"closed won":            model.StageClosedWon,
	"closedlost":            model.StageClosedLost,
	"closed lost":           model.StageClosedLost,
}

// StageFromHubspot translates an external deal-stage name into the internal
// pipeline. Unrecognized or empty input defaults to the first stage.
func StageFromHubspot(s string) model.DealStage {
	key := strings.ToLower(strings.TrimSpace(s))
	if stage, ok := hubspotToStage[key]; ok {
		return stage
	}
	return model.StageInquiry
}

// SizeFromEmployeeCount buckets an employee-count string. Non-numeric input
// yields nil: size is simply unknown, not an error.
func SizeFromEmployeeCount(s string) *model.CompanySize {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return nil
	}
	var size model.CompanySize
	switch {
	case n <= 1:
		size = model.SizeSolo
	case n <= 10:
		size = model.SizeSmall
	case n <= 50:
		size = model.SizeMedium
	case n <= 200:
		size = model.SizeLarge
	case n <= 1000:
		size = model.SizeEnterprise
	default:
		size = model.SizeCorporation
	}
	return &size
}

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// AmountFromBudget extracts a monetary amount from a budget or revenue
// string. It strips currency symbols and thousands separators, then handles
// three shapes: a bare number, a "less than N" bound (first number), and a
// "min - max" range (average of the bounds). Unparseable input yields zero.
func AmountFromBudget(s string) decimal.Decimal {
	cleaned := strings.NewReplacer("$", "", "€", "", "£", "", ",", "").Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return decimal.Zero
	}

	numbers := numberPattern.FindAllString(cleaned, -1)
	if len(numbers) == 0 {
		return decimal.Zero
	}

	first, err := decimal.NewFromString(numbers[0])
	if err != nil {
		return decimal.Zero
	}

	lower := strings.ToLower(cleaned)
	switch {
	case strings.Contains(lower, "less than"):
		return first
	case len(numbers) >= 2 && strings.Contains(cleaned, "-"):
		second, err := decimal.NewFromString(numbers[1])
		if err != nil {
			return first
		}
		return first.Add(second).Div(decimal.NewFromInt(2))
	default:
		return first
	}
}
