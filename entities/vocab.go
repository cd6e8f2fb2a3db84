package entities

// Closed vocabularies for the pattern pass. Mentions are matched
// case-insensitively on word boundaries; the canonical spelling becomes
// the normalized value.

var vocabularies = map[Type][]string{
	LoanProgram: {
		"DSCR", "bank statement program", "asset depletion program",
		"full documentation", "jumbo", "standard program", "investor program",
		"fix and flip", "bridge loan", "ground-up construction",
	},
	BorrowerType: {
		"first-time homebuyer", "self-employed borrower", "foreign national",
		"non-permanent resident", "permanent resident alien", "US citizen",
		"ITIN borrower", "non-occupant co-borrower", "entity borrower",
	},
	IncomeType: {
		"W-2 income", "bank statement income", "asset depletion",
		"rental income", "1099 income", "P&L income", "social security income",
		"pension income", "commission income",
	},
	AssetType: {
		"checking account", "savings account", "retirement account",
		"brokerage account", "business funds", "gift funds", "crypto assets",
	},
	PropertyType: {
		"single family residence", "SFR", "condominium", "condotel",
		"2-4 unit", "multifamily", "mixed-use", "manufactured home",
		"townhome", "rural property", "non-warrantable condo",
	},
	DocumentationType: {
		"full doc", "alt doc", "12-month bank statements",
		"24-month bank statements", "no ratio", "asset utilization",
		"VOE only", "CPA letter",
	},
	OccupancyType: {
		"primary residence", "second home", "investment property",
		"owner occupied", "non-owner occupied",
	},
	CreditEvent: {
		"bankruptcy", "foreclosure", "short sale", "deed-in-lieu",
		"forbearance", "loan modification", "charge-off", "late payment",
	},
}

// vocabConfidence is the prior for vocabulary hits; pattern hits score
// slightly lower, LLM supplements lower still.
const (
	vocabConfidence   = 0.9
	patternConfidence = 0.8
	llmConfidence     = 0.7
)
