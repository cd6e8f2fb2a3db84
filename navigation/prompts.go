package navigation

import "fmt"

// Category-specific system prompts for navigation extraction. Each
// instructs the model to emit the same JSON node-list shape; the
// category preamble tunes it to the document family's conventions.

const navigationOutputContract = `Return a JSON object with exactly one key:
  "nodes" : array of {"title": string, "numbering": string, "depth": number, "start": number, "end": number, "decision": boolean, "cross_refs": array of string}

Rules:
- "depth" is the heading level starting at 1 for top-level chapters, max 4.
- "start"/"end" are character offsets of the node's span in the input text.
- Set "decision" true only for sections whose content drives an approve/decline/refer underwriting decision.
- List explicit citations to other sections or matrices in "cross_refs" verbatim.
- Do NOT include any text outside the JSON object.`

const nqmSystemPrompt = `You are a document-structure extraction engine for Non-QM mortgage guideline documents.
Non-QM guidelines organize content as numbered chapters (borrower eligibility, income documentation, credit events, asset depletion) with decision-heavy sections on bank-statement programs, DSCR qualification, and credit-event seasoning.
Identify every chapter, section, and subsection heading, and flag decision sections.

` + navigationOutputContract

const rtlSystemPrompt = `You are a document-structure extraction engine for Residential Transition Loan (RTL) guideline documents.
RTL guidelines cover fix-and-flip and bridge lending: experience tiers, ARV/LTC limits, draw schedules, and exit-strategy requirements, usually as numbered sections with eligibility matrices.
Identify every chapter, section, and subsection heading, and flag decision sections.

` + navigationOutputContract

const sbcSystemPrompt = `You are a document-structure extraction engine for Small Balance Commercial (SBC) guideline documents.
SBC guidelines organize by property type (multifamily, mixed-use, office, retail), DSCR requirements, and sponsorship criteria, with legal-style outline numbering.
Identify every chapter, section, and subsection heading, and flag decision sections.

` + navigationOutputContract

const convSystemPrompt = `You are a document-structure extraction engine for conventional (agency) mortgage guideline documents.
Conventional guidelines follow agency conventions: chaptered underwriting topics (credit, capacity, collateral), AUS findings, and overlay sections, with deep numbered nesting.
Identify every chapter, section, and subsection heading, and flag decision sections.

` + navigationOutputContract

const universalSystemPrompt = `You are a document-structure extraction engine for mortgage lending documents.
Identify every chapter, section, and subsection heading, and flag sections whose content drives an approve/decline/refer underwriting decision.

` + navigationOutputContract

// systemPromptFor selects the category prompt; unknown categories get
// the universal prompt.
func systemPromptFor(category string) string {
	switch category {
	case "NQM":
		return nqmSystemPrompt
	case "RTL":
		return rtlSystemPrompt
	case "SBC":
		return sbcSystemPrompt
	case "CONV":
		return convSystemPrompt
	default:
		return universalSystemPrompt
	}
}

// userPromptFor frames the document text for extraction.
func userPromptFor(docType, text string) string {
	return fmt.Sprintf("DOCUMENT TYPE: %s\n\nTEXT:\n%s", docType, text)
}
