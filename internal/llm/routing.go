package llm

// Model names for the two Gemini tiers this summarizer routes between.
const (
	ModelLite     = "gemini-2.5-flash-lite"
	ModelFlagship = "gemini-2.5-flash"
)

const (
	liteMaxChars = 200_000
	liteMaxPages = 50
)

// estimatePageCount is the routing heuristic shared by every size decision
// below: roughly 2000 characters per page.
func estimatePageCount(charCount int) int {
	pages := charCount / 2000
	if pages < 1 {
		pages = 1
	}
	return pages
}

// meetingModel picks the model tier for whole-agenda summarization.
func meetingModel(charCount, pageCount int) string {
	if charCount < liteMaxChars && pageCount <= liteMaxPages {
		return ModelLite
	}
	return ModelFlagship
}

// meetingPromptVariant picks "short_agenda" vs "comprehensive" by page count.
func meetingPromptVariant(pageCount int) string {
	if pageCount <= 30 {
		return "short_agenda"
	}
	return "comprehensive"
}

// itemRouting is the resolved model+prompt decision for a single agenda item.
type itemRouting struct {
	Model         string
	PromptVariant string
}

// routeItem picks the model and prompt variant for item-level summarization.
// Large items (100+ estimated pages) always use the flagship model and the
// "large" prompt; otherwise the decision follows the same size thresholds
// as meeting-level routing.
func routeItem(charCount, pageCount int) itemRouting {
	if pageCount >= 100 {
		return itemRouting{Model: ModelFlagship, PromptVariant: "large"}
	}
	return itemRouting{Model: meetingModel(charCount, pageCount), PromptVariant: "standard"}
}

// thinkingTier classifies document complexity into one of three reasoning
// budgets. budget: 0 disables thinking, a positive value is a fixed
// token budget, -1 lets the model decide dynamically. Explicit is false
// only for the flagship model's default case, where no ThinkingConfig is set.
type thinkingTier struct {
	Explicit bool // whether to set an explicit ThinkingConfig at all
	Budget   int32
}

// thinkingConfigFor resolves the thinking-budget tier for a meeting-level
// summarization call, mirroring the three complexity bands: simple
// documents disable thinking outright, medium documents get a moderate
// fixed budget on the lite model (flash-lite doesn't think by default) or
// the flagship's own dynamic default, and complex documents always get
// dynamic thinking.
func thinkingConfigFor(pageCount, charCount int, model string) thinkingTier {
	switch {
	case pageCount <= 10 && charCount <= 30_000:
		return thinkingTier{Explicit: true, Budget: 0}
	case pageCount <= 50 && charCount <= 150_000:
		if model == ModelLite {
			return thinkingTier{Explicit: true, Budget: 2048}
		}
		return thinkingTier{Explicit: false}
	default:
		return thinkingTier{Explicit: true, Budget: -1}
	}
}
