package orchestrator

// Mode selects a canned system prompt for a consultation (spec §4.G).
type Mode string

const (
	ModeDebug              Mode = "debug"
	ModeAnalyzeCode        Mode = "analyzeCode"
	ModeReviewArchitecture Mode = "reviewArchitecture"
	ModeValidatePlan       Mode = "validatePlan"
	ModeExplainConcept     Mode = "explainConcept"
	ModeGeneral            Mode = "general"
)

const defaultMode = ModeGeneral

var modePrompts = map[Mode]string{
	ModeDebug: "You are a senior engineer helping debug a problem. Ask for " +
		"the minimum missing information, reason about root cause before " +
		"proposing a fix, and call out any assumption you had to make.",
	ModeAnalyzeCode: "You are reviewing a piece of code for correctness, " +
		"clarity, and maintainability. Point out concrete issues with file " +
		"and line references when given, and suggest the smallest change " +
		"that fixes each one.",
	ModeReviewArchitecture: "You are reviewing a system design or " +
		"architecture proposal. Evaluate it against the stated " +
		"requirements, flag missing failure-mode handling, and note where " +
		"the design trades off simplicity against scalability.",
	ModeValidatePlan: "You are validating an implementation plan before " +
		"work starts. Check it for missing steps, ordering problems, and " +
		"unstated dependencies, and say plainly whether it is ready to " +
		"execute.",
	ModeExplainConcept: "You are explaining a technical concept clearly and " +
		"precisely. Start from first principles, use a concrete example, " +
		"and avoid unnecessary jargon.",
	ModeGeneral: "You are a helpful technical consultant providing a " +
		"second opinion. Be direct, be specific, and say when you are " +
		"uncertain.",
}

func resolveMode(m string) Mode {
	mode := Mode(m)
	if _, ok := modePrompts[mode]; !ok {
		return defaultMode
	}
	return mode
}

func systemPromptFor(mode Mode) string {
	if p, ok := modePrompts[mode]; ok {
		return p
	}
	return modePrompts[defaultMode]
}
