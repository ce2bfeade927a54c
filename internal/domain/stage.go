package domain

// Stage is the wizard position of a session
type Stage string

const (
	StageStart Stage = "START"
	StageReady Stage = "READY"

	// Tenant owner wizards
	StageAwaitID           Stage = "AWAIT_ID"
	StageAwaitSecret       Stage = "AWAIT_SECRET"
	StageAwaitKey          Stage = "AWAIT_KEY"
	StageAwaitModelChoice  Stage = "AWAIT_MODEL_CHOICE"
	StageAwaitPrompt       Stage = "AWAIT_PROMPT"
	StageAwaitInstanceName Stage = "AWAIT_INSTANCE_NAME"

	// Master control plane wizards
	StageMasterAwaitName         Stage = "MASTER_AWAIT_NAME"
	StageMasterAwaitCredential   Stage = "MASTER_AWAIT_CREDENTIAL"
	StageMasterAwaitOwner        Stage = "MASTER_AWAIT_OWNER"
	StageMasterAwaitQuota        Stage = "MASTER_AWAIT_QUOTA"
	StageMasterAwaitPrice        Stage = "MASTER_AWAIT_PRICE"
	StageMasterAwaitDefaultPrice Stage = "MASTER_AWAIT_DEFAULT_PRICE"
)

var knownStages = map[Stage]struct{}{
	StageStart:                   {},
	StageReady:                   {},
	StageAwaitID:                 {},
	StageAwaitSecret:             {},
	StageAwaitKey:                {},
	StageAwaitModelChoice:        {},
	StageAwaitPrompt:             {},
	StageAwaitInstanceName:       {},
	StageMasterAwaitName:         {},
	StageMasterAwaitCredential:   {},
	StageMasterAwaitOwner:        {},
	StageMasterAwaitQuota:        {},
	StageMasterAwaitPrice:        {},
	StageMasterAwaitDefaultPrice: {},
}

// Valid reports whether s is one of the declared stages
func (s Stage) Valid() bool {
	_, ok := knownStages[s]
	return ok
}

// Idle reports whether the session is outside any wizard
func (s Stage) Idle() bool {
	return s == StageReady || s == StageStart
}

func (s Stage) String() string {
	return string(s)
}
