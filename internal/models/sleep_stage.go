package models

import "strings"

// Canonical sleep stage names (as used by Apple Health in English).
const (
	SleepStageCore   = "Core"
	SleepStageDeep   = "Deep"
	SleepStageREM    = "REM"
	SleepStageAwake  = "Awake"
	SleepStageInBed  = "In Bed"
	SleepStageAsleep = "Asleep"
)

// sleepStageMap maps lowercased localized stage names to canonical names.
var sleepStageMap = map[string]string{
	"core":   SleepStageCore,
	"deep":   SleepStageDeep,
	"rem":    SleepStageREM,
	"awake":  SleepStageAwake,
	"in bed": SleepStageInBed,
	"asleep": SleepStageAsleep,

	"kern":    SleepStageCore,
	"tief":    SleepStageDeep,
	"wach":    SleepStageAwake,
	"im bett": SleepStageInBed,

	"léger":   SleepStageCore,
	"profond": SleepStageDeep,
	"éveillé": SleepStageAwake,
	"au lit":  SleepStageInBed,
	"endormi": SleepStageAsleep,

	"principal":  SleepStageCore,
	"profundo":   SleepStageDeep,
	"despierto":  SleepStageAwake,
	"en la cama": SleepStageInBed,
	"dormido":    SleepStageAsleep,
}

// NormalizeSleepStage maps a possibly-localized sleep stage name to its
// canonical English equivalent. Returns the original string and false if unknown.
func NormalizeSleepStage(raw string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := sleepStageMap[lower]; ok {
		return canonical, true
	}
	return raw, false
}

// CountsAsSleep reports whether time in the canonical stage counts toward
// total sleep duration.
func CountsAsSleep(stage string) bool {
	switch stage {
	case SleepStageCore, SleepStageDeep, SleepStageREM, SleepStageAsleep:
		return true
	}
	return false
}
