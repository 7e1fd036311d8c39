package consolidation

import (
	"regexp"
	"time"

	"github.com/cogmem/cogmem/store"
)

// FeatureVector is the 11-float, stable-order input to both the
// heuristic fallback and the tabular classifier (spec.md §4.11).
type FeatureVector [11]float64

const (
	featContentLength = iota
	featIsVerbal
	featIsSpatial
	featActivationLevel
	featImportance
	featSecondsInWM
	featHasTemporalMarkers
	featHasActionVerbs
	featHasFutureMarkers
	featHasQuestionWords
	featHasFileReferences
	featureCount
)

// Keyword/pattern sets, fixed per the glossary.
var (
	temporalMarkerPattern = regexp.MustCompile(`(?i)\b(when|at|on|yesterday|today|tomorrow|last week|occurred|happened|during|while|before|after|since|until)\b|\d{1,2}:\d{2}|\d{4}-\d{2}-\d{2}`)
	actionVerbPattern     = regexp.MustCompile(`(?i)\b(implement|fix|create|update|delete|test|deploy|configure|setup|build|run|execute|install|compile|debug|refactor|optimize|how to|step|procedure|workflow|process)\b`)
	futureMarkerPattern   = regexp.MustCompile(`(?i)\b(will|todo|task|reminder|scheduled|plan|need to|should|must|going to|next|later|upcoming|deadline|due)\b`)
	questionWordPattern   = regexp.MustCompile(`(?i)\b(what|why|how|when|where|who|which)\b`)
	fileReferencePattern  = regexp.MustCompile(`[\w./-]+\.[A-Za-z0-9]{1,5}\b`)
)

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ComputeFeatures extracts the 11-float feature vector from a
// working-memory item, evaluated at `now`.
func ComputeFeatures(item store.WorkingMemoryItem, now time.Time) FeatureVector {
	secondsInWM := now.Sub(item.CreatedAt).Seconds()
	if secondsInWM < 0 {
		secondsInWM = 0
	}
	var f FeatureVector
	f[featContentLength] = float64(len(item.Content))
	f[featIsVerbal] = boolF(item.ContentType == "verbal")
	f[featIsSpatial] = boolF(item.ContentType == "spatial")
	f[featActivationLevel] = item.ActivationLevel
	f[featImportance] = item.Importance
	f[featSecondsInWM] = secondsInWM
	f[featHasTemporalMarkers] = boolF(temporalMarkerPattern.MatchString(item.Content))
	f[featHasActionVerbs] = boolF(actionVerbPattern.MatchString(item.Content))
	f[featHasFutureMarkers] = boolF(futureMarkerPattern.MatchString(item.Content))
	f[featHasQuestionWords] = boolF(questionWordPattern.MatchString(item.Content))
	f[featHasFileReferences] = boolF(fileReferencePattern.MatchString(item.Content))
	return f
}
