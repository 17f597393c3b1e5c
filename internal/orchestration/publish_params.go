package orchestration

import (
	"reflect"

	"github.com/jakesower/gtfs-import/contracts"
	"github.com/jakesower/gtfs-import/internal/audit"
)

// MergePublishParameters returns the union of the analysis-derived parameters
// and the static per-file policy. A policy key replaces the analyzed value
// whole, nested maps included; each replacement of a differing value is
// logged. The result is a deep copy, so neither input is modified and later
// changes to the result never reach the analyze task's value.
func MergePublishParameters(fileName string, analyzed, policy contracts.PublishParameters) contracts.PublishParameters {
	merged := analyzed.DeepClone()
	for k, v := range policy.DeepClone() {
		if prev, ok := merged[k]; ok && !reflect.DeepEqual(prev, v) {
			audit.Log("publish policy replaces analyzed parameter", "file", fileName, "key", k, "analyzed", prev, "policy", v)
		}
		merged[k] = v
	}
	return merged
}
