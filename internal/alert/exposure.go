package alert

import (
	"fmt"
	"strconv"
)

// Findings is the run summary an exposure alert is built from.
type Findings struct {
	Records           int
	InfiniteApprovals int
	KnownValueUSD     float64
	UnknownValue      int
	FailedItems       int
}

// ExposureAlert returns the alert for a finished run, or false when nothing
// crosses the thresholds. A non-positive usdThreshold disables the USD check.
func ExposureAlert(runID string, f Findings, usdThreshold float64) (Alert, bool) {
	highValue := usdThreshold > 0 && f.KnownValueUSD >= usdThreshold
	if !highValue && f.InfiniteApprovals == 0 {
		return Alert{}, false
	}

	a := Alert{
		RunID: runID,
		Fields: map[string]string{
			"records":            strconv.Itoa(f.Records),
			"infinite_approvals": strconv.Itoa(f.InfiniteApprovals),
			"exposed_value_usd":  strconv.FormatFloat(f.KnownValueUSD, 'f', 2, 64),
			"unknown_value":      strconv.Itoa(f.UnknownValue),
			"failed_items":       strconv.Itoa(f.FailedItems),
		},
	}
	if highValue {
		a.Type = AlertTypeHighExposure
		a.Title = "High approval exposure"
		a.Message = fmt.Sprintf("Known exposure $%.2f is at or above the $%.2f threshold", f.KnownValueUSD, usdThreshold)
	} else {
		a.Type = AlertTypeInfiniteApproval
		a.Title = "Infinite approvals found"
		a.Message = fmt.Sprintf("%d approval(s) grant an unlimited allowance", f.InfiniteApprovals)
	}
	return a, true
}

// RunFailedAlert reports a run that aborted before producing results.
func RunFailedAlert(runID string, err error) Alert {
	return Alert{
		Type:    AlertTypeRunFailed,
		RunID:   runID,
		Title:   "Approval audit failed",
		Message: err.Error(),
	}
}
