package model

// SkipReason explains why a work item produced no record.
type SkipReason string

const (
	SkipNone          SkipReason = ""
	SkipRPCError      SkipReason = "rpc_error"
	SkipZeroAllowance SkipReason = "zero_allowance"
	SkipCanceled      SkipReason = "canceled"
)

// ItemResult is the outcome of one work item: either a record or a skip reason.
type ItemResult struct {
	Item   WorkItem
	Record *ApprovalRecord
	Skip   SkipReason
	Err    error
}

// Succeeded reports whether the item produced a record.
func (r ItemResult) Succeeded() bool {
	return r.Record != nil && r.Skip == SkipNone
}

// Failed reports whether the item was skipped because of an error.
func (r ItemResult) Failed() bool {
	return r.Err != nil
}

// Outcome is a short label for metrics and logs.
func (r ItemResult) Outcome() string {
	switch {
	case r.Succeeded():
		return "recorded"
	case r.Skip == SkipNone:
		return "empty"
	default:
		return string(r.Skip)
	}
}

// Succeed wraps a record into a successful result.
func Succeed(item WorkItem, record ApprovalRecord) ItemResult {
	return ItemResult{Item: item, Record: &record}
}

// Skip builds a result with no record.
func Skip(item WorkItem, reason SkipReason, err error) ItemResult {
	return ItemResult{Item: item, Skip: reason, Err: err}
}
