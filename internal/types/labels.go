package types

// Labels the pipeline itself applies. Rule documents may use any other label.
const (
	// LabelDuplicate marks an item that duplicates an open item.
	LabelDuplicate = "duplicate"

	// LabelPriorArt marks an item already solved by a closed item.
	// The closed item is linked rather than the new one being closed.
	LabelPriorArt = "prior-art"

	// LabelCritical and LabelBug are applied by the built-in safe default rule.
	LabelCritical = "critical"
	LabelBug      = "bug"

	// LabelNeedsReview is suggested for items no rule matched.
	LabelNeedsReview = "triage/needs-review"
)
