package models

// Quality is the read-time confidence tier of a record.
type Quality string

const (
	QualityMissing Quality = "missing"
	QualityStale   Quality = "stale"
	QualityHigh    Quality = "high"
	QualityMedium  Quality = "medium"
	QualityLow     Quality = "low"
)

// NeedsRefresh reports whether records in this tier should be re-enriched.
func (q Quality) NeedsRefresh() bool {
	switch q {
	case QualityMissing, QualityLow, QualityStale:
		return true
	}
	return false
}

func (q Quality) String() string {
	return string(q)
}
