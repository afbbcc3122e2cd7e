package models

// VMChange is the human-readable change list for one VM produced by a
// reconciliation pass. Dry-run and live runs build the same entries.
type VMChange struct {
	VMID       string   `json:"vm_id"`
	ExternalID string   `json:"external_id"`
	Name       string   `json:"name"`
	Changes    []string `json:"changes"`
}

// ReconcileSummary is the count vector returned by a reconciliation run.
type ReconcileSummary struct {
	Updated  int        `json:"updated"`
	Created  int        `json:"created"`
	Deleted  int        `json:"deleted"`
	NotFound int        `json:"not_found"`
	Errored  int        `json:"errored"`
	Changes  []VMChange `json:"changes,omitempty"`
}

// AggregateSummary reports one aggregator run.
type AggregateSummary struct {
	Checked  int `json:"checked"`
	Adjusted int `json:"adjusted"`
	Errored  int `json:"errored"`
}

// MeterSummary reports one daily metering run.
type MeterSummary struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}

// AlertSummary reports one alert evaluation run.
type AlertSummary struct {
	Evaluated     int `json:"evaluated"`
	Fired         int `json:"fired"`
	Resolved      int `json:"resolved"`
	Indeterminate int `json:"indeterminate"`
}

// CollectSummary reports one metric collection run.
type CollectSummary struct {
	Collected int `json:"collected"`
	Errored   int `json:"errored"`
}
