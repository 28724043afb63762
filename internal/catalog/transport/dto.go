package transport

import "time"

// Provider sync

const (
	OutcomeFulfilled = "fulfilled"
	OutcomeRejected  = "rejected"
)

type SyncProviderRequest struct {
	Provider string `uri:"provider" validate:"required,providername"`
}

type BatchFailure struct {
	Stage string `json:"stage"`
	Batch int    `json:"batch"`
	Size  int    `json:"size"`
	Error string `json:"error"`
}

type SyncResult struct {
	RunID           string         `json:"runId"`
	Provider        string         `json:"provider"`
	Processed       int            `json:"processed"`
	Created         int            `json:"created"`
	Updated         int            `json:"updated"`
	Skipped         int            `json:"skipped"`
	MappingsCreated int            `json:"mappingsCreated"`
	ServicesUpdated int            `json:"servicesUpdated"`
	PricingsCreated int            `json:"pricingsCreated"`
	FailedBatches   int            `json:"failedBatches"`
	Failures        []BatchFailure `json:"failures,omitempty"`
	StartedAt       time.Time      `json:"startedAt"`
	FinishedAt      time.Time      `json:"finishedAt"`
}

type SyncOutcome struct {
	Provider string      `json:"provider"`
	Status   string      `json:"status"`
	Data     *SyncResult `json:"data,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

type SyncOutcomeList struct {
	Outcomes []SyncOutcome `json:"outcomes"`
}

type EnqueueSyncResponse struct {
	Provider string `json:"provider"`
	Queued   bool   `json:"queued"`
}

// LastSync is the most recent stored outcome of one provider.
type LastSync struct {
	Provider        string    `json:"provider"`
	RunID           string    `json:"runId"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason,omitempty"`
	Processed       int       `json:"processed"`
	Created         int       `json:"created"`
	Updated         int       `json:"updated"`
	Skipped         int       `json:"skipped"`
	MappingsCreated int       `json:"mappingsCreated"`
	ServicesUpdated int       `json:"servicesUpdated"`
	PricingsCreated int       `json:"pricingsCreated"`
	FailedBatches   int       `json:"failedBatches"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
}

type ProviderSyncStatus struct {
	Provider string    `json:"provider"`
	State    string    `json:"state"`
	LastRun  *LastSync `json:"lastRun,omitempty"`
}

type SyncStatusResponse struct {
	Providers []ProviderSyncStatus `json:"providers"`
}

// Catalog

type ListServicesRequest struct {
	CategoryID      *int64 `form:"categoryId" validate:"omitempty,min=1"`
	CustomerGroupID *int64 `form:"customerGroupId" validate:"omitempty,min=1"`
}

type ListBestPricingRequest struct {
	CategoryID *int64 `form:"categoryId" validate:"omitempty,min=1"`
}

type ServicePricingResponse struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Status        bool    `json:"status"`
	CategoryName  string  `json:"categoryName"`
	Provider      *string `json:"provider,omitempty"`
	ProviderPrice *int64  `json:"providerPrice,omitempty"`
	PriceSale     *int64  `json:"priceSale,omitempty"`
	Profit        *int64  `json:"profit,omitempty"`
	CustomerGroup *string `json:"customerGroup,omitempty"`
}

type ServicePricingListResponse struct {
	Items []ServicePricingResponse `json:"items"`
}

type BestPricingResponse struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	CategoryID         int64  `json:"categoryId"`
	CategoryName       string `json:"categoryName"`
	BestProviderPrice  int64  `json:"bestProviderPrice"`
	AvailableProviders string `json:"availableProviders"`
	ProviderCount      int    `json:"providerCount"`
}

type BestPricingListResponse struct {
	Items []BestPricingResponse `json:"items"`
}
