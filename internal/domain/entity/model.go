package entity

// Model is one entry of the aggregated model catalog. ID is the composite
// "<backend>/<raw-model-id>" form exposed to clients.
type Model struct {
	ID          string `json:"id"`
	Object      string `json:"object"`
	Created     int64  `json:"created"`
	OwnedBy     string `json:"owned_by"`
	BackendName string `json:"backend_name,omitempty"`
}
