package order

// QueryOrdersModel represents filter parameters for querying orders
type QueryOrdersModel struct {
	IDs           []string `json:"ids,omitempty"`
	CorrelationID string   `json:"correlationId,omitempty"`
	IntentID      string   `json:"intentId,omitempty"`
	Status        Status   `json:"status,omitempty"`
	Limit         int      `json:"limit,omitempty"`
	Offset        int      `json:"offset,omitempty"`
}
