package models

// MPosition represents one holding of a client. Read-only within the core.
type MPosition struct {
	ClientID string  `json:"client_id"`
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
}

// MMarginAccount represents a client's loan record. Only the recomputed
// margin requirement is ever written back.
type MMarginAccount struct {
	ClientID          string  `json:"client_id"`
	Loan              float64 `json:"loan"`
	MarginRequirement float64 `json:"margin_requirement"`
}

// MPricedPosition is a position with its resolved price and value.
type MPricedPosition struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Value    float64 `json:"value"`
}

// -----------------------------------------------------------------------------
// MarginStatus Snapshot
// -----------------------------------------------------------------------------

// MMarginStatus is an immutable result of one margin computation.
// Created fresh each time, never mutated, only superseded.
type MMarginStatus struct {
	ClientID          string            `json:"clientId"`
	Positions         []MPricedPosition `json:"positions"`
	PortfolioValue    float64           `json:"portfolioValue"`
	LoanAmount        float64           `json:"loanAmount"`
	NetEquity         float64           `json:"netEquity"`
	MarginRequirement float64           `json:"marginRequirement"`
	MarginShortfall   float64           `json:"marginShortfall"`
	MarginCall        bool              `json:"marginCall"`
	Timestamp         int64             `json:"timestamp"`
}
