package models

// NormalizedCase is the analysis-ready input snapshot a case is evaluated
// against. Normalization (units, currency, timestamps) is a precondition of
// ingestion; the rule engine treats this structure as already clean.
type NormalizedCase struct {
	Customer     Customer      `json:"customer"`
	KYC          KYCProfile    `json:"kyc"`
	Transactions []Transaction `json:"transactions"`
	Alerts       []Alert       `json:"alerts"`
	Aggregates   Aggregates    `json:"aggregates"`
}

// Customer identifies the subject of a case.
type Customer struct {
	CustomerID  string `json:"customer_id"`
	Name        string `json:"name"`
	Nationality string `json:"nationality,omitempty"`
	Occupation  string `json:"occupation,omitempty"`
}

// KYCProfile carries the know-your-customer flags the rules depend on.
type KYCProfile struct {
	RiskRating    string  `json:"risk_rating"` // low | medium | high
	PEPStatus     bool    `json:"pep_status"`
	SanctionsHit  bool    `json:"sanctions_match"`
	AnnualIncome  float64 `json:"annual_income,omitempty"`
	SourceOfFunds string  `json:"source_of_funds,omitempty"`
}

// Transaction is a single normalized movement of funds.
type Transaction struct {
	TransactionID       string  `json:"transaction_id"`
	Date                string  `json:"date"` // RFC 3339 date
	Amount              float64 `json:"amount"`
	Currency            string  `json:"currency"`
	Type                string  `json:"type"` // credit | debit
	CounterpartyName    string  `json:"counterparty_name,omitempty"`
	CounterpartyAccount string  `json:"counterparty_account,omitempty"`
	CounterpartyCountry string  `json:"counterparty_country,omitempty"`
	Channel             string  `json:"channel,omitempty"`
}

// Alert is an upstream monitoring alert attached to the case at ingestion.
type Alert struct {
	AlertID     string `json:"alert_id"`
	AlertType   string `json:"alert_type"`
	Severity    string `json:"severity"`
	Description string `json:"description,omitempty"`
}

// Aggregates are precomputed statistics over the transaction set.
type Aggregates struct {
	TotalTransactions    int     `json:"total_transactions"`
	TotalCredit          float64 `json:"total_credit"`
	TotalDebit           float64 `json:"total_debit"`
	UniqueCounterparties int     `json:"unique_counterparties"`
	AvgTransactionAmount float64 `json:"avg_transaction_amount"`
	MaxTransactionAmount float64 `json:"max_transaction_amount"`
	DateRangeDays        int     `json:"date_range_days"`
}
