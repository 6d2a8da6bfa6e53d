package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

// Journal statuses.
const (
	StatusInitiated        = "INITIATED"
	StatusInitiationFailed = "INITIATION_FAILED"
	StatusSuccess          = "SUCCESS"
	StatusFailure          = "FAILURE"
	StatusCanceled         = "CANCELED"
)

// UnknownCurrency buckets amounts recorded without a currency.
const UnknownCurrency = "unknown"

// LogEntry is one payment lifecycle event.
type LogEntry struct {
	Timestamp     time.Time       `json:"timestamp"`
	OrderID       int64           `json:"orderId"`
	OrderGUID     string          `json:"orderGuid"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	Gateway       string          `json:"gateway"`
	TransactionID string          `json:"transactionId,omitempty"`
	ErrorCode     string          `json:"errorCode,omitempty"` // outcome label of a failure
	ErrorMessage  string          `json:"errorMessage,omitempty"`
}

// RetrospectiveReport summarizes payment activity over a set of entries.
type RetrospectiveReport struct {
	TotalEvents          int                        `json:"totalEvents"`
	Initiations          int                        `json:"initiations"`
	InitiationFailures   int                        `json:"initiationFailures"`
	SuccessfulPayments   int                        `json:"successfulPayments"`
	FailedPayments       int                        `json:"failedPayments"`
	Cancellations        int                        `json:"cancellations"`
	TotalAmountProcessed decimal.Decimal            `json:"totalAmountProcessed"` // successful payments only
	AmountByCurrency     map[string]decimal.Decimal `json:"amountByCurrency"`
	ErrorBreakdown       map[string]int             `json:"errorBreakdown"` // failures by ErrorCode
	GatewayUsage         map[string]int             `json:"gatewayUsage"`
	DateFrom             time.Time                  `json:"dateFrom"`
	DateTo               time.Time                  `json:"dateTo"`
	ProcessingDuration   time.Duration              `json:"processingDuration"`
}

// RetrospectiveReporter generates retrospective reports from log entries.
type RetrospectiveReporter struct{}

// NewRetrospectiveReporter creates a new RetrospectiveReporter.
func NewRetrospectiveReporter() *RetrospectiveReporter {
	return &RetrospectiveReporter{}
}

func emptyReport() *RetrospectiveReport {
	return &RetrospectiveReport{
		AmountByCurrency: make(map[string]decimal.Decimal),
		ErrorBreakdown:   make(map[string]int),
		GatewayUsage:     make(map[string]int),
	}
}

// GenerateRetrospective analyzes entries and produces a RetrospectiveReport.
func (rr *RetrospectiveReporter) GenerateRetrospective(logs []LogEntry) (*RetrospectiveReport, error) {
	report := emptyReport()
	if len(logs) == 0 {
		return report, nil
	}

	report.DateFrom = logs[0].Timestamp
	report.DateTo = logs[0].Timestamp
	for _, entry := range logs {
		report.TotalEvents++

		if entry.Timestamp.Before(report.DateFrom) {
			report.DateFrom = entry.Timestamp
		}
		if entry.Timestamp.After(report.DateTo) {
			report.DateTo = entry.Timestamp
		}
		if entry.Gateway != "" {
			report.GatewayUsage[entry.Gateway]++
		}

		switch entry.Status {
		case StatusInitiated:
			report.Initiations++
		case StatusInitiationFailed:
			report.InitiationFailures++
			if entry.ErrorCode != "" {
				report.ErrorBreakdown[entry.ErrorCode]++
			}
		case StatusSuccess:
			report.SuccessfulPayments++
			report.TotalAmountProcessed = report.TotalAmountProcessed.Add(entry.Amount)
			currency := entry.Currency
			if currency == "" {
				currency = UnknownCurrency
			}
			report.AmountByCurrency[currency] = report.AmountByCurrency[currency].Add(entry.Amount)
		case StatusFailure:
			report.FailedPayments++
			if entry.ErrorCode != "" {
				report.ErrorBreakdown[entry.ErrorCode]++
			}
		case StatusCanceled:
			report.Cancellations++
		}
	}
	report.ProcessingDuration = report.DateTo.Sub(report.DateFrom)
	return report, nil
}
