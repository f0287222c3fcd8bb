package models

import "time"

// Invoice is the data rendered into the payment receipt after settlement.
type Invoice struct {
	InvoiceID     string        `json:"invoiceId"`
	Reference     Reference     `json:"reference"`
	CustomerName  string        `json:"customerName"`
	ProviderName  string        `json:"providerName"`
	LineItems     []LineItem    `json:"lineItems"`
	TotalAmount   float64       `json:"totalAmount"`
	Discount      float64       `json:"discount"`
	FinalAmount   float64       `json:"finalAmount"`
	Currency      string        `json:"currency"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	PaymentID     string        `json:"paymentId"`
	IssuedAt      time.Time     `json:"issuedAt"`
}
