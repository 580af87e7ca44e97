package db

import (
	"time"
)

type AccountKind string

const (
	AccountUser  AccountKind = "user"
	AccountGroup AccountKind = "group"
)

type Account struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Kind      AccountKind `json:"kind"`
	ParentID  *int64      `json:"parent_id"`
	Balance   float64     `json:"balance"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type AccountTransaction struct {
	ID         int64     `json:"id"`
	AccountID  int64     `json:"account_id"`
	DispatchID string    `json:"dispatch_id"`
	Amount     float64   `json:"amount"`
	Weight     int       `json:"weight"`
	WeightUnit int       `json:"weight_unit"`
	Narrative  string    `json:"narrative"`
	CreatedAt  time.Time `json:"created_at"`
}

type DocumentLog struct {
	ID            int64     `json:"id"`
	SupplierDocID string    `json:"supplier_doc_id"`
	Account       string    `json:"account"`
	Name          string    `json:"name"`
	Requester     string    `json:"requester"`
	Status        string    `json:"status"`
	Comment       string    `json:"comment"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Printer struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Address       string    `json:"address"`
	Port          int       `json:"port"`
	Media         string    `json:"media"`
	ColorCapable  bool      `json:"color_capable"`
	DuplexCapable bool      `json:"duplex_capable"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type DispatchRecord struct {
	ID             int64      `json:"id"`
	Correlation    string     `json:"correlation"`
	DocumentLogID  int64      `json:"document_log_id"`
	Account        string     `json:"account"`
	Mode           string     `json:"mode"`
	Printer        string     `json:"printer"`
	JobName        string     `json:"job_name"`
	Status         string     `json:"status"`
	AllocationJSON string     `json:"allocation_json"`
	Cost           float64    `json:"cost"`
	Payload        []byte     `json:"-"`
	SubmitJSON     string     `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      *time.Time `json:"expires_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Encrypted bool      `json:"encrypted"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DispatchFilter struct {
	Account string
	Status  string
	Mode    string
	Limit   int
	Offset  int
}
