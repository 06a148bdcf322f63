package model

import (
	"time"
)

const TableTransactions = "transactions"

const (
	TxStatusPending   = "pending"
	TxStatusConfirmed = "confirmed"
	TxStatusFailed    = "failed"
)

// BlockchainTransaction is the cached, display-ready record of one
// supply chain event. One row per (hash, batch_id) pair per owner,
// written with upsert semantics and never mutated after insert.
type BlockchainTransaction struct {
	ID int64 `gorm:"primaryKey" json:"-"`

	// Owning application user the row was synced for
	OwnerID string `gorm:"uniqueIndex:idx_transactions_hash_batch_owner" json:"owner_id"`

	Hash           string `gorm:"uniqueIndex:idx_transactions_hash_batch_owner" json:"hash"`
	BatchID        string `gorm:"uniqueIndex:idx_transactions_hash_batch_owner" json:"batch_id"`
	BlockNumber    int64  `json:"block_number"`
	BlockTimestamp int64  `json:"block_timestamp"`
	FromAddress    string `gorm:"index" json:"from_address"`
	ToAddress      string `json:"to_address"`
	Value          string `json:"value"`
	GasUsed        uint64 `json:"gas_used"`
	GasPrice       string `json:"gas_price"`
	Fee            string `json:"fee"`
	Status         string `gorm:"index" json:"status"`
	EventType      string `gorm:"index" json:"event_type"`

	// Metadata derived from the parsed event
	BatchNumber string `json:"batch_number"`
	Phase       string `json:"phase"`
	Actor       string `json:"actor"`
	Description string `json:"description"`

	CreatedAt time.Time `json:"created_at"`
}

func (BlockchainTransaction) TableName() string {
	return TableTransactions
}
