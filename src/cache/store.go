package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/freshtrace/chaincore/src/utils/logger"
	"github.com/freshtrace/chaincore/src/utils/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrPersistence = errors.New("persistence error")

// Search results are capped, search is a lookup aid not an export path.
const maxSearchResults = 100

// Filter narrows history queries. Zero values mean "any".
type Filter struct {
	EventType     string
	BatchID       string
	FromAddress   string
	Status        string
	FromTimestamp int64
	ToTimestamp   int64
}

type condition struct {
	expr string
	arg  interface{}
}

// conditions translates the filter into WHERE clauses. Kept separate
// from gorm so the translation is testable without a database.
func (self Filter) conditions(ownerID string) (out []condition) {
	out = append(out, condition{"owner_id = ?", ownerID})
	if self.EventType != "" {
		out = append(out, condition{"event_type = ?", self.EventType})
	}
	if self.BatchID != "" {
		out = append(out, condition{"batch_id = ?", self.BatchID})
	}
	if self.FromAddress != "" {
		out = append(out, condition{"LOWER(from_address) = LOWER(?)", self.FromAddress})
	}
	if self.Status != "" {
		out = append(out, condition{"status = ?", self.Status})
	}
	if self.FromTimestamp > 0 {
		out = append(out, condition{"block_timestamp >= ?", self.FromTimestamp})
	}
	if self.ToTimestamp > 0 {
		out = append(out, condition{"block_timestamp <= ?", self.ToTimestamp})
	}
	return
}

// Page is one slice of the transaction history plus pagination meta.
type Page struct {
	Transactions []model.BlockchainTransaction `json:"transactions"`
	TotalCount   int64                         `json:"total_count"`
	HasMore      bool                          `json:"has_more"`
}

// Store is the cached transaction history, backed by the transactions
// table. Rows are written with upsert semantics so re-syncing the same
// range is safe.
type Store struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewStore(db *gorm.DB) (self *Store) {
	self = new(Store)
	self.log = logger.NewSublogger("cache")
	self.db = db
	return
}

// Upsert inserts the row or overwrites the previous version of the same
// (owner, hash, batch) triple.
func (self *Store) Upsert(ctx context.Context, transaction *model.BlockchainTransaction) (err error) {
	err = self.db.WithContext(ctx).
		Table(model.TableTransactions).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "owner_id"},
				{Name: "hash"},
				{Name: "batch_id"},
			},
			UpdateAll: true,
		}).
		Create(transaction).
		Error
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPersistence, err)
	}
	return
}

// List returns one page of the owner's history, newest block first.
func (self *Store) List(ctx context.Context, ownerID string, filter Filter, limit, offset int) (page *Page, err error) {
	query := self.db.WithContext(ctx).Table(model.TableTransactions)
	for _, c := range filter.conditions(ownerID) {
		query = query.Where(c.expr, c.arg)
	}

	page = new(Page)
	err = query.Count(&page.TotalCount).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPersistence, err)
	}

	err = query.
		Order("block_timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&page.Transactions).
		Error
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPersistence, err)
	}

	page.HasMore = page.TotalCount > int64(offset+limit)
	return
}

// Search matches the term as a case-insensitive substring of the batch
// id, batch number, hash or description. Capped, no pagination meta.
func (self *Store) Search(ctx context.Context, ownerID, term string, filter Filter) (transactions []model.BlockchainTransaction, err error) {
	query := self.db.WithContext(ctx).Table(model.TableTransactions)
	for _, c := range filter.conditions(ownerID) {
		query = query.Where(c.expr, c.arg)
	}

	pattern := "%" + term + "%"
	err = query.
		Where("batch_id ILIKE ? OR batch_number ILIKE ? OR hash ILIKE ? OR description ILIKE ?",
			pattern, pattern, pattern, pattern).
		Order("block_timestamp DESC").
		Limit(maxSearchResults).
		Find(&transactions).
		Error
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPersistence, err)
	}
	return
}

// Export returns the owner's whole history, newest block first. The
// caller renders it, typically to CSV.
func (self *Store) Export(ctx context.Context, ownerID string) (transactions []model.BlockchainTransaction, err error) {
	err = self.db.WithContext(ctx).
		Table(model.TableTransactions).
		Where("owner_id = ?", ownerID).
		Order("block_timestamp DESC").
		Find(&transactions).
		Error
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPersistence, err)
	}
	return
}
