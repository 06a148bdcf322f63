package server

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/freshtrace/chaincore/src/cache"
	"github.com/freshtrace/chaincore/src/queue"
	"github.com/freshtrace/chaincore/src/sessionkey"
	"github.com/freshtrace/chaincore/src/tracker"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
)

const defaultPageSize = 50

func onError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tracker.ErrNotFound),
		errors.Is(err, queue.ErrNotFound),
		errors.Is(err, sessionkey.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, queue.ErrProcessing),
		errors.Is(err, queue.ErrNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, sessionkey.ErrExpired),
		errors.Is(err, sessionkey.ErrNotPermitted):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func queryFilter(c *gin.Context) cache.Filter {
	fromTs, _ := strconv.ParseInt(c.Query("from_timestamp"), 10, 64)
	toTs, _ := strconv.ParseInt(c.Query("to_timestamp"), 10, 64)
	return cache.Filter{
		EventType:     c.Query("event_type"),
		BatchID:       c.Query("batch_id"),
		FromAddress:   c.Query("from_address"),
		Status:        c.Query("status"),
		FromTimestamp: fromTs,
		ToTimestamp:   toTs,
	}
}

func (self *Server) onListTransactions(c *gin.Context) {
	owner := c.Query("owner")
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner is required"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	page, err := self.store.List(c.Request.Context(), owner, queryFilter(c), limit, offset)
	if err != nil {
		onError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (self *Server) onSearchTransactions(c *gin.Context) {
	owner := c.Query("owner")
	term := c.Query("q")
	if owner == "" || term == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner and q are required"})
		return
	}

	transactions, err := self.store.Search(c.Request.Context(), owner, term, queryFilter(c))
	if err != nil {
		onError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

func (self *Server) onExportTransactions(c *gin.Context) {
	owner := c.Query("owner")
	if owner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner is required"})
		return
	}

	transactions, err := self.store.Export(c.Request.Context(), owner)
	if err != nil {
		onError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="transactions.csv"`)

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	_ = writer.Write([]string{
		"hash", "batch_id", "batch_number", "event_type", "phase", "description",
		"actor", "status", "block_number", "block_timestamp", "gas_used", "fee",
	})
	for _, transaction := range transactions {
		_ = writer.Write([]string{
			transaction.Hash,
			transaction.BatchID,
			transaction.BatchNumber,
			transaction.EventType,
			transaction.Phase,
			transaction.Description,
			transaction.Actor,
			transaction.Status,
			strconv.FormatInt(transaction.BlockNumber, 10),
			strconv.FormatInt(transaction.BlockTimestamp, 10),
			strconv.FormatUint(transaction.GasUsed, 10),
			transaction.Fee,
		})
	}
}

func (self *Server) onListTracked(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"transactions": self.tracker.List()})
}

func (self *Server) onGetTracked(c *gin.Context) {
	snapshot, err := self.tracker.Get(common.HexToHash(c.Param("hash")))
	if err != nil {
		onError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (self *Server) onListQueue(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": self.queue.Items()})
}

type enqueueRequest struct {
	To          common.Address `json:"to" binding:"required"`
	Data        hexutil.Bytes  `json:"data"`
	Value       *hexutil.Big   `json:"value"`
	Description string         `json:"description"`
}

func (self *Server) onEnqueue(c *gin.Context) {
	var request enqueueRequest
	err := c.ShouldBindJSON(&request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := self.queue.Enqueue(c.Request.Context(), request.To, request.Data, request.Value, request.Description)
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (self *Server) onProcessQueue(c *gin.Context) {
	hash, err := self.queue.ProcessAll(c.Request.Context())
	if err != nil {
		onError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hash": hash.Hex()})
}

func (self *Server) onClearQueue(c *gin.Context) {
	err := self.queue.Clear(c.Request.Context())
	if err != nil {
		onError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (self *Server) onRemoveQueued(c *gin.Context) {
	err := self.queue.Remove(c.Request.Context(), c.Param("id"))
	if err != nil {
		onError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (self *Server) onListSessions(c *gin.Context) {
	keys := self.sessions.GetActive()

	// Private key material never leaves the process
	type view struct {
		Address     common.Address          `json:"address"`
		ValidAfter  time.Time               `json:"valid_after"`
		ValidUntil  time.Time               `json:"valid_until"`
		Permissions []sessionkey.Permission `json:"permissions"`
		EnabledTx   string                  `json:"enabled_tx,omitempty"`
	}

	views := make([]view, 0, len(keys))
	for _, key := range keys {
		views = append(views, view{
			Address:     key.Address,
			ValidAfter:  key.ValidAfter,
			ValidUntil:  key.ValidUntil,
			Permissions: key.Permissions,
			EnabledTx:   key.EnabledTx,
		})
	}
	c.JSON(http.StatusOK, gin.H{"keys": views})
}

type createSessionRequest struct {
	Duration    string                  `json:"duration"`
	Permissions []sessionkey.Permission `json:"permissions"`
}

func (self *Server) onCreateSession(c *gin.Context) {
	var request createSessionRequest
	err := c.ShouldBindJSON(&request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var duration time.Duration
	if request.Duration != "" {
		duration, err = time.ParseDuration(request.Duration)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	key, err := self.sessions.Create(c.Request.Context(), duration, request.Permissions)
	if err != nil {
		onError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"address":     key.Address,
		"valid_until": key.ValidUntil,
	})
}

func (self *Server) onEnableSession(c *gin.Context) {
	hash, err := self.sessions.Enable(c.Request.Context(), common.HexToAddress(c.Param("address")))
	if err != nil {
		onError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hash": hash.Hex()})
}

func (self *Server) onRevokeSession(c *gin.Context) {
	err := self.sessions.Revoke(c.Request.Context(), common.HexToAddress(c.Param("address")))
	if err != nil {
		onError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
