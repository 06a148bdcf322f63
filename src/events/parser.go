package events

import (
	"math/big"
	"time"

	"github.com/freshtrace/chaincore/src/utils/logger"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// Parser decodes raw contract logs into ParsedEvents.
type Parser struct {
	log *logrus.Entry

	// Layout of the non-indexed BatchCreated payload
	batchNumberArgs abi.Arguments
}

func NewParser() (self *Parser) {
	self = new(Parser)
	self.log = logger.NewSublogger("event-parser")

	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		// Static type, cannot fail
		panic(err)
	}
	self.batchNumberArgs = abi.Arguments{{Name: "batchNumber", Type: stringType}}

	return
}

// ParseLog decodes one raw log. Logs whose topic 0 doesn't match the
// signature table come from other events on the watched contract and
// yield nil, not an error. Batch id and actor are the indexed
// arguments in topics 1 and 2.
func (self *Parser) ParseLog(l types.Log) (event *ParsedEvent) {
	if len(l.Topics) < 3 {
		return nil
	}

	kind, ok := KindByTopic(l.Topics[0])
	if !ok {
		return nil
	}

	event = &ParsedEvent{
		Kind:        kind,
		BatchID:     new(big.Int).SetBytes(l.Topics[1].Bytes()).String(),
		Actor:       common.BytesToAddress(l.Topics[2].Bytes()),
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
		ObservedAt:  time.Now(),
	}

	if kind == BatchCreated {
		values, err := self.batchNumberArgs.Unpack(l.Data)
		if err != nil || len(values) == 0 {
			// A malformed payload loses the display number, nothing else
			self.log.WithError(err).
				WithField("tx", l.TxHash.Hex()).
				WithField("batch_id", event.BatchID).
				Warn("Failed to decode batch number from log payload")
			return
		}
		if batchNumber, ok := values[0].(string); ok {
			event.BatchNumber = batchNumber
		}
	}

	return
}
