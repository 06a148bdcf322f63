package events

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Kind enumerates the supply chain contract events. The textual
// signatures are the wire contract with the chain node: their
// keccak-256 hashes are matched against topic 0 of every log.
type Kind string

const (
	BatchCreated          Kind = "BatchCreated"
	CollectorDataAdded    Kind = "CollectorDataAdded"
	TesterDataAdded       Kind = "TesterDataAdded"
	ProcessorDataAdded    Kind = "ProcessorDataAdded"
	ManufacturerDataAdded Kind = "ManufacturerDataAdded"
	BatchCompleted        Kind = "BatchCompleted"
)

var signatures = map[Kind]string{
	BatchCreated:          "BatchCreated(uint256,address,string)",
	CollectorDataAdded:    "CollectorDataAdded(uint256,address)",
	TesterDataAdded:       "TesterDataAdded(uint256,address)",
	ProcessorDataAdded:    "ProcessorDataAdded(uint256,address)",
	ManufacturerDataAdded: "ManufacturerDataAdded(uint256,address)",
	BatchCompleted:        "BatchCompleted(uint256,address)",
}

var phases = map[Kind]string{
	BatchCreated:          "Collection",
	CollectorDataAdded:    "Collection",
	TesterDataAdded:       "Testing",
	ProcessorDataAdded:    "Processing",
	ManufacturerDataAdded: "Manufacturing",
	BatchCompleted:        "Completed",
}

var descriptions = map[Kind]string{
	BatchCreated:          "Created batch",
	CollectorDataAdded:    "Added collection data",
	TesterDataAdded:       "Added testing data",
	ProcessorDataAdded:    "Added processing data",
	ManufacturerDataAdded: "Added manufacturing data",
	BatchCompleted:        "Completed batch",
}

var kindByTopic map[common.Hash]Kind

func init() {
	kindByTopic = make(map[common.Hash]Kind, len(signatures))
	for kind, signature := range signatures {
		kindByTopic[crypto.Keccak256Hash([]byte(signature))] = kind
	}
}

func (kind Kind) Signature() string {
	return signatures[kind]
}

func (kind Kind) Topic() common.Hash {
	return crypto.Keccak256Hash([]byte(signatures[kind]))
}

func (kind Kind) Phase() string {
	return phases[kind]
}

func (kind Kind) Description() string {
	return descriptions[kind]
}

func (kind Kind) IsValid() bool {
	_, ok := signatures[kind]
	return ok
}

// KindByTopic matches topic 0 of a raw log against the signature table.
func KindByTopic(topic common.Hash) (kind Kind, ok bool) {
	kind, ok = kindByTopic[topic]
	return
}

func Kinds() []Kind {
	return []Kind{
		BatchCreated,
		CollectorDataAdded,
		TesterDataAdded,
		ProcessorDataAdded,
		ManufacturerDataAdded,
		BatchCompleted,
	}
}

// ParsedEvent is one decoded contract log. Produced once per log and
// consumed by the sync pipeline to build the cached transaction record.
type ParsedEvent struct {
	Kind        Kind
	BatchID     string
	Actor       common.Address
	BatchNumber string
	BlockNumber uint64
	TxHash      common.Hash
	ObservedAt  time.Time
}
