package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestFilterTestSuite(t *testing.T) {
	suite.Run(t, new(FilterTestSuite))
}

type FilterTestSuite struct {
	suite.Suite
}

func (s *FilterTestSuite) exprs(conditions []condition) (out []string) {
	for _, c := range conditions {
		out = append(out, c.expr)
	}
	return
}

func (s *FilterTestSuite) TestEmptyFilterScopesToOwner() {
	conditions := Filter{}.conditions("user-1")

	assert.Len(s.T(), conditions, 1)
	assert.Equal(s.T(), "owner_id = ?", conditions[0].expr)
	assert.Equal(s.T(), "user-1", conditions[0].arg)
}

func (s *FilterTestSuite) TestFullFilter() {
	filter := Filter{
		EventType:     "BatchCreated",
		BatchID:       "7",
		FromAddress:   "0xAbC",
		Status:        "confirmed",
		FromTimestamp: 1000,
		ToTimestamp:   2000,
	}

	conditions := filter.conditions("user-1")
	assert.Equal(s.T(), []string{
		"owner_id = ?",
		"event_type = ?",
		"batch_id = ?",
		"LOWER(from_address) = LOWER(?)",
		"status = ?",
		"block_timestamp >= ?",
		"block_timestamp <= ?",
	}, s.exprs(conditions))
}

func (s *FilterTestSuite) TestTimestampZeroMeansUnbounded() {
	conditions := Filter{FromTimestamp: 1000}.conditions("user-1")

	assert.Equal(s.T(), []string{
		"owner_id = ?",
		"block_timestamp >= ?",
	}, s.exprs(conditions))
	assert.Equal(s.T(), int64(1000), conditions[1].arg)
}

func (s *FilterTestSuite) TestSenderMatchIsCaseInsensitive() {
	conditions := Filter{FromAddress: "0xAbCdEf"}.conditions("user-1")

	assert.Equal(s.T(), "LOWER(from_address) = LOWER(?)", conditions[1].expr)
	assert.Equal(s.T(), "0xAbCdEf", conditions[1].arg)
}
