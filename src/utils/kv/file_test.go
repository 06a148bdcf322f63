package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestFileStoreTestSuite(t *testing.T) {
	suite.Run(t, new(FileStoreTestSuite))
}

type FileStoreTestSuite struct {
	suite.Suite
	store *FileStore
}

func (s *FileStoreTestSuite) SetupTest() {
	store, err := NewFileStore(s.T().TempDir(), "test")
	assert.Nil(s.T(), err)
	s.store = store
}

type snapshot struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func (s *FileStoreTestSuite) TestRoundtrip() {
	err := s.store.Save(context.Background(), "state", &snapshot{Name: "batch", Count: 3})
	assert.Nil(s.T(), err)

	var loaded snapshot
	err = s.store.Load(context.Background(), "state", &loaded)
	assert.Nil(s.T(), err)
	assert.Equal(s.T(), snapshot{Name: "batch", Count: 3}, loaded)
}

func (s *FileStoreTestSuite) TestOverwrite() {
	err := s.store.Save(context.Background(), "state", &snapshot{Count: 1})
	assert.Nil(s.T(), err)
	err = s.store.Save(context.Background(), "state", &snapshot{Count: 2})
	assert.Nil(s.T(), err)

	var loaded snapshot
	err = s.store.Load(context.Background(), "state", &loaded)
	assert.Nil(s.T(), err)
	assert.Equal(s.T(), 2, loaded.Count)
}

func (s *FileStoreTestSuite) TestMissingKey() {
	var loaded snapshot
	err := s.store.Load(context.Background(), "missing", &loaded)
	assert.ErrorIs(s.T(), err, ErrKeyNotFound)
}

func (s *FileStoreTestSuite) TestDeleteIsTolerant() {
	err := s.store.Save(context.Background(), "state", &snapshot{Count: 1})
	assert.Nil(s.T(), err)

	err = s.store.Delete(context.Background(), "state")
	assert.Nil(s.T(), err)
	err = s.store.Delete(context.Background(), "state")
	assert.Nil(s.T(), err)

	var loaded snapshot
	err = s.store.Load(context.Background(), "state", &loaded)
	assert.ErrorIs(s.T(), err, ErrKeyNotFound)
}
