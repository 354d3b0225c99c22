package memory

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage/storagetest"
)

func TestStorageSuite(t *testing.T) {
	suite.Run(t, &storagetest.Suite{
		NewStorage: func() storage.Storage { return New() },
	})
}
