package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func allSentinels() []error {
	return []error{
		ErrDuplicateURL,
		ErrInvalidURL,
		ErrInvalidListName,
		ErrDuplicateListName,
		ErrDefaultList,
		ErrNotFound,
		ErrDuplicateMembership,
		ErrCloudIDConflict,
		ErrMissingCloudID,
		ErrNoSession,
		ErrRemoteRequest,
		ErrRemoteResponse,
		ErrUnauthorized,
		ErrSubscribeRejected,
		ErrExtractFailed,
	}
}

func TestSentinelErrors_ImplementErrorInterface(t *testing.T) {
	for _, err := range allSentinels() {
		assert.NotEmpty(t, err.Error(), "sentinel error should have non-empty message")
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := allSentinels()
	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j],
				"sentinel errors should be distinct: %q vs %q", sentinels[i], sentinels[j])
		}
	}
}

func TestSentinelErrors_SurviveWrapping(t *testing.T) {
	wrapped := fmt.Errorf("deleting list 7: %w", ErrDefaultList)
	assert.ErrorIs(t, wrapped, ErrDefaultList)
	assert.NotErrorIs(t, wrapped, ErrNotFound)
}
