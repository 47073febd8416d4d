package netcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeChallengeAnswerSymmetric(t *testing.T) {
	a, b := uint64(0x1234), uint64(0x5678)
	assert.Equal(t, ComputeChallengeAnswer(a, b), ComputeChallengeAnswer(b, a))
}

func TestComputeChallengeAnswerNeverZero(t *testing.T) {
	assert.NotZero(t, ComputeChallengeAnswer(0, 0))
}

func TestComputeChallengeAnswerVariesWithInput(t *testing.T) {
	base := ComputeChallengeAnswer(1, 2)
	assert.NotEqual(t, base, ComputeChallengeAnswer(1, 3))
	assert.NotEqual(t, base, ComputeChallengeAnswer(2, 2))
}
