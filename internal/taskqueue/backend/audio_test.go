package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildEmotionVectorKnownEmotionAndNamedIntensity(t *testing.T) {
	vec := buildEmotionVector("happy", "strong")
	assert.Len(t, vec, 8)
	assert.Equal(t, 0.5, vec[0])
	for i, v := range vec {
		if i != 0 {
			assert.Zero(t, v)
		}
	}
}

func TestBuildEmotionVectorNumericIntensity(t *testing.T) {
	vec := buildEmotionVector("calm", "0.45")
	assert.Equal(t, 0.45, vec[6])
}

func TestBuildEmotionVectorUnknownEmotionFallsBackToOther(t *testing.T) {
	vec := buildEmotionVector("confused", "medium")
	assert.Equal(t, 0.3, vec[defaultEmotionIdx])
}

func TestBuildEmotionVectorEmptyEmotionIsZero(t *testing.T) {
	vec := buildEmotionVector("", "strong")
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestBuildEmotionVectorDefaultIntensity(t *testing.T) {
	vec := buildEmotionVector("sad", "")
	assert.Equal(t, defaultIntensityVal, vec[1])
}
