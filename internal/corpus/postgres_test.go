package corpus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVectorLiteral(t *testing.T) {
	vec, err := ParseVectorLiteral(" [0.5, -1,2e-1] ")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1, 0.2}, vec)

	for _, bad := range []string{"", "[]", "0.1,0.2", "[0.1,abc]", "[0.1,"} {
		_, err := ParseVectorLiteral(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatVectorLiteral(t *testing.T) {
	assert.Equal(t, "[0.500000,-1.000000]", FormatVectorLiteral([]float32{0.5, -1}))

	vec, err := ParseVectorLiteral(FormatVectorLiteral([]float32{0.25, 3}))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 3}, vec)
}
