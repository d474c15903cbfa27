package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter_Equality(t *testing.T) {
	f, err := ParseFilter(`relativePath == 'a.go'`)
	require.NoError(t, err)
	assert.Equal(t, "relativePath", f.Field)
	assert.False(t, f.In)
	assert.Equal(t, []string{"a.go"}, f.Values)
}

func TestParseFilter_In(t *testing.T) {
	f, err := ParseFilter(`fileExtension in ['.go', '.py']`)
	require.NoError(t, err)
	assert.Equal(t, "fileExtension", f.Field)
	assert.True(t, f.In)
	assert.Equal(t, []string{".go", ".py"}, f.Values)
}

func TestParseFilter_DoubleQuotes(t *testing.T) {
	f, err := ParseFilter(`relativePath == "b.py"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.py"}, f.Values)
}

func TestParseFilter_RejectsMalformed(t *testing.T) {
	_, err := ParseFilter(`relativePath = 'a.go'`)
	assert.Error(t, err)

	_, err = ParseFilter(``)
	assert.Error(t, err)

	_, err = ParseFilter(`1bad == 'x'`)
	assert.Error(t, err)
}

func TestFilter_Matches(t *testing.T) {
	doc := Document{RelativePath: "a.go", FileExtension: ".go"}

	eq, _ := ParseFilter(`relativePath == 'a.go'`)
	assert.True(t, eq.Matches(doc))

	in, _ := ParseFilter(`fileExtension in ['.py', '.go']`)
	assert.True(t, in.Matches(doc))

	miss, _ := ParseFilter(`relativePath == 'b.go'`)
	assert.False(t, miss.Matches(doc))
}
