package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_QuotedCommasAndEscapedQuotes(t *testing.T) {
	content := "Record ID,Company name,City\n" +
		`101,"Acme, Inc.","New York"` + "\n" +
		`102,"She said ""hello"" twice",Boston` + "\n"

	records := Parse(content)
	require.Len(t, records, 2)

	assert.Equal(t, "Acme, Inc.", records[0]["Company name"])
	assert.Equal(t, "New York", records[0]["City"])
	assert.Equal(t, `She said "hello" twice`, records[1]["Company name"])
	assert.Equal(t, "Boston", records[1]["City"])
}

func TestParse_ShortRowsGetEmptyTrailingFields(t *testing.T) {
	content := "a,b,c\n1,2\n"

	records := Parse(content)
	require.Len(t, records, 1)

	assert.Equal(t, "1", records[0]["a"])
	assert.Equal(t, "2", records[0]["b"])
	assert.Equal(t, "", records[0]["c"])
}

func TestParse_SkipsBlankLinesAndNormalizesCRLF(t *testing.T) {
	content := "a,b\r\n1,2\r\n\r\n   \r\n3,4\r\n"

	records := Parse(content)
	require.Len(t, records, 2)
	assert.Equal(t, "3", records[1]["a"])
}

func TestParse_EmptyInput(t *testing.T) {
	assert.Nil(t, Parse(""))
	assert.Nil(t, Parse("a,b\n"))
}

func TestParse_TrimsFieldWhitespace(t *testing.T) {
	records := Parse("a,b\n  x  ,\" y \"\n")
	require.Len(t, records, 1)
	assert.Equal(t, "x", records[0]["a"])
	assert.Equal(t, "y", records[0]["b"])
}
