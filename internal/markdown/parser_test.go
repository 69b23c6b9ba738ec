package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bashDoc = "# How to list files? #command\n" +
	"\n" +
	"```bash\n" +
	"# long listing\n" +
	"ls -la\n" +
	"```\n" +
	"\n" +
	"# How to check for the presence of a value in an array in Bash? #script\n" +
	"\n" +
	"# Does an array contain a value in Bash?\n" +
	"Loop over the array:\n" +
	"```bash\n" +
	"# not a heading\n" +
	"for v in \"${arr[@]}\"; do [[ $v == $x ]] && echo found; done\n" +
	"```\n" +
	"# Print a variable\n" +
	"echo $VAR\n"

func TestParseHeadings_SiblingsAndTags(t *testing.T) {
	headings := ParseHeadings(bashDoc)
	require.Len(t, headings, 4)

	assert.Equal(t, 1, headings[0].Line)
	assert.Equal(t, "How to list files?", headings[0].Text)
	assert.Equal(t, []string{"command"}, headings[0].Tags)
	assert.Empty(t, headings[0].Siblings)

	assert.Equal(t, 8, headings[1].Line)
	assert.Equal(t, "How to check for the presence of a value in an array in Bash?", headings[1].Text)
	assert.Equal(t, []string{"script"}, headings[1].Tags)
	assert.Equal(t, []int{10}, headings[1].Siblings)

	assert.Equal(t, 10, headings[2].Line)
	assert.Equal(t, []int{8}, headings[2].Siblings)

	assert.Equal(t, 16, headings[3].Line)
	assert.Equal(t, "Print a variable", headings[3].Text)
}

func TestParseHeadings_IgnoresCodeBlockComments(t *testing.T) {
	for _, h := range ParseHeadings(bashDoc) {
		assert.NotEqual(t, "not a heading", h.Text)
		assert.NotEqual(t, "long listing", h.Text)
	}
}

func TestParseHeadings_SiblingBlockAtEOF(t *testing.T) {
	headings := ParseHeadings("# first\n\n# second\n")
	require.Len(t, headings, 2)
	assert.Equal(t, []int{3}, headings[0].Siblings)
	assert.Equal(t, []int{1}, headings[1].Siblings)
}

func TestParseHeadings_LevelTwoIsBody(t *testing.T) {
	headings := ParseHeadings("# title\n## sub\ntext\n")
	require.Len(t, headings, 1)
	assert.Equal(t, "title", headings[0].Text)
}

func TestSection_SkipsSiblingsAndStopsAtNextHeading(t *testing.T) {
	body := Section(bashDoc, 8)
	assert.Contains(t, body, "Loop over the array:")
	assert.Contains(t, body, "# not a heading")
	assert.NotContains(t, body, "Does an array contain")
	assert.NotContains(t, body, "Print a variable")

	last := Section(bashDoc, 16)
	assert.Equal(t, "echo $VAR\n", last)
}

func TestHeadingAt(t *testing.T) {
	h, err := HeadingAt(bashDoc, 10)
	require.NoError(t, err)
	assert.Equal(t, "Does an array contain a value in Bash?", h.Text)

	_, err = HeadingAt(bashDoc, 2)
	assert.Error(t, err)
	_, err = HeadingAt(bashDoc, 999)
	assert.Error(t, err)
}

func TestCommands_DropsComments(t *testing.T) {
	body := Section(bashDoc, 1)
	assert.Equal(t, []string{"ls -la"}, Commands(body))
}

func TestCommands_AllCommentStyles(t *testing.T) {
	text := "```\n// c\n-- sql\n; ini\n# sh\n  run me  \n\n```\n"
	assert.Equal(t, []string{"run me"}, Commands(text))
}

func TestScripts_Verbatim(t *testing.T) {
	text := "intro\n```python\nprint(1)\n# keep\n```\nmid\n```\nx\n```\n"
	assert.Equal(t, []string{"print(1)\n# keep\n", "x\n"}, Scripts(text))
}

func TestParseTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b_2"}, ParseTags("# heading #a #b_2"))
	assert.Empty(t, ParseTags("# C# is a language"))
	assert.Equal(t, []string{"été"}, ParseTags("# vacances #été"))
}
