package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jobPage = `<!DOCTYPE html>
<html>
<head><title> Senior Engineer | Careers </title>
<meta name="salary" content="SGD 12,000">
</head>
<body>
<nav><a href="/">Home</a></nav>
<main>
<h1 class="job-title-v2">Senior   Platform
 Engineer</h1>
<div class="company"><span>Grab</span><script>track()</script></div>
<div class="location"></div>
<p class="zw">Singa&#8203;pore</p>
</main>
</body>
</html>`

func parsed(t *testing.T) *Document {
	t.Helper()
	d, err := Parse(jobPage)
	require.NoError(t, err)
	return d
}

func TestParse_Title(t *testing.T) {
	assert.Equal(t, "Senior Engineer | Careers", parsed(t).Title)
}

func TestField(t *testing.T) {
	d := parsed(t)

	v, err := d.Field(".job-title-v2")
	require.NoError(t, err)
	assert.Equal(t, "Senior Platform Engineer", v)

	v, err = d.Field("div.company")
	require.NoError(t, err)
	assert.Equal(t, "Grab", v, "script text is skipped")

	v, err = d.Field(`meta[name="salary"]`)
	require.NoError(t, err)
	assert.Equal(t, "SGD 12,000", v)

	v, err = d.Field(".zw")
	require.NoError(t, err)
	assert.Equal(t, "Singapore", v)
}

func TestField_Failures(t *testing.T) {
	d := parsed(t)

	_, err := d.Field(".job-title")
	assert.ErrorIs(t, err, ErrNoMatch)

	_, err = d.Field(".location")
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = d.Field("div[")
	assert.ErrorIs(t, err, ErrBadSelector)
}

func TestFields_PartitionsResults(t *testing.T) {
	values, failed := parsed(t).Fields(map[string]string{
		"title":    "h1",
		"company":  ".company",
		"location": ".location",
		"salary":   ".salary",
	})
	assert.Equal(t, map[string]string{"title": "Senior Platform Engineer", "company": "Grab"}, values)
	require.Len(t, failed, 2)
	assert.ErrorIs(t, failed["location"], ErrEmpty)
	assert.ErrorIs(t, failed["salary"], ErrNoMatch)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "a b c", CleanText("  a\n\tb \u200d c  "))
	assert.Empty(t, CleanText("\u200b \ufeff"))
}
