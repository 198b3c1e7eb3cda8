package grouping

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/typescope/attribution"
	"github.com/hazyhaar/typescope/page/memdom"
)

func detect(t *testing.T, src string, mode SortMode) ([]attribution.Attribution, []StyleGroup) {
	t.Helper()
	doc, err := memdom.MustParse(src).Capture(context.Background())
	require.NoError(t, err)
	attrs := attribution.Walk(doc)
	return attrs, Classify(attrs, mode)
}

const article = `<html><head><style>
body { font-family: Inter, sans-serif }
h1 { font-family: Georgia }
.lead { font-size: 20px }
nav a { text-transform: uppercase }
</style></head><body>
<nav><a>Home</a><a>Docs</a><a>Blog</a></nav>
<h1>Title</h1>
<h2>Section</h2>
<p class="lead">Lead paragraph</p>
<p>First</p><p>Second</p><p>Third</p>
<ul><li>one</li><li>two</li></ul>
<button>Go</button>
<div>loose <span style="font-family: Courier">code</span></div>
</body></html>`

func TestClassify_Scenario(t *testing.T) {
	_, groups := detect(t, `<html><body>
<h1 style="font-family: Georgia">Title</h1>
<p style="font-family: Arial">Body copy</p>
</body></html>`, SortBySize)
	require.Len(t, groups, 2)
	assert.Equal(t, Headings, groups[0].Classifier)
	assert.Equal(t, "h1", groups[0].Signature.Tag)
	assert.Equal(t, 1, groups[0].Count)
	assert.Equal(t, Content, groups[1].Classifier)
	assert.Equal(t, "p", groups[1].Signature.Tag)
	assert.Equal(t, 1, groups[1].Count)
}

func TestClassify_CountsMatchAttributions(t *testing.T) {
	attrs, groups := detect(t, article, SortBySize)
	total := 0
	for _, g := range groups {
		total += g.Count
		assert.NotEqual(t, "span", g.Signature.Tag)
	}
	assert.Equal(t, len(attrs), total)
	assert.Equal(t, len(attrs), Summarize(groups).Attributions)
}

func TestClassify_Order(t *testing.T) {
	_, groups := detect(t, article, SortBySize)
	var got []string
	for _, g := range groups {
		got = append(got, g.Classifier.String()+":"+g.Signature.Tag+":"+g.Signature.FontSize)
	}
	want := []string{
		"Headings:h1:32px",
		"Headings:h2:24px",
		"Content:p:20px",
		"Content:p:16px",
		"Content:li:16px",
		"Interactive:button:16px",
		"Interactive:a:16px",
		"Other:div:16px",
		"Other:div:16px",
	}
	assert.Equal(t, want, got)

	_, byCount := detect(t, article, SortByCount)
	assert.Equal(t, 3, byCount[2].Count)
	assert.Equal(t, "16px", byCount[2].Signature.FontSize)
}

func TestClassify_Idempotent(t *testing.T) {
	_, a := detect(t, article, SortBySize)
	_, b := detect(t, article, SortBySize)
	ja, err := json.Marshal(Buckets(a))
	require.NoError(t, err)
	jb, err := json.Marshal(Buckets(b))
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
}

func TestClassify_SampleLimits(t *testing.T) {
	long := strings.Repeat("x", 100)
	attrs := make([]attribution.Attribution, 250)
	for i := range attrs {
		attrs[i] = attribution.Attribution{
			Target:    0,
			Signature: attribution.Signature{Tag: "p", FontFamily: "Arial"},
			Sample:    "  " + long + "  ",
		}
	}
	groups := Classify(attrs, SortBySize)
	require.Len(t, groups, 1)
	assert.Equal(t, 250, groups[0].Count)
	assert.Len(t, groups[0].Samples, MaxSamples)
	assert.Len(t, []rune(groups[0].Samples[0]), MaxSampleLen)
}

func TestBuckets_DropEmpty(t *testing.T) {
	_, groups := detect(t, `<html><body><h1>a</h1><button>b</button></body></html>`, SortBySize)
	buckets := Buckets(groups)
	require.Len(t, buckets, 2)
	assert.Equal(t, Headings, buckets[0].Classifier)
	assert.Equal(t, Interactive, buckets[1].Classifier)
}

func TestClassifierText(t *testing.T) {
	b, err := Interactive.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Interactive", string(b))
	var c Classifier
	require.NoError(t, c.UnmarshalText([]byte("Other")))
	assert.Equal(t, Other, c)
	assert.Error(t, c.UnmarshalText([]byte("nope")))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Open Sans", DisplayName(`"Open Sans", Arial, sans-serif`))
	assert.Equal(t, "Georgia", DisplayName("Georgia"))
	assert.Equal(t, "size", SortBySize.String())
	assert.Equal(t, SortByCount, ParseSortMode("COUNT"))
	assert.Equal(t, SortBySize, ParseSortMode("whatever"))
}
