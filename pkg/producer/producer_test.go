package producer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/entrhq/translator/pkg/cache"
	"github.com/entrhq/translator/pkg/kv"
	"github.com/entrhq/translator/pkg/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const article = `<!DOCTYPE html>
<html>
<head><title> A Short Article </title><style>p { color: red }</style></head>
<body>
  <nav><ul><li>Home page link</li><li>About this site</li></ul></nav>
  <h1>The quick brown fox</h1>
  <p>It jumps over   the
     lazy dog, <b>twice</b>.</p>
  <p>Tiny</p>
  <ul>
    <li>First list item here</li>
    <li>Outer item <ul><li>Nested list item</li></ul></li>
  </ul>
  <table><tr><td>Cell with enough text</td><td>ok</td></tr></table>
  <blockquote><p>Quoted paragraph text</p></blockquote>
  <p hidden>Hidden paragraph text</p>
  <p style="display: none">Also hidden text</p>
  <script>document.write("<p>Injected by script</p>")</script>
  <footer><p>Copyright notice text</p></footer>
</body>
</html>`

func TestExtract(t *testing.T) {
	page, err := Extract(strings.NewReader(article))
	require.NoError(t, err)

	assert.Equal(t, "A Short Article", page.Title)
	assert.Equal(t, []Candidate{
		{Tag: "H1", Text: "The quick brown fox"},
		{Tag: "P", Text: "It jumps over the lazy dog, twice."},
		{Tag: "LI", Text: "First list item here"},
		{Tag: "LI", Text: "Nested list item"},
		{Tag: "TD", Text: "Cell with enough text"},
		{Tag: "P", Text: "Quoted paragraph text"},
	}, page.Candidates)
}

func TestExtract_LineBreaks(t *testing.T) {
	page, err := Extract(strings.NewReader(`<p>line one<br>line two</p><table><tr><td>cell<div>block</div></td></tr></table>`))
	require.NoError(t, err)
	require.Len(t, page.Candidates, 2)
	assert.Equal(t, "line one line two", page.Candidates[0].Text)
	assert.Equal(t, "cell block", page.Candidates[1].Text)
}

func TestExtract_MinLengthCountsUTF16(t *testing.T) {
	page, err := Extract(strings.NewReader(`<p>四个汉字</p><p>五个汉字了</p>`))
	require.NoError(t, err)
	require.Len(t, page.Candidates, 1)
	assert.Equal(t, "五个汉字了", page.Candidates[0].Text)
}

func TestKey(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		text string
		want string
	}{
		{name: "short", tag: "p", text: "Hello world", want: "P:11:Helloworld"},
		{name: "prefix of twenty", tag: "H2", text: "The quick brown fox jumps over", want: "H2:30:Thequickbrownfox"},
		{name: "non ascii", tag: "li", text: "你好 世界", want: "LI:5:你好世界"},
		{name: "astral counts two units", tag: "p", text: "😀 smile", want: "P:8:😀smile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.tag, tt.text))
		})
	}
}

func TestProducer_CreatePrefillsFromCache(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	tasks := task.NewStore(store)
	c := cache.New(store)
	require.NoError(t, c.Put(ctx, "The quick brown fox", "敏捷的棕色狐狸"))

	now := time.UnixMilli(1_700_000_000_000)
	p := New(tasks, c, WithClock(func() time.Time { return now }))

	tk, sum, err := p.Create(ctx, "https://example.com/a", strings.NewReader(article))
	require.NoError(t, err)

	assert.Equal(t, now.UnixMilli(), tk.ID)
	assert.Equal(t, task.StatusPending, tk.Status)
	assert.False(t, tk.Initialized)
	assert.Equal(t, "https://example.com/a", tk.OriginURL)
	assert.Equal(t, Summary{TaskID: tk.ID, Title: "A Short Article", Blocks: 6, Cached: 1, Pending: 5}, sum)
	assert.Equal(t, "敏捷的棕色狐狸", tk.Blocks[0].Translation.Text())
	assert.Equal(t, "H1:19:Thequickbrownfox", tk.Blocks[0].Key)
	assert.True(t, tk.Blocks[1].Translation.IsPending())

	stored, err := tasks.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, stored.ID)
}

func TestProducer_CreateAllCachedIsDone(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	c := cache.New(store)
	require.NoError(t, c.Put(ctx, "Only paragraph here", "唯一的段落"))

	p := New(task.NewStore(store), c)
	tk, sum, err := p.Create(ctx, "https://example.com/b", strings.NewReader(`<p>Only paragraph here</p>`))
	require.NoError(t, err)
	assert.Equal(t, task.StatusDone, tk.Status)
	assert.True(t, sum.FromCache())
}

func TestProducer_CreateReplacesPreviousTask(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	tasks := task.NewStore(store)
	clock := time.UnixMilli(1_000)
	p := New(tasks, nil, WithClock(func() time.Time { clock = clock.Add(time.Millisecond); return clock }))

	first, _, err := p.Create(ctx, "https://example.com/1", strings.NewReader(`<p>First page text</p>`))
	require.NoError(t, err)
	_, err = tasks.Update(ctx, first.ID, func(tk *task.Task) error {
		tk.HandlerID = "tr_someone"
		tk.Initialized = true
		return nil
	})
	require.NoError(t, err)

	second, _, err := p.Create(ctx, "https://example.com/2", strings.NewReader(`<p>Second page text</p>`))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	stored, err := tasks.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, stored.ID)
	assert.Empty(t, stored.HandlerID, "lease is not inherited")
	assert.False(t, stored.Initialized)
}

func TestProducer_CreateInSameMillisecondGetsNewID(t *testing.T) {
	ctx := context.Background()
	tasks := task.NewStore(kv.NewMemoryStore())
	frozen := time.UnixMilli(5_000)
	p := New(tasks, nil, WithClock(func() time.Time { return frozen }))

	first, _, err := p.Create(ctx, "https://example.com/1", strings.NewReader(`<p>First page text</p>`))
	require.NoError(t, err)
	second, _, err := p.Create(ctx, "https://example.com/2", strings.NewReader(`<p>Second page text</p>`))
	require.NoError(t, err)

	assert.Equal(t, frozen.UnixMilli(), first.ID)
	assert.Greater(t, second.ID, first.ID)

	// A worker still holding the first Task must not write over the second.
	_, err = tasks.Update(ctx, first.ID, func(tk *task.Task) error {
		tk.HandlerID = "tr_old"
		return nil
	})
	assert.ErrorIs(t, err, task.ErrStaleTask)

	stored, err := tasks.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/2", stored.OriginURL)
	assert.Empty(t, stored.HandlerID)
}

func TestProducer_CreateAfterClockStepsBack(t *testing.T) {
	ctx := context.Background()
	tasks := task.NewStore(kv.NewMemoryStore())
	clock := time.UnixMilli(9_000)
	p := New(tasks, nil, WithClock(func() time.Time { return clock }))

	first, _, err := p.Create(ctx, "https://example.com/1", strings.NewReader(`<p>First page text</p>`))
	require.NoError(t, err)

	clock = clock.Add(-time.Second)
	second, _, err := p.Create(ctx, "https://example.com/2", strings.NewReader(`<p>Second page text</p>`))
	require.NoError(t, err)
	assert.Equal(t, first.ID+1, second.ID)
}

func TestProducer_NoBlocks(t *testing.T) {
	p := New(task.NewStore(kv.NewMemoryStore()), nil)
	_, _, err := p.Create(context.Background(), "https://example.com", strings.NewReader(`<p>hi</p><script>x()</script>`))
	assert.ErrorIs(t, err, ErrNoBlocks)
}

type stubFetcher struct {
	doc string
	err error
}

func (s stubFetcher) Fetch(context.Context, string) (string, error) { return s.doc, s.err }

func TestProducer_CreateFrom(t *testing.T) {
	ctx := context.Background()
	p := New(task.NewStore(kv.NewMemoryStore()), nil)

	sum, err := p.CreateFrom(ctx, stubFetcher{doc: `<p>Fetched paragraph</p>`}, "https://example.com", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Pending)

	boom := errors.New("navigation failed")
	_, err = p.CreateFrom(ctx, stubFetcher{err: boom}, "https://example.com", "https://example.com")
	assert.ErrorIs(t, err, boom)
}

func TestFileFetcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(`<p>From disk text</p>`), 0600))

	doc, err := FileFetcher{}.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, doc, "From disk text")

	_, err = FileFetcher{}.Fetch(context.Background(), filepath.Join(t.TempDir(), "missing.html"))
	assert.Error(t, err)
}
