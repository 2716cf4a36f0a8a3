package sandbox

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/scriptkit/internal/dom"
	"github.com/GriffinCanCode/scriptkit/internal/monitoring"
	"github.com/GriffinCanCode/scriptkit/internal/wbi"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testImgKey = "7cd084941338484aae1ad9425b84077c"
	testSubKey = "4932caff0ff746eab6f01bf08b70ac45"
	testWts    = 1702204169
)

const testPage = `<!DOCTYPE html>
<html lang="en">
<head><title>Fixture</title></head>
<body>
  <div id="main" class="card">Hello</div>
  <p>one</p>
  <p>two</p>
</body>
</html>`

func newRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt, err := New(DefaultConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func run(t *testing.T, rt *Runtime, script string, doc *dom.Document) any {
	t.Helper()
	result, err := rt.Execute(context.Background(), script, doc)
	require.NoError(t, err)
	return result.Value
}

func TestUUID(t *testing.T) {
	rt := newRuntime(t)

	got := run(t, rt, "uuid()", nil)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`), got)

	assert.Equal(t, false, run(t, rt, "uuid() === uuid()", nil))
}

func TestSleep(t *testing.T) {
	rt := newRuntime(t)

	result, err := rt.Execute(context.Background(), `(async () => { await sleep(50); return 'woke' })()`, nil)
	require.NoError(t, err)

	assert.Equal(t, "woke", result.Value)
	assert.GreaterOrEqual(t, result.Duration, 50*time.Millisecond)
}

func TestSleepZeroAndInvalid(t *testing.T) {
	rt := newRuntime(t)

	got := run(t, rt, `(async () => { await sleep(0); await sleep(); await sleep(-5); await sleep(NaN); return 1 })()`, nil)
	assert.Equal(t, int64(1), got)
}

func TestSleepOrdering(t *testing.T) {
	rt := newRuntime(t)

	got := run(t, rt, `
		(async () => {
			const order = [];
			await Promise.all([
				sleep(40).then(() => order.push('slow')),
				sleep(5).then(() => order.push('fast')),
			]);
			return order.join(',');
		})()
	`, nil)
	assert.Equal(t, "fast,slow", got)
}

func TestSetTimeout(t *testing.T) {
	rt := newRuntime(t)

	got := run(t, rt, `new Promise(resolve => setTimeout((a, b) => resolve(a + b), 5, 1, 2))`, nil)
	assert.Equal(t, int64(3), got)
}

func TestClearTimeout(t *testing.T) {
	rt := newRuntime(t)

	got := run(t, rt, `
		let hit = false;
		const id = setTimeout(() => { hit = true }, 10);
		clearTimeout(id);
		(async () => { await sleep(30); return hit })()
	`, nil)
	assert.Equal(t, false, got)
}

func TestTimerCallbackErrorIsReported(t *testing.T) {
	rt := newRuntime(t)

	result, err := rt.Execute(context.Background(), `setTimeout(() => { throw new Error('late') }, 1); 'ok'`, nil)
	require.NoError(t, err)

	assert.Equal(t, "ok", result.Value)
	require.Len(t, result.Console, 1)
	assert.Equal(t, "error", result.Console[0].Level)
	assert.Contains(t, result.Console[0].Message, "late")
}

func TestEncWbiMatchesSigner(t *testing.T) {
	signer := wbi.Signer{Now: func() time.Time { return time.Unix(testWts, 0) }}
	rt := newRuntime(t, WithSigner(signer))

	got := run(t, rt, `
		const params = { foo: '114', bar: '514', zab: 1919810 };
		const query = encWbi(params, '`+testImgKey+`', '`+testSubKey+`');
		[query, params.wts, Object.keys(params).join(',')]
	`, nil)

	want := signer.Sign(map[string]any{"foo": "114", "bar": "514", "zab": 1919810}, testImgKey, testSubKey)
	assert.Equal(t, []any{want, int64(testWts), "foo,bar,zab,wts"}, got)
	assert.Equal(t, "bar=514&foo=114&wts=1702204169&zab=1919810&w_rid=8f6f2b5b3d485fe1886cec6a0be8c5d4", want)
}

func TestEncWbiCoercesValues(t *testing.T) {
	signer := wbi.Signer{Now: func() time.Time { return time.Unix(testWts, 0) }}
	rt := newRuntime(t, WithSigner(signer))

	got := run(t, rt, `encWbi({ keyword: "a b!(c)*'", flag: true, empty: {}, list: [1, 2] }, 'k', 'k')`, nil)

	query, _, ok := strings.Cut(got.(string), "&w_rid=")
	require.True(t, ok)
	assert.Equal(t, "empty=%5Bobject%20Object%5D&flag=true&keyword=a%20bc&list=1%2C2&wts=1702204169", query)
}

func TestEncWbiRejectsMissingParams(t *testing.T) {
	rt := newRuntime(t)

	_, err := rt.Execute(context.Background(), "encWbi(undefined, 'a', 'b')", nil)
	assert.Error(t, err)
}

func TestPackFormData(t *testing.T) {
	rt := newRuntime(t)

	got := run(t, rt, `JSON.stringify(packFormData({ a: 1, b: 'x', c: { d: 1 }, e: null, f: [1, 2], g: undefined }))`, nil)
	assert.Equal(t, `[["a","1"],["b","x"],["c","[object Object]"],["e","null"],["f","1,2"],["g","undefined"]]`, got)

	assert.Equal(t, "[]", run(t, rt, "JSON.stringify(packFormData(42))", nil))
}

func TestDeepestIterate(t *testing.T) {
	rt := newRuntime(t)

	got := run(t, rt, `
		const calls = [];
		deepestIterate({ a: { b: 1, c: {} }, d: 2 }, (value, path) => calls.push([path, JSON.stringify(value)]));
		JSON.stringify(calls)
	`, nil)
	assert.Equal(t, `[["a.b","1"],["a.c","{}"],["d","2"]]`, got)
}

func TestDeepestIteratePassesOriginalValues(t *testing.T) {
	rt := newRuntime(t)

	got := run(t, rt, `
		const inner = {};
		const list = [1, 2];
		const seen = [];
		deepestIterate({ x: inner, y: { z: list } }, (value) => seen.push(value));
		seen[0] === inner && seen[1] === list
	`, nil)
	assert.Equal(t, true, got)
}

func TestDeepestIterateNoCalls(t *testing.T) {
	rt := newRuntime(t)

	got := run(t, rt, `
		let n = 0;
		const cb = () => n++;
		deepestIterate({}, cb);
		deepestIterate(null, cb);
		deepestIterate(5, cb);
		deepestIterate([1, 2], cb);
		n
	`, nil)
	assert.Equal(t, int64(0), got)
}

func TestDeepestIterateCallbackErrorPropagates(t *testing.T) {
	rt := newRuntime(t)

	_, err := rt.Execute(context.Background(), `deepestIterate({ a: 1 }, () => { throw new Error('stop') })`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop")
}

func TestSelfReferencingObjects(t *testing.T) {
	signer := wbi.Signer{Now: func() time.Time { return time.Unix(testWts, 0) }}
	rt := newRuntime(t, WithSigner(signer))

	const cyclic = `var o = { a: 1 }; o.self = o;`
	const deep = `var o = {}; var cur = o; for (var i = 0; i < 5000; i++) { cur.next = { leaf: i }; cur = cur.next; }`

	tests := []struct {
		name   string
		script string
		want   any
	}{
		{
			name:   "packFormData stringifies the cycle",
			script: cyclic + `JSON.stringify(packFormData(o))`,
			want:   `[["a","1"],["self","[object Object]"]]`,
		},
		{
			name:   "packFormData ignores deep nesting",
			script: deep + `packFormData(o).length`,
			want:   int64(1),
		},
		{
			name:   "encWbi signs a cyclic object",
			script: cyclic + `encWbi(o, 'k', 'k').split('&w_rid=')[0]`,
			want:   "a=1&self=%5Bobject%20Object%5D&wts=1702204169",
		},
		{
			name:   "encWbi signs a deep object",
			script: deep + `encWbi(o, 'k', 'k').startsWith('next=%5Bobject%20Object%5D&wts=')`,
			want:   true,
		},
		{
			name:   "deepestIterate throws a catchable RangeError on a cycle",
			script: cyclic + `try { deepestIterate(o, () => {}); 'no error' } catch (e) { e instanceof RangeError }`,
			want:   true,
		},
		{
			name:   "deepestIterate throws a catchable RangeError past the depth limit",
			script: deep + `try { deepestIterate(o, () => {}); 'no error' } catch (e) { e instanceof RangeError }`,
			want:   true,
		},
		{
			name:   "deepestIterate visits shared siblings",
			script: `var s = { v: 1 }; var paths = []; deepestIterate({ x: s, y: s }, (v, p) => paths.push(p)); paths.join(',')`,
			want:   "x.v,y.v",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, run(t, rt, tt.script, nil))
		})
	}
}

func TestDeepestIterateCycleRejectsAsyncCaller(t *testing.T) {
	rt := newRuntime(t)

	_, err := rt.Execute(context.Background(), `(async () => {
		const o = { a: 1 };
		o.self = o;
		await sleep(1);
		deepestIterate(o, () => {});
	})()`, nil)
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "RangeError")
}

func TestGetUrlFromFetchInput(t *testing.T) {
	rt := newRuntime(t)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"string", `'https://example.com/a?b=1'`, "https://example.com/a?b=1"},
		{"url object", `new URL('https://example.com/x?q=1#top')`, "https://example.com/x?q=1#top"},
		{"url with base", `new URL('/p', 'https://example.com/a/b')`, "https://example.com/p"},
		{"request", `new Request('https://example.com/r', { method: 'post' })`, "https://example.com/r"},
		{"request from url", `new Request(new URL('https://example.com'))`, "https://example.com/"},
		{"number", `42`, "Incorrect input"},
		{"undefined", `undefined`, "Incorrect input"},
		{"look-alike object", `({ url: 'https://example.com' })`, "Incorrect input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, run(t, rt, "getUrlFromFetchInput("+tt.input+")", nil))
		})
	}
}

func TestURLConstructor(t *testing.T) {
	rt := newRuntime(t)

	got := run(t, rt, `
		const u = new URL('https://example.com:8080/a/b?x=1#frag');
		[u.protocol, u.host, u.hostname, u.port, u.pathname, u.search, u.hash, u.origin, String(u)]
	`, nil)
	assert.Equal(t, []any{
		"https:", "example.com:8080", "example.com", "8080", "/a/b", "?x=1", "#frag",
		"https://example.com:8080", "https://example.com:8080/a/b?x=1#frag",
	}, got)

	_, err := rt.Execute(context.Background(), "new URL('not a url')", nil)
	assert.Error(t, err)
}

func TestRequestMethod(t *testing.T) {
	rt := newRuntime(t)

	got := run(t, rt, `[new Request('https://example.com').method, new Request('https://example.com', { method: 'put' }).method]`, nil)
	assert.Equal(t, []any{"GET", "PUT"}, got)
}

func TestWaitForMomentIllegal(t *testing.T) {
	rt := newRuntime(t)

	got := run(t, rt, `
		(async () => {
			try {
				await waitForMoment('nonsense');
				return 'resolved';
			} catch (e) {
				return e;
			}
		})()
	`, nil)
	assert.Equal(t, "Illegal moment", got)
}

func TestWaitForMomentUnhandledRejection(t *testing.T) {
	rt := newRuntime(t)

	_, err := rt.Execute(context.Background(), "waitForMoment('later')", nil)
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "Illegal moment")
}

func TestWaitForMomentLoadedPage(t *testing.T) {
	rt := newRuntime(t)
	doc, err := dom.Parse(strings.NewReader(testPage), nil)
	require.NoError(t, err)

	got := run(t, rt, `
		(async () => {
			for (const m of ['document-start', 'document-head', 'document-body', 'document-end', 'window-load']) {
				await waitForMoment(m);
			}
			return document.readyState;
		})()
	`, doc)
	assert.Equal(t, "complete", got)
	assert.Zero(t, doc.Listeners())
	assert.Zero(t, doc.Observers())
}

func TestWaitForMomentWhileLoading(t *testing.T) {
	rt := newRuntime(t)
	doc := dom.NewDocument(nil)
	loader := dom.NewLoader(doc, dom.LoaderConfig{StepDelay: 20 * time.Millisecond}, nil)

	go func() {
		_ = loader.Load(context.Background(), strings.NewReader(testPage))
	}()

	got := run(t, rt, `
		(async () => {
			await waitForMoment('document-body');
			const body = document.querySelector('body') !== null;
			await waitForMoment('window-load');
			return [body, document.readyState];
		})()
	`, doc)
	assert.Equal(t, []any{true, "complete"}, got)
}

func TestDocumentProxy(t *testing.T) {
	rt := newRuntime(t)
	doc, err := dom.Parse(strings.NewReader(testPage), nil)
	require.NoError(t, err)

	got := run(t, rt, `
		const el = document.querySelector('#main');
		[
			el.tagName, el.id, el.className, el.textContent,
			el.getAttribute('class'), el.getAttribute('missing'),
			document.querySelectorAll('p').length,
			document.getElementById('main').tagName,
			document.getElementById('nope'),
			document.querySelector('section'),
		]
	`, doc)
	assert.Equal(t, []any{"DIV", "main", "card", "Hello", "card", nil, int64(2), "DIV", nil, nil}, got)

	_, err = rt.Execute(context.Background(), "document.querySelector('[[')", doc)
	assert.Error(t, err)
}

func TestBlankDocument(t *testing.T) {
	rt := newRuntime(t)

	got := run(t, rt, `(async () => { await waitForMoment('document-head'); return document.readyState })()`, nil)
	assert.Equal(t, "complete", got)
}

func TestNeverSettled(t *testing.T) {
	rt := newRuntime(t)

	_, err := rt.Execute(context.Background(), "new Promise(() => {})", nil)
	assert.ErrorIs(t, err, ErrNeverSettle)
}

func TestRejectedPromise(t *testing.T) {
	rt := newRuntime(t)

	_, err := rt.Execute(context.Background(), "(async () => { throw new Error('boom') })()", nil)
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "boom")
}

func TestHelperMetrics(t *testing.T) {
	metrics := monitoring.NewMetrics()
	rt := newRuntime(t, WithMetrics(metrics))

	run(t, rt, `uuid(); uuid(); encWbi({}, 'a', 'b'); (async () => { await waitForMoment('document-end') })()`, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.HelperCalls.WithLabelValues("uuid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HelperCalls.WithLabelValues("encWbi")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Signatures))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MomentsResolved.WithLabelValues("document-end")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ScriptsTotal.WithLabelValues(monitoring.StatusSuccess)))
}

func TestResultJSON(t *testing.T) {
	rt := newRuntime(t)

	result, err := rt.Execute(context.Background(), "console.log('x'); ({ b: 1, a: [true] })", nil)
	require.NoError(t, err)

	data, err := result.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"value":{"a":[true],"b":1}`)
	assert.Contains(t, string(data), `"id":"exec_`)
}

func TestConsoleRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConsoleRate = 0.001
	cfg.ConsoleBurst = 3
	rt, err := New(cfg)
	require.NoError(t, err)
	defer rt.Close()

	result, err := rt.Execute(context.Background(), `for (let i = 0; i < 10; i++) console.log('line', i)`, nil)
	require.NoError(t, err)

	require.Len(t, result.Console, 3)
	assert.Equal(t, "line 0", result.Console[0].Message)
	assert.Equal(t, 7, result.Dropped)

	// Each execution starts with a full burst
	result, err = rt.Execute(context.Background(), `console.log('again')`, nil)
	require.NoError(t, err)
	assert.Len(t, result.Console, 1)
	assert.Zero(t, result.Dropped)
}

func TestConsoleUnlimitedByDefault(t *testing.T) {
	rt := newRuntime(t)

	result, err := rt.Execute(context.Background(), `for (let i = 0; i < 500; i++) console.log(i)`, nil)
	require.NoError(t, err)
	assert.Len(t, result.Console, 500)
	assert.Zero(t, result.Dropped)
}
