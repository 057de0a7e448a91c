package reconstruct

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jackzampolin/folio/internal/docling"
	"github.com/jackzampolin/folio/internal/metrics"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/testutil"
)

func newTestReconstructor(t *testing.T, d providers.Describer, rec *metrics.Recorder) *Reconstructor {
	t.Helper()
	r, err := New(Config{
		Describer:  d,
		RetryDelay: time.Millisecond,
		Metrics:    rec,
		Logger:     testutil.Logger(t),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func TestNew(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without describer")
	}

	r, err := New(Config{Describer: providers.NewMockDescriber()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if r.maxTries != DefaultMaxTries || r.retryDelay != DefaultRetryDelay || r.maxConcurrency != DefaultMaxConcurrency {
		t.Errorf("unexpected defaults: tries=%d delay=%v concurrency=%d", r.maxTries, r.retryDelay, r.maxConcurrency)
	}
	if r.prompt != providers.DefaultPrompt || r.pageBreak != docling.DefaultPageBreak {
		t.Errorf("unexpected prompt or page break: %q %q", r.prompt, r.pageBreak)
	}
}

func TestProcess_EndToEnd(t *testing.T) {
	doc := testutil.NewDoc("report.docx").
		Text(1, 5, "Hello").
		Table(2, 0, testutil.Cell(0, 0, "X"))

	mock := providers.NewMockDescriber()
	r := newTestReconstructor(t, mock, nil)

	pages, err := r.ProcessJSON(context.Background(), doc.JSON(t))
	if err != nil {
		t.Fatalf("ProcessJSON() error = %v", err)
	}

	data, err := json.Marshal(pages)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"1":{"text":"Hello","images":[]},"2":{"text":"--- TABLE START ---\n- Cell [0,0]: X\n--- TABLE END ---\n","images":[]}}`
	if string(data) != want {
		t.Errorf("output = %s\nwant     %s", data, want)
	}
	if mock.RequestCount() != 0 {
		t.Errorf("describer called %d times for a document without pictures", mock.RequestCount())
	}
}

func TestProcess_NoPictures(t *testing.T) {
	doc := testutil.NewDoc("paper.pdf").
		Origin(docling.OriginBottomLeft).
		Text(1, 100, "title").
		Text(1, 700, "header").
		Text(2, 300, "body").
		Table(1, 400, testutil.Cell(0, 0, "v"))

	r := newTestReconstructor(t, providers.NewMockDescriber(), nil)
	pages, err := r.Process(context.Background(), doc.Response())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	content := contentOf(doc)
	tr := Traverse(content, docling.FormatPDF, nil)
	want := Merge(tr.Elements, nil, Descending)

	if len(pages) != len(want) {
		t.Fatalf("pages = %d, want %d", len(pages), len(want))
	}
	for i := range want {
		if pages[i].Number != want[i].Number || pages[i].Text != want[i].Text || len(pages[i].Images) != 0 {
			t.Errorf("page %d = %+v, want %+v", i, pages[i], want[i])
		}
	}
	if p, _ := pages.Get(1); p.Text != "header\n"+RenderTable(&docling.TableData{TableCells: []docling.TableCell{testutil.Cell(0, 0, "v")}})+"\ntitle" {
		t.Errorf("page 1 text = %q", p.Text)
	}
}

func TestProcess_PPTXBottomLeftOrigin(t *testing.T) {
	doc := testutil.NewDoc("deck.pptx").
		Origin(docling.OriginBottomLeft).
		Text(1, 50, "Body").
		Text(1, 10, "Title").
		Text(2, 80, "Footer").
		Text(2, 5, "Heading")

	r := newTestReconstructor(t, providers.NewMockDescriber(), nil)
	pages, err := r.Process(context.Background(), doc.Response())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	want := map[int]string{1: "Title\nBody", 2: "Heading\nFooter"}
	for n, text := range want {
		p, ok := pages.Get(n)
		if !ok {
			t.Fatalf("page %d missing", n)
		}
		if p.Text != text {
			t.Errorf("page %d text = %q, want %q", n, p.Text, text)
		}
	}
}

func TestProcess_Pictures(t *testing.T) {
	doc := testutil.NewDoc("report.docx").
		Origin(docling.OriginTopLeft).
		Text(1, 10, "caption").
		Picture(1, "chart", "data:image/png;base64,AAAA").
		Picture(3, "photo", "data:image/png;base64,BBBB")

	mock := providers.NewMockDescriber()
	mock.Responses = map[string]providers.Description{
		"data:image/png;base64,AAAA": {Title: "Sales", Description: "A bar chart."},
		"data:image/png;base64,BBBB": {Title: "Team", Description: "A group photo."},
	}
	rec := metrics.NewRecorder(0)
	r := newTestReconstructor(t, mock, rec)

	pages, err := r.Process(context.Background(), doc.Response())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(pages))
	}

	p1, _ := pages.Get(1)
	if p1.Text != "caption" || len(p1.Images) != 1 || p1.Images[0].Title != "Sales" {
		t.Errorf("page 1 = %+v", p1)
	}
	p3, _ := pages.Get(3)
	if p3.Text != "" || len(p3.Images) != 1 || p3.Images[0].Description != "A group photo." {
		t.Errorf("page 3 = %+v", p3)
	}

	summary := rec.GetSummary(metrics.Filter{Document: "report.docx"})
	if summary.Count != 2 || summary.SuccessCount != 2 {
		t.Errorf("metrics summary = %+v, want 2 successes", summary)
	}
}

func TestProcess_PaginatedImagesFromMarkdown(t *testing.T) {
	doc := testutil.NewDoc("paper.pdf").
		Text(1, 0, "A").
		Picture(1, "picture", "data:image/png;base64,FULLPAGE").
		Markdown("A![x](u1)[PAGE BREAK]B![y](u2)")

	mock := providers.NewMockDescriber()
	mock.Responses = map[string]providers.Description{
		"u1": {Title: "one", Description: "first"},
		"u2": {Title: "two", Description: "second"},
	}
	r := newTestReconstructor(t, mock, nil)

	pages, err := r.Process(context.Background(), doc.Response())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if mock.RequestsFor("data:image/png;base64,FULLPAGE") != 0 {
		t.Error("structural picture URI must not be described for pdf")
	}
	if mock.RequestCount() != 2 {
		t.Errorf("requests = %d, want 2", mock.RequestCount())
	}

	p1, _ := pages.Get(1)
	p2, _ := pages.Get(2)
	if len(p1.Images) != 1 || p1.Images[0].Title != "one" {
		t.Errorf("page 1 images = %+v", p1.Images)
	}
	if len(p2.Images) != 1 || p2.Images[0].Title != "two" || p2.Text != "" {
		t.Errorf("page 2 = %+v", p2)
	}
}

func TestEnrich_RetryBound(t *testing.T) {
	mock := providers.NewMockDescriber()
	mock.ShouldFail = true
	rec := metrics.NewRecorder(0)
	r := newTestReconstructor(t, mock, rec)

	jobs := []ImageJob{
		{Page: 1, URI: "u1", Label: "chart"},
		{Page: 2, URI: "u2", Label: "Image"},
	}
	outputs := r.Enrich(context.Background(), jobs, metrics.RecordOpts{RequestID: "req"})

	if len(outputs) != 2 {
		t.Fatalf("outputs = %d, want 2", len(outputs))
	}
	for i, job := range jobs {
		if got := mock.RequestsFor(job.URI); got != 3 {
			t.Errorf("attempts for %s = %d, want 3", job.URI, got)
		}
		want := ImageOutput{Page: job.Page, Title: job.Label, Description: FallbackDescription}
		if outputs[i] != want {
			t.Errorf("output[%d] = %+v, want %+v", i, outputs[i], want)
		}
	}

	errs := rec.ErrorsByType(metrics.Filter{RequestID: "req"})
	if errs["describe_failed"] != 6 {
		t.Errorf("recorded failures = %v, want 6 describe_failed", errs)
	}
}

func TestEnrich_RecoversWithinTries(t *testing.T) {
	mock := providers.NewMockDescriber()
	mock.FailFirst = 2
	r := newTestReconstructor(t, mock, nil)

	outputs := r.Enrich(context.Background(), []ImageJob{{Page: 1, URI: "u1", Label: "Image"}}, metrics.RecordOpts{})
	if outputs[0].Title != "Mock Image" {
		t.Errorf("output = %+v, want mock response", outputs[0])
	}
	if mock.RequestCount() != 3 {
		t.Errorf("requests = %d, want 3", mock.RequestCount())
	}
}

func TestEnrich_FreeForm(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantTitle string
		wantDesc  string
		wantTries int
	}{
		{
			name:      "json in prose",
			text:      "Sure! Here you go:\n{\"title\": \"Map\", \"description\": \"A <b>city</b> map.\"}\nAnything else?",
			wantTitle: "Map",
			wantDesc:  "A city map.",
			wantTries: 1,
		},
		{
			name:      "no json",
			text:      "I cannot see an image.",
			wantTitle: "Image",
			wantDesc:  FallbackDescription,
			wantTries: 3,
		},
		{
			name:      "json missing fields",
			text:      `{"caption": "x"}`,
			wantTitle: "Image",
			wantDesc:  FallbackDescription,
			wantTries: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := providers.NewMockDescriber()
			mock.Response = nil
			mock.ResponseText = tt.text
			r := newTestReconstructor(t, mock, nil)

			outputs := r.Enrich(context.Background(), []ImageJob{{Page: 4, URI: "u", Label: "Image"}}, metrics.RecordOpts{})
			if outputs[0].Title != tt.wantTitle || outputs[0].Description != tt.wantDesc {
				t.Errorf("output = %+v, want %q / %q", outputs[0], tt.wantTitle, tt.wantDesc)
			}
			if got := int(mock.RequestCount()); got != tt.wantTries {
				t.Errorf("tries = %d, want %d", got, tt.wantTries)
			}
		})
	}
}

func TestEnrich_Concurrent(t *testing.T) {
	mock := providers.NewMockDescriber()
	mock.Latency = 50 * time.Millisecond

	r, err := New(Config{
		Describer:      mock,
		RetryDelay:     time.Millisecond,
		MaxConcurrency: -1,
		Logger:         testutil.Logger(t),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	jobs := make([]ImageJob, 20)
	for i := range jobs {
		jobs[i] = ImageJob{Page: i + 1, URI: "u", Label: "Image"}
	}

	start := time.Now()
	outputs := r.Enrich(context.Background(), jobs, metrics.RecordOpts{})
	elapsed := time.Since(start)

	if elapsed > time.Second {
		t.Errorf("enrichment took %v, expected jobs to run concurrently", elapsed)
	}
	for i, out := range outputs {
		if out.Page != i+1 || out.Title != "Mock Image" {
			t.Errorf("output[%d] = %+v", i, out)
		}
	}
}

func TestEnrich_CanceledContext(t *testing.T) {
	mock := providers.NewMockDescriber()
	r := newTestReconstructor(t, mock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outputs := r.Enrich(ctx, []ImageJob{{Page: 1, URI: "u", Label: "chart"}}, metrics.RecordOpts{})
	if outputs[0].Description != FallbackDescription || outputs[0].Title != "chart" {
		t.Errorf("output = %+v, want fallback", outputs[0])
	}
}

func TestTruncateURI(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want string
	}{
		{"short", "data:image/png;base64,AAAA", "data:image/png;base64,AAAA"},
		{"ascii", strings.Repeat("a", 70), strings.Repeat("a", 64) + "..."},
		{"multibyte at limit", strings.Repeat("a", 63) + "é" + "tail", strings.Repeat("a", 63) + "..."},
		{"multibyte before limit", strings.Repeat("a", 62) + "é" + "tail", strings.Repeat("a", 62) + "é..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateURI(tt.uri)
			if got != tt.want {
				t.Errorf("truncateURI() = %q, want %q", got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncateURI() = %q is not valid UTF-8", got)
			}
		})
	}
}

func TestProcess_Idempotent(t *testing.T) {
	doc := testutil.NewDoc("deck.pptx").
		Text(1, 30, "b").
		Text(1, 10, "a").
		Picture(1, "p1", "data:image/png;base64,AAAA").
		Picture(1, "p2", "data:image/png;base64,BBBB").
		Picture(2, "p3", "data:image/png;base64,CCCC")
	data := doc.JSON(t)

	mock := providers.NewMockDescriber()
	r := newTestReconstructor(t, mock, nil)

	first, err := r.ProcessJSON(context.Background(), data)
	if err != nil {
		t.Fatalf("first ProcessJSON() error = %v", err)
	}
	second, err := r.ProcessJSON(context.Background(), data)
	if err != nil {
		t.Fatalf("second ProcessJSON() error = %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("page counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Text != second[i].Text {
			t.Errorf("page %d text differs: %q vs %q", first[i].Number, first[i].Text, second[i].Text)
		}
		if !sameImages(first[i].Images, second[i].Images) {
			t.Errorf("page %d images differ", first[i].Number)
		}
	}
	if p, _ := first.Get(1); p.Text != "a\nb" {
		t.Errorf("pptx page text = %q, want ascending order", p.Text)
	}
}

func TestProcess_MalformedDocument(t *testing.T) {
	r := newTestReconstructor(t, providers.NewMockDescriber(), nil)

	tests := []struct {
		name string
		data string
	}{
		{"not json", "{"},
		{"missing document", `{"status": "success"}`},
		{"missing json content", `{"document": {"filename": "a.pdf", "md_content": ""}}`},
		{"wrong type", `{"document": {"json_content": []}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.ProcessJSON(context.Background(), []byte(tt.data))
			if !errors.Is(err, docling.ErrMalformedDocument) {
				t.Errorf("ProcessJSON() error = %v, want ErrMalformedDocument", err)
			}
		})
	}

	if _, err := r.Process(context.Background(), nil); !errors.Is(err, docling.ErrMalformedDocument) {
		t.Errorf("Process(nil) error = %v, want ErrMalformedDocument", err)
	}
}

func sameImages(a, b []ImageOutput) bool {
	if len(a) != len(b) {
		return false
	}
	key := func(o ImageOutput) string { return o.Title + "\x00" + o.Description }
	ka := make([]string, len(a))
	kb := make([]string, len(b))
	for i := range a {
		ka[i] = key(a[i])
		kb[i] = key(b[i])
	}
	sort.Strings(ka)
	sort.Strings(kb)
	for i := range ka {
		if ka[i] != kb[i] {
			return false
		}
	}
	return true
}
