package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nutriscan/internal/domain"
	"nutriscan/internal/inference"
	"nutriscan/internal/pipeline"
	"nutriscan/internal/storage"
)

type fakeImages map[domain.DishID]bool

func (f fakeImages) Has(id domain.DishID) bool { return f[id] }

func (f fakeImages) Path(id domain.DishID) string { return filepath.Join("images", id, "rgb.png") }

// fakeClient answers by dish: the dish id is recovered from the upload path.
type fakeClient struct {
	responses  map[domain.DishID]string
	inferErrs  map[domain.DishID]error
	uploadErrs map[domain.DishID]error
	uploads    []domain.DishID
	releases   []domain.DishID
	inferCalls int
}

func (f *fakeClient) Upload(ctx context.Context, path string) (inference.Asset, error) {
	id := filepath.Base(filepath.Dir(path))
	if err := f.uploadErrs[id]; err != nil {
		return inference.Asset{}, err
	}
	f.uploads = append(f.uploads, id)
	return inference.Asset{Name: "files/" + id, URI: "https://example.com/files/" + id, MIMEType: "image/png"}, nil
}

func (f *fakeClient) Infer(ctx context.Context, parts []inference.Part, schema *inference.Schema) (string, error) {
	f.inferCalls++
	for _, p := range parts {
		if p.Asset == nil {
			continue
		}
		id := strings.TrimPrefix(p.Asset.Name, "files/")
		if err := f.inferErrs[id]; err != nil {
			return "", err
		}
		return f.responses[id], nil
	}
	return "", fmt.Errorf("%w: no image part", domain.ErrInference)
}

func (f *fakeClient) Release(ctx context.Context, asset inference.Asset) error {
	f.releases = append(f.releases, strings.TrimPrefix(asset.Name, "files/"))
	return nil
}

func loadResult(t *testing.T, store *storage.ResultStore, id domain.DishID) domain.Result {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(store.BasePath(), id+".json"))
	if err != nil {
		t.Fatalf("read %s: %v", id, err)
	}
	var res domain.Result
	if err := json.Unmarshal(data, &res); err != nil {
		t.Fatalf("decode %s: %v", id, err)
	}
	return res
}

type failingSink struct{}

func (failingSink) Save(ctx context.Context, res domain.Result) error {
	return fmt.Errorf("%w: disk full", domain.ErrWrite)
}

type recordingSink struct {
	saved     []domain.Result
	discarded []domain.DishID
}

func (s *recordingSink) Discard(ctx context.Context, id domain.DishID) error {
	s.discarded = append(s.discarded, id)
	return nil
}

func (s *recordingSink) Save(ctx context.Context, res domain.Result) error {
	s.saved = append(s.saved, res)
	return nil
}

func newRunner(t *testing.T, client inference.Client, images Images, sink Sink, mutate func(*Options)) *Runner {
	t.Helper()
	est, err := pipeline.New(pipeline.ModeSingle, client, pipeline.Options{})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	opts := Options{
		Client:    client,
		Estimator: est,
		Images:    images,
		Sink:      sink,
		RunID:     "test-run",
		Sleep:     func(ctx context.Context, d time.Duration) error { return nil },
	}
	if mutate != nil {
		mutate(&opts)
	}
	r, err := NewRunner(opts)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r
}

func TestRunIsolatesFailuresAndSkipsMissingImages(t *testing.T) {
	client := &fakeClient{
		responses: map[domain.DishID]string{
			"c": `[{"name":"rice","portion":"1 cup","calories":200,"carbohydrates":45}]`,
		},
		inferErrs: map[domain.DishID]error{
			"a": fmt.Errorf("%w: status 500", domain.ErrInference),
		},
	}
	store, err := storage.NewResultStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewResultStore: %v", err)
	}
	var sleeps int
	runner := newRunner(t, client, fakeImages{"a": true, "c": true}, store, func(o *Options) {
		o.Pacing = time.Second
		o.Sleep = func(ctx context.Context, d time.Duration) error {
			sleeps++
			return nil
		}
	})

	summary, err := runner.Run(context.Background(), []domain.DishID{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 1 || summary.Failed() != 1 || summary.Skipped != 1 || summary.Total != 3 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Failures[0].DishID != "a" || !errors.Is(summary.Failures[0].Err, domain.ErrInference) {
		t.Fatalf("unexpected failure %+v", summary.Failures[0])
	}

	if _, err := os.Stat(filepath.Join(store.BasePath(), "a.json")); !os.IsNotExist(err) {
		t.Fatalf("a.json should not exist, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.BasePath(), "b.json")); !os.IsNotExist(err) {
		t.Fatalf("b.json should not exist, stat err = %v", err)
	}
	res := loadResult(t, store, "c")
	if res.TotalCalories != 200 || res.TotalCarbohydrates != 45 {
		t.Fatalf("c totals = %d/%d, want 200/45", res.TotalCalories, res.TotalCarbohydrates)
	}

	if strings.Join(client.uploads, ",") != "a,c" {
		t.Fatalf("uploads = %v, want [a c]", client.uploads)
	}
	if strings.Join(client.releases, ",") != "a,c" {
		t.Fatalf("releases = %v, want [a c]", client.releases)
	}
	if sleeps != 1 {
		t.Fatalf("pacing sleeps = %d, want 1", sleeps)
	}
}

func TestRunUploadFailureDoesNotRelease(t *testing.T) {
	client := &fakeClient{
		uploadErrs: map[domain.DishID]error{"a": fmt.Errorf("%w: connection reset", domain.ErrUpload)},
		responses:  map[domain.DishID]string{"b": `[]`},
	}
	sink := &recordingSink{}
	runner := newRunner(t, client, fakeImages{"a": true, "b": true}, sink, nil)

	summary, err := runner.Run(context.Background(), []domain.DishID{"a", "b"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed() != 1 || domain.FailureKind(summary.Failures[0].Err) != "upload" {
		t.Fatalf("unexpected failures %+v", summary.Failures)
	}
	if client.inferCalls != 1 {
		t.Fatalf("inference should only run for b, got %d calls", client.inferCalls)
	}
	if strings.Join(client.releases, ",") != "b" {
		t.Fatalf("releases = %v, want [b]", client.releases)
	}
	if len(sink.saved) != 1 || sink.saved[0].DishID != "b" || sink.saved[0].TotalCalories != 0 {
		t.Fatalf("saved = %+v", sink.saved)
	}
}

func TestProcessDishReleasesOnParseAndWriteFailure(t *testing.T) {
	client := &fakeClient{responses: map[domain.DishID]string{
		"bad":  `not json at all`,
		"good": `[{"name":"egg","portion":"1","calories":78,"carbohydrates":1}]`,
	}}
	runner := newRunner(t, client, fakeImages{"bad": true, "good": true}, failingSink{}, nil)

	_, err := runner.ProcessDish(context.Background(), "bad")
	if !errors.Is(err, domain.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	_, err = runner.ProcessDish(context.Background(), "good")
	if !errors.Is(err, domain.ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
	if strings.Join(client.releases, ",") != "bad,good" {
		t.Fatalf("releases = %v, want [bad good]", client.releases)
	}
}

func TestProcessDishMeasuresEstimation(t *testing.T) {
	client := &fakeClient{responses: map[domain.DishID]string{"d": `[]`}}
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(1500 * time.Millisecond)}
	runner := newRunner(t, client, fakeImages{"d": true}, &recordingSink{}, func(o *Options) {
		o.Now = func() time.Time {
			next := ticks[0]
			ticks = ticks[1:]
			return next
		}
	})
	res, err := runner.ProcessDish(context.Background(), "d")
	if err != nil {
		t.Fatalf("ProcessDish: %v", err)
	}
	if res.ElapsedTime != 1.5 {
		t.Fatalf("ElapsedTime = %v, want 1.5", res.ElapsedTime)
	}
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	client := &fakeClient{responses: map[domain.DishID]string{"a": `[]`, "b": `[]`}}
	ctx, cancel := context.WithCancel(context.Background())
	runner := newRunner(t, client, fakeImages{"a": true, "b": true}, &recordingSink{}, func(o *Options) {
		o.Pacing = time.Hour
		o.Sleep = func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}
	})
	summary, err := runner.Run(ctx, []domain.DishID{"a", "b"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if summary.Processed != 1 || len(client.uploads) != 1 {
		t.Fatalf("only the first dish should run, summary %+v uploads %v", summary, client.uploads)
	}
}

func TestSinksStopAtFirstFailure(t *testing.T) {
	after := &recordingSink{}
	err := Sinks{failingSink{}, after}.Save(context.Background(), domain.NewResult("d", nil, 0))
	if !errors.Is(err, domain.ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
	if len(after.saved) != 0 {
		t.Fatal("later sinks should not run after a failure")
	}
}

func TestNewRunnerValidatesOptions(t *testing.T) {
	if _, err := NewRunner(Options{}); err == nil {
		t.Fatal("expected error for empty options")
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("sleepContext: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSinksDiscardEarlierSinksOnFailure(t *testing.T) {
	store, err := storage.NewResultStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewResultStore: %v", err)
	}
	first := &recordingSink{}
	err = Sinks{first, store, failingSink{}}.Save(context.Background(), domain.NewResult("d", nil, 0))
	if !errors.Is(err, domain.ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.BasePath(), "d.json")); !os.IsNotExist(err) {
		t.Fatalf("d.json should have been discarded, stat err = %v", err)
	}
	if len(first.discarded) != 1 || first.discarded[0] != "d" {
		t.Fatalf("discarded = %v, want [d]", first.discarded)
	}
}

func TestRunLeavesNoFileWhenMirrorFails(t *testing.T) {
	client := &fakeClient{responses: map[domain.DishID]string{
		"c": `[{"name":"rice","portion":"1 cup","calories":200,"carbohydrates":45}]`,
	}}
	store, err := storage.NewResultStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewResultStore: %v", err)
	}
	runner := newRunner(t, client, fakeImages{"c": true}, Sinks{store, failingSink{}}, nil)

	summary, err := runner.Run(context.Background(), []domain.DishID{"c"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 0 || summary.Failed() != 1 || domain.FailureKind(summary.Failures[0].Err) != "write" {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if _, err := os.Stat(filepath.Join(store.BasePath(), "c.json")); !os.IsNotExist(err) {
		t.Fatalf("c.json must not survive a failed dish, stat err = %v", err)
	}
	if strings.Join(client.releases, ",") != "c" {
		t.Fatalf("releases = %v, want [c]", client.releases)
	}
}
