package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/monkeycs60/vincent/internal/app"
	testdb "github.com/monkeycs60/vincent/internal/database/testutil"
	"github.com/monkeycs60/vincent/internal/models"
	"github.com/monkeycs60/vincent/internal/prompt"
	"github.com/monkeycs60/vincent/internal/providers"
	apperrors "github.com/monkeycs60/vincent/pkg/errors"
)

// scriptedText replays canned responses in order and records every prompt it
// received. errAt fails the nth call (1-based) instead of answering.
type scriptedText struct {
	responses []string
	errAt     int
	calls     int
	prompts   []string
}

func (s *scriptedText) GenerateText(_ context.Context, p string, _ providers.TextOptions) (string, error) {
	s.calls++
	s.prompts = append(s.prompts, p)
	if s.errAt > 0 && s.calls == s.errAt {
		return "", errors.New("text provider down")
	}
	if len(s.responses) == 0 {
		return "", fmt.Errorf("script exhausted at call %d", s.calls)
	}
	out := s.responses[0]
	s.responses = s.responses[1:]
	return out, nil
}

type stubImageGen struct {
	payload *providers.ImagePayload
	err     error
	prompts []string
	opts    []providers.ImageOptions
}

func (s *stubImageGen) GenerateImage(_ context.Context, p string, opts providers.ImageOptions) (*providers.ImagePayload, error) {
	s.prompts = append(s.prompts, p)
	s.opts = append(s.opts, opts)
	if s.err != nil {
		return nil, s.err
	}
	return s.payload, nil
}

type putCall struct {
	name        string
	contentType string
	data        []byte
}

type stubBlobStore struct {
	err  error
	puts []putCall
}

func (s *stubBlobStore) Put(_ context.Context, name string, data []byte, contentType string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.puts = append(s.puts, putCall{name: name, contentType: contentType, data: data})
	return "http://localhost:8000/media/" + name, nil
}

type stubReference struct {
	data []byte
	err  error
}

func (s *stubReference) Fetch(context.Context) ([]byte, error) {
	return s.data, s.err
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func mustComposer(t *testing.T, text providers.TextGenerator) *prompt.Composer {
	t.Helper()
	composer, err := prompt.NewComposer(text)
	require.NoError(t, err)
	return composer
}

func defaultGenConfig() app.GenerationConfig {
	return app.GenerationConfig{
		HistoryWindow: 10,
		AspectRatio:   "16:9",
		MaxDimension:  800,
		JPEGQuality:   80,
		Budget:        time.Minute,
	}
}

// happyScript answers title+style, punchline, then the image prompt. With an
// empty gallery the style analysis step is skipped, so three calls suffice.
func happyScript() []string {
	return []string{
		"TITLE: Vincent in orbit reboots the space station\nSTYLE: neon synthwave poster",
		"Turning it off and on again, at escape velocity.",
		"A man in his fifties with glasses, dressed in black, floating in a neon-lit control room",
	}
}

func newTestService(t *testing.T, db *gorm.DB, text *scriptedText, images *stubImageGen, ref ReferenceSource, store *stubBlobStore, cfg app.GenerationConfig, opts ...GenerationOption) *GenerationService {
	t.Helper()
	svc, err := NewGenerationService(db, mustComposer(t, text), images, ref, store, cfg, opts...)
	require.NoError(t, err)
	return svc
}

func countImages(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.Image{}).Count(&count).Error)
	return count
}

func TestGenerateHappyPathCreatesOneRecord(t *testing.T) {
	db := testdb.MustOpenTestDB(t)
	text := &scriptedText{responses: happyScript()}
	images := &stubImageGen{payload: &providers.ImagePayload{Data: pngBytes(t, 1600, 900), MimeType: "image/png"}}
	store := &stubBlobStore{}

	svc := newTestService(t, db, text, images, nil, store, defaultGenConfig())

	record, err := svc.Generate(context.Background(), TriggerManual)
	require.NoError(t, err)
	require.NotNil(t, record)
	require.NotEmpty(t, record.ID)
	require.Equal(t, "Vincent in orbit reboots the space station", record.Title)
	require.Equal(t, "Turning it off and on again, at escape velocity.", record.Punchline)
	require.Equal(t, "neon synthwave poster", record.GraphicalStyle)
	require.NotEmpty(t, record.Prompt)
	require.Contains(t, string(record.Metadata), TriggerManual)

	require.Equal(t, int64(1), countImages(t, db))

	require.Len(t, store.puts, 1)
	put := store.puts[0]
	require.True(t, strings.HasPrefix(put.name, "vincent-"))
	require.Equal(t, "image/jpeg", put.contentType)
	require.Equal(t, "http://localhost:8000/media/"+put.name, record.URL)

	imageSvc, err := NewImageService(db)
	require.NoError(t, err)
	latest, err := imageSvc.Latest(context.Background())
	require.NoError(t, err)
	require.Equal(t, record.ID, latest.ID)
}

func TestGenerateTwiceProducesTwoCleanRecords(t *testing.T) {
	db := testdb.MustOpenTestDB(t)

	// Second run sees the first record's prompt, so it adds a style
	// analysis call: 3 + 4 scripted answers.
	text := &scriptedText{responses: []string{
		"TITLE: Vincent in orbit reboots the space station\nSTYLE: neon synthwave poster",
		"Turning it off and on again, at escape velocity.",
		"A man floating in a neon-lit control room",
		"TITLE: Vincent in the deep sea patches a leak with duct tape\nSTYLE: vintage nature documentary still",
		"The fix is temporary, like all permanent fixes.",
		"Neon poster styling was already used.",
		"A man in a diving suit pressing tape onto a porthole",
	}}
	images := &stubImageGen{payload: &providers.ImagePayload{Data: pngBytes(t, 32, 18), MimeType: "image/png"}}
	store := &stubBlobStore{}

	svc := newTestService(t, db, text, images, nil, store, defaultGenConfig())

	first, err := svc.Generate(context.Background(), TriggerManual)
	require.NoError(t, err)
	second, err := svc.Generate(context.Background(), TriggerManual)
	require.NoError(t, err)

	require.NotEqual(t, first.ID, second.ID)
	require.NotEqual(t, first.Title, second.Title)
	require.Equal(t, int64(2), countImages(t, db))
	require.Len(t, store.puts, 2)
	require.NotEqual(t, store.puts[0].name, store.puts[1].name)
}

func TestGeneratePassesAspectRatioAndReference(t *testing.T) {
	db := testdb.MustOpenTestDB(t)
	text := &scriptedText{responses: happyScript()}
	images := &stubImageGen{payload: &providers.ImagePayload{Data: pngBytes(t, 32, 18), MimeType: "image/png"}}
	ref := &stubReference{data: []byte("reference-photo")}

	svc := newTestService(t, db, text, images, ref, &stubBlobStore{}, defaultGenConfig())

	_, err := svc.Generate(context.Background(), TriggerCron)
	require.NoError(t, err)

	require.Len(t, images.opts, 1)
	require.Equal(t, "16:9", images.opts[0].AspectRatio)
	require.Equal(t, []byte("reference-photo"), images.opts[0].Reference)
}

func TestGenerateTextFailuresLeaveGalleryEmpty(t *testing.T) {
	// The composer issues three text calls against an empty gallery: the
	// title, the punchline and the image prompt. Each must abort the run
	// with no record and no upload.
	for call := 1; call <= 3; call++ {
		t.Run(fmt.Sprintf("call_%d", call), func(t *testing.T) {
			db := testdb.MustOpenTestDB(t)
			text := &scriptedText{responses: happyScript(), errAt: call}
			images := &stubImageGen{payload: &providers.ImagePayload{Data: pngBytes(t, 32, 18), MimeType: "image/png"}}
			store := &stubBlobStore{}

			svc := newTestService(t, db, text, images, nil, store, defaultGenConfig())

			_, err := svc.Generate(context.Background(), TriggerManual)
			require.Error(t, err)
			require.ErrorIs(t, err, apperrors.ErrPromptGeneration)
			require.Equal(t, int64(0), countImages(t, db))
			require.Empty(t, store.puts)
		})
	}
}

func TestGenerateImageFailureLeavesGalleryEmpty(t *testing.T) {
	db := testdb.MustOpenTestDB(t)
	text := &scriptedText{responses: happyScript()}
	images := &stubImageGen{err: errors.New("model overloaded")}
	store := &stubBlobStore{}

	svc := newTestService(t, db, text, images, nil, store, defaultGenConfig())

	_, err := svc.Generate(context.Background(), TriggerManual)
	require.ErrorIs(t, err, apperrors.ErrImageGeneration)
	require.Equal(t, int64(0), countImages(t, db))
	require.Empty(t, store.puts)
}

func TestGenerateEmptyPayloadRejected(t *testing.T) {
	db := testdb.MustOpenTestDB(t)
	text := &scriptedText{responses: happyScript()}
	images := &stubImageGen{payload: &providers.ImagePayload{MimeType: "image/png"}}

	svc := newTestService(t, db, text, images, nil, &stubBlobStore{}, defaultGenConfig())

	_, err := svc.Generate(context.Background(), TriggerManual)
	require.ErrorIs(t, err, apperrors.ErrImageGeneration)
	require.Equal(t, int64(0), countImages(t, db))
}

func TestGenerateReferenceFailureAborts(t *testing.T) {
	db := testdb.MustOpenTestDB(t)
	text := &scriptedText{responses: happyScript()}
	images := &stubImageGen{payload: &providers.ImagePayload{Data: pngBytes(t, 32, 18), MimeType: "image/png"}}
	ref := &stubReference{err: errors.New("photo host unreachable")}

	svc := newTestService(t, db, text, images, ref, &stubBlobStore{}, defaultGenConfig())

	_, err := svc.Generate(context.Background(), TriggerManual)
	require.ErrorIs(t, err, apperrors.ErrImageGeneration)
	require.Equal(t, int64(0), countImages(t, db))
}

func TestGenerateStorageFailureLeavesGalleryEmpty(t *testing.T) {
	db := testdb.MustOpenTestDB(t)
	text := &scriptedText{responses: happyScript()}
	images := &stubImageGen{payload: &providers.ImagePayload{Data: pngBytes(t, 32, 18), MimeType: "image/png"}}
	store := &stubBlobStore{err: errors.New("disk full")}

	svc := newTestService(t, db, text, images, nil, store, defaultGenConfig())

	_, err := svc.Generate(context.Background(), TriggerManual)
	require.ErrorIs(t, err, apperrors.ErrStorage)
	require.Equal(t, int64(0), countImages(t, db))
}

func TestGenerateRecompressFallbackStoresOriginal(t *testing.T) {
	db := testdb.MustOpenTestDB(t)
	text := &scriptedText{responses: happyScript()}
	payload := &providers.ImagePayload{Data: []byte("opaque provider format"), MimeType: "image/webp"}
	images := &stubImageGen{payload: payload}
	store := &stubBlobStore{}

	svc := newTestService(t, db, text, images, nil, store, defaultGenConfig())

	_, err := svc.Generate(context.Background(), TriggerManual)
	require.NoError(t, err)

	require.Len(t, store.puts, 1)
	require.Equal(t, "image/webp", store.puts[0].contentType)
	require.Equal(t, payload.Data, store.puts[0].data)
}

func TestGenerateEmbedsHistoryInPrompts(t *testing.T) {
	db := testdb.MustOpenTestDB(t)

	past := []models.Image{
		{URL: "http://x/1.jpg", Title: "Vincent in a western duels the linter", Prompt: "a dusty street at noon", GraphicalStyle: "sepia lithograph"},
		{URL: "http://x/2.jpg", Title: "Vincent in a manga dojo refactors katas", Prompt: "a paper-screened dojo", GraphicalStyle: "ink wash"},
	}
	for i := range past {
		require.NoError(t, db.Create(&past[i]).Error)
	}

	// With prior prompts on file the composer adds a style analysis call,
	// so the script needs four answers.
	text := &scriptedText{responses: []string{
		"TITLE: Vincent in a submarine mutes the sonar alerts\nSTYLE: blueprint schematic",
		"Silence is a feature now.",
		"Previous images leaned on sepia and ink wash looks.",
		"A man in his fifties with glasses inside a cramped submarine command room",
	}}
	images := &stubImageGen{payload: &providers.ImagePayload{Data: pngBytes(t, 32, 18), MimeType: "image/png"}}

	svc := newTestService(t, db, text, images, nil, &stubBlobStore{}, defaultGenConfig())

	record, err := svc.Generate(context.Background(), TriggerCron)
	require.NoError(t, err)
	require.Equal(t, "Vincent in a submarine mutes the sonar alerts", record.Title)

	require.Equal(t, 4, text.calls)
	require.Contains(t, text.prompts[0], "Vincent in a western duels the linter")
	require.Contains(t, text.prompts[0], "Vincent in a manga dojo refactors katas")
	require.Contains(t, text.prompts[0], "sepia lithograph")
	require.Contains(t, text.prompts[2], "a dusty street at noon")
	require.Contains(t, text.prompts[3], "blueprint schematic")
}

func TestDailyLockBlocksSecondRunSameDay(t *testing.T) {
	db := testdb.MustOpenTestDB(t)
	now := time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)

	existing := models.Image{URL: "http://x/today.jpg", Title: "Vincent already posted today"}
	existing.CreatedAt = now.Add(-2 * time.Hour)
	existing.UpdatedAt = existing.CreatedAt
	require.NoError(t, db.Create(&existing).Error)

	cfg := defaultGenConfig()
	cfg.DailyLock = true

	text := &scriptedText{responses: happyScript()}
	images := &stubImageGen{payload: &providers.ImagePayload{Data: pngBytes(t, 32, 18), MimeType: "image/png"}}
	store := &stubBlobStore{}

	svc := newTestService(t, db, text, images, nil, store, cfg,
		WithClock(func() time.Time { return now }))

	_, err := svc.Generate(context.Background(), TriggerManual)
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
	require.Equal(t, int64(1), countImages(t, db))
	require.Empty(t, store.puts)
}

// keyedText answers by recognising the instruction instead of by call order,
// so interleaved runs each receive a coherent script. Titles carry a counter
// to stay unique across runs.
type keyedText struct {
	mu     sync.Mutex
	titles int
}

func (s *keyedText) GenerateText(_ context.Context, p string, _ providers.TextOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case strings.Contains(p, "Answer with exactly two lines"):
		s.titles++
		return fmt.Sprintf("TITLE: Vincent rewires server rack number %d\nSTYLE: isometric diorama take %d", s.titles, s.titles), nil
	case strings.Contains(p, "sarcastic punchline"):
		return "It worked on my machine, which is now on fire.", nil
	case strings.Contains(p, "Analyse these image prompts"):
		return "Isometric dioramas are wearing thin.", nil
	default:
		return "A man in his fifties with glasses kneeling inside a glowing server rack", nil
	}
}

type safeImageGen struct {
	mu      sync.Mutex
	payload *providers.ImagePayload
}

func (s *safeImageGen) GenerateImage(context.Context, string, providers.ImageOptions) (*providers.ImagePayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payload, nil
}

type safeBlobStore struct {
	mu   sync.Mutex
	puts []putCall
}

func (s *safeBlobStore) Put(_ context.Context, name string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts = append(s.puts, putCall{name: name, contentType: contentType, data: data})
	return "http://localhost:8000/media/" + name, nil
}

func TestGenerateConcurrentRunsProduceCompleteRecords(t *testing.T) {
	db := testdb.MustOpenTestDB(t)

	// Shared-cache SQLite tolerates one writer at a time; a single pooled
	// connection keeps the interleaved runs from tripping over lock errors.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	text := &keyedText{}
	images := &safeImageGen{payload: &providers.ImagePayload{Data: pngBytes(t, 32, 18), MimeType: "image/png"}}
	store := &safeBlobStore{}

	svc, err := NewGenerationService(db, mustComposer(t, text), images, nil, store, defaultGenConfig())
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Generate(context.Background(), TriggerManual)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, int64(2), countImages(t, db))

	var records []models.Image
	require.NoError(t, db.Find(&records).Error)
	require.Len(t, records, 2)
	for _, rec := range records {
		require.NotEmpty(t, rec.URL)
		require.NotEmpty(t, rec.Title)
		require.NotEmpty(t, rec.Punchline)
		require.NotEmpty(t, rec.Prompt)
	}
	require.NotEqual(t, records[0].Title, records[1].Title)

	require.Len(t, store.puts, 2)
	require.NotEqual(t, store.puts[0].name, store.puts[1].name)
}

func TestDailyLockAllowsNextDay(t *testing.T) {
	db := testdb.MustOpenTestDB(t)
	now := time.Date(2025, 6, 16, 0, 15, 0, 0, time.UTC)

	existing := models.Image{URL: "http://x/yesterday.jpg", Title: "Vincent posted yesterday"}
	existing.CreatedAt = now.AddDate(0, 0, -1)
	existing.UpdatedAt = existing.CreatedAt
	require.NoError(t, db.Create(&existing).Error)

	cfg := defaultGenConfig()
	cfg.DailyLock = true

	// One prior record with no stored prompt: title, punchline, image prompt.
	text := &scriptedText{responses: happyScript()}
	images := &stubImageGen{payload: &providers.ImagePayload{Data: pngBytes(t, 32, 18), MimeType: "image/png"}}

	svc := newTestService(t, db, text, images, nil, &stubBlobStore{}, cfg,
		WithClock(func() time.Time { return now }))

	_, err := svc.Generate(context.Background(), TriggerCron)
	require.NoError(t, err)
	require.Equal(t, int64(2), countImages(t, db))
}
