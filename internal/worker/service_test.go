package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/quizgen/internal/artifact"
	"github.com/spherical/quizgen/internal/config"
	"github.com/spherical/quizgen/internal/domain"
	"github.com/spherical/quizgen/internal/failsafe"
	"github.com/spherical/quizgen/internal/render"
)

const validReply = "```json\n" + `{"loai_de":"tra_loi_ngan","cau_hoi":[{"stt":1,"muc_do":"Vận dụng",` +
	`"noi_dung":"Tính 2+3.","dap_an":"5","giai_thich":"Cộng."}]}` + "\n```"

type fakeLoader struct {
	err    error
	onLoad func()
}

func (f fakeLoader) Load(ctx context.Context, paths []string) ([]domain.Document, error) {
	if f.onLoad != nil {
		f.onLoad()
	}
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Document{{Name: "a.pdf", MIMEType: "application/pdf", Data: []byte("%PDF")}}, nil
}

type fakeGenerator struct {
	mu      sync.Mutex
	replies []string
	err     error
	reqs    []domain.GenerateRequest
	onCall  func(n int)
}

func (g *fakeGenerator) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	if g.onCall != nil {
		g.onCall(len(g.reqs))
	}
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return "", nil
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply, nil
}

type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) emit(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.msgs {
		out = append(out, m.Text)
	}
	return out
}

func newJob() Job {
	return Job{
		APIKey: "key-2",
		Task: domain.Task{
			ID:            "t1",
			BatchName:     "lo1",
			OutputName:    "bai1_TLN",
			DocumentPaths: []string{"a.pdf"},
			Kind:          domain.KindShortAnswer,
			PromptText:    "Tạo 1 câu hỏi.",
		},
	}
}

func newService(t *testing.T, loader DocumentLoader, gen domain.Generator) (*Service, *artifact.Store) {
	t.Helper()
	store := artifact.NewStore(config.OutputConfig{Root: t.TempDir(), SaveRetries: 1}, nil)
	ai := config.AIConfig{Model: "main", RepairModel: "repair", Timeout: time.Minute, RepairTimeout: time.Minute, UseSchema: true}
	return NewService(loader, gen, render.New(nil, render.Options{}, nil), store, ai, failsafe.Options{}, nil), store
}

func TestRunProducesDocument(t *testing.T) {
	gen := &fakeGenerator{replies: []string{validReply}}
	svc, store := newService(t, fakeLoader{}, gen)
	rec := &recorder{}

	result := svc.Run(context.Background(), newJob(), make(chan struct{}), rec.emit)

	require.True(t, result.Succeeded(), result.ErrorMessage)
	assert.Equal(t, filepath.Join(store.Root(), "lo1", "bai1_TLN.docx"), result.ArtifactPath)

	require.Len(t, gen.reqs, 1)
	req := gen.reqs[0]
	assert.Equal(t, "main", req.Model)
	assert.Equal(t, "key-2", req.APIKey)
	assert.Contains(t, req.Prompt, "Tạo 1 câu hỏi.")
	assert.NotNil(t, req.SchemaHint)
	assert.Len(t, req.Documents, 1)

	texts := rec.texts()
	assert.Contains(t, texts, "Loading 1 document(s)")
	assert.Contains(t, texts[len(texts)-1], "Saved ")
	for _, m := range rec.msgs {
		assert.Equal(t, "t1", m.TaskID)
	}
}

func TestRunSkipsRepairAfterStop(t *testing.T) {
	stop := make(chan struct{})
	gen := &fakeGenerator{
		replies: []string{"xin lỗi, không có JSON", validReply},
		onCall: func(n int) {
			if n == 1 {
				close(stop)
			}
		},
	}
	svc, _ := newService(t, fakeLoader{}, gen)

	result := svc.Run(context.Background(), newJob(), stop, (&recorder{}).emit)

	assert.Len(t, gen.reqs, 1)
	assert.Equal(t, domain.TierRawDump, result.Tier)
	assert.Equal(t, "bai1_TLN_loi_parse.docx", filepath.Base(result.ArtifactPath))
	assert.Contains(t, result.ErrorMessage, "repair skipped")
}

func TestRunRepairUsesLeasedKey(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"xin lỗi, không có JSON", validReply}}
	svc, _ := newService(t, fakeLoader{}, gen)

	result := svc.Run(context.Background(), newJob(), make(chan struct{}), (&recorder{}).emit)

	require.True(t, result.Succeeded(), result.ErrorMessage)
	require.Len(t, gen.reqs, 2)
	assert.Equal(t, "repair", gen.reqs[1].Model)
	assert.Equal(t, "key-2", gen.reqs[1].APIKey)
}

func TestRunStopChecks(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		gen := &fakeGenerator{}
		svc, _ := newService(t, fakeLoader{}, gen)
		stop := make(chan struct{})
		close(stop)

		result := svc.Run(context.Background(), newJob(), stop, (&recorder{}).emit)

		assert.True(t, result.Cancelled)
		assert.Empty(t, gen.reqs)
	})

	t.Run("before AI call", func(t *testing.T) {
		gen := &fakeGenerator{}
		stop := make(chan struct{})
		svc, _ := newService(t, fakeLoader{onLoad: func() { close(stop) }}, gen)

		result := svc.Run(context.Background(), newJob(), stop, (&recorder{}).emit)

		assert.True(t, result.Cancelled)
		assert.Equal(t, domain.TaskFailed, result.State())
		assert.Empty(t, gen.reqs)
	})
}

func TestRunFailures(t *testing.T) {
	t.Run("transport", func(t *testing.T) {
		gen := &fakeGenerator{err: domain.TransportError("API error (status 503)", nil)}
		svc, _ := newService(t, fakeLoader{}, gen)

		result := svc.Run(context.Background(), newJob(), make(chan struct{}), (&recorder{}).emit)

		assert.Equal(t, domain.TierMinimal, result.Tier)
		assert.Equal(t, "bai1_TLN_loi_ai.docx", filepath.Base(result.ArtifactPath))
		assert.Contains(t, result.ErrorMessage, "status 503")
	})

	t.Run("documents", func(t *testing.T) {
		gen := &fakeGenerator{}
		svc, _ := newService(t, fakeLoader{err: errors.New("PDF has no pages")}, gen)

		result := svc.Run(context.Background(), newJob(), make(chan struct{}), (&recorder{}).emit)

		assert.Equal(t, "bai1_TLN_loi_dau_vao.docx", filepath.Base(result.ArtifactPath))
		assert.Empty(t, gen.reqs)
	})
}

type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context, job Job, stop <-chan struct{}, emit func(Message)) domain.TaskResult {
	emit(LogMessage(job.Task.ID, "waiting"))
	select {
	case <-stop:
		return domain.CancelledResult(job.Task)
	case <-time.After(5 * time.Second):
		return domain.TaskResult{TaskID: job.Task.ID, ArtifactPath: "late.docx", Tier: domain.TierRendered}
	}
}

func decodeAll(t *testing.T, r io.Reader) []Message {
	t.Helper()
	var msgs []Message
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		var m Message
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		msgs = append(msgs, m)
	}
	return msgs
}

func TestServeProtocol(t *testing.T) {
	job := newJob()
	line, err := json.Marshal(Message{Type: MessageJob, Job: &job})
	require.NoError(t, err)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- Serve(context.Background(), inR, outW, blockingRunner{})
		outW.Close()
	}()

	_, err = inW.Write(append(line, '\n'))
	require.NoError(t, err)
	_, err = inW.Write([]byte(`{"type":"stop"}` + "\n"))
	require.NoError(t, err)

	msgs := decodeAll(t, outR)
	require.NoError(t, <-done)
	inW.Close()

	require.Len(t, msgs, 3)
	assert.Equal(t, MessageLog, msgs[0].Type)
	assert.Equal(t, "waiting", msgs[0].Text)
	assert.Equal(t, MessageResult, msgs[1].Type)
	require.NotNil(t, msgs[1].Result)
	assert.True(t, msgs[1].Result.Cancelled)
	assert.Equal(t, MessageFinished, msgs[2].Type)
	assert.Equal(t, "t1", msgs[2].TaskID)
}

func TestServeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not json", "hello\n"},
		{"not a job", `{"type":"stop"}` + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			err := Serve(context.Background(), strings.NewReader(tt.input), &out, blockingRunner{})
			assert.True(t, domain.IsType(err, domain.ErrorTypeValidation), "%v", err)
			assert.Empty(t, out.String())
		})
	}
}

type keyedImages struct {
	key   string
	calls *[]string
}

func (k keyedImages) GenerateImage(ctx context.Context, description string) (*domain.Image, error) {
	*k.calls = append(*k.calls, k.key+":"+description)
	return nil, errors.New("no quota")
}

func TestRunDrawsImagesWithLeasedKey(t *testing.T) {
	reply := `{"loai_de":"tra_loi_ngan","cau_hoi":[{"stt":1,"muc_do":"Vận dụng","noi_dung":"Tính 2+3.",` +
		`"hinh_anh":{"co_hinh":true,"loai":"tu_mo_ta","mo_ta":"Trục số"},"dap_an":"5","giai_thich":"Cộng."}]}`
	gen := &fakeGenerator{replies: []string{reply}}
	svc, _ := newService(t, fakeLoader{}, gen)

	var calls []string
	svc.WithImages(func(apiKey string) domain.ImageGenerator {
		return keyedImages{key: apiKey, calls: &calls}
	})

	result := svc.Run(context.Background(), newJob(), make(chan struct{}), (&recorder{}).emit)

	require.True(t, result.Succeeded(), result.ErrorMessage)
	assert.Equal(t, []string{"key-2:Trục số"}, calls)
}
