package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// QuestionKind identifies the shape of a generated question set.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple-choice"
	KindTrueFalseSet   QuestionKind = "true-false-set"
	KindShortAnswer    QuestionKind = "short-answer"
	KindEssay          QuestionKind = "essay"
)

// AllKinds lists the supported kinds in task planning order.
var AllKinds = []QuestionKind{KindMultipleChoice, KindTrueFalseSet, KindShortAnswer, KindEssay}

var kindWireNames = map[QuestionKind]string{
	KindMultipleChoice: "trac_nghiem_4_dap_an",
	KindTrueFalseSet:   "dung_sai",
	KindShortAnswer:    "tra_loi_ngan",
	KindEssay:          "tu_luan",
}

var kindSuffixes = map[QuestionKind]string{
	KindMultipleChoice: "_TN",
	KindTrueFalseSet:   "_DS",
	KindShortAnswer:    "_TLN",
	KindEssay:          "_TL",
}

var kindLabels = map[QuestionKind]string{
	KindMultipleChoice: "TRẮC NGHIỆM 4 ĐÁP ÁN",
	KindTrueFalseSet:   "ĐÚNG SAI",
	KindShortAnswer:    "TRẢ LỜI NGẮN",
	KindEssay:          "TỰ LUẬN",
}

// WireName returns the value of the loai_de field for the kind.
func (k QuestionKind) WireName() string { return kindWireNames[k] }

// Suffix returns the output-name suffix used for tasks of the kind.
func (k QuestionKind) Suffix() string { return kindSuffixes[k] }

// Label returns the document title label for the kind.
func (k QuestionKind) Label() string {
	if l, ok := kindLabels[k]; ok {
		return l
	}
	return strings.ToUpper(string(k))
}

// Valid reports whether k is one of the supported kinds.
func (k QuestionKind) Valid() bool {
	_, ok := kindWireNames[k]
	return ok
}

// ParseKind accepts canonical names, wire names, suffixes and short aliases.
func ParseKind(s string) (QuestionKind, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "_")
	switch v {
	case "multiple-choice", "multiple_choice", "mc", "tn", "trac_nghiem", "trac_nghiem_4_dap_an":
		return KindMultipleChoice, nil
	case "true-false-set", "true_false", "true-false", "tf", "ds", "dung_sai":
		return KindTrueFalseSet, nil
	case "short-answer", "short_answer", "sa", "tln", "tra_loi_ngan":
		return KindShortAnswer, nil
	case "essay", "tl", "tu_luan":
		return KindEssay, nil
	}
	return "", ValidationError(fmt.Sprintf("unknown question kind %q", s), nil)
}

// ImageDescriptor describes an illustration a question needs.
type ImageDescriptor struct {
	HasImage    bool   `json:"has_image"`
	SourceKind  string `json:"source_kind,omitempty"`
	Description string `json:"description,omitempty"`
}

// SourceDescribed marks an illustration that exists only as a description
// and may be drawn by an ImageGenerator.
const SourceDescribed = "tu_mo_ta"

// Drawable reports whether the illustration should be generated rather
// than copied from a source document.
func (d *ImageDescriptor) Drawable() bool {
	return d != nil && d.HasImage && d.SourceKind == SourceDescribed && strings.TrimSpace(d.Description) != ""
}

// Image is an encoded picture.
type Image struct {
	Data     []byte
	MIMEType string
}

// QuestionSet is the validated form of one AI response.
type QuestionSet struct {
	Kind        QuestionKind `json:"kind"`
	SubjectCode string       `json:"subject_code,omitempty"`
	TotalCount  int          `json:"total_count"`
	Questions   []Question   `json:"questions"`
}

// Question is immutable after validation.
type Question struct {
	Index         int              `json:"index"`
	DifficultyTag string           `json:"difficulty_tag"`
	HierarchyPath []string         `json:"hierarchy_path,omitempty"`
	Body          string           `json:"body"`
	BodyEN        string           `json:"body_en,omitempty"`
	Image         *ImageDescriptor `json:"image,omitempty"`
	Payload       Payload          `json:"payload"`
}

// MarshalJSON tags the payload with its variant name.
func (q Question) MarshalJSON() ([]byte, error) {
	type alias Question
	return json.Marshal(struct {
		alias
		PayloadKind string `json:"payload_kind"`
	}{alias(q), PayloadKind(q.Payload)})
}

// Payload is the kind-specific part of a question. The set of
// implementations is closed.
type Payload interface {
	payloadKind() string
}

// Choice is one option of a multiple-choice question.
type Choice struct {
	Label  string `json:"label"`
	Text   string `json:"text"`
	TextEN string `json:"text_en,omitempty"`
}

// MultipleChoice has a 1-based correct choice index.
type MultipleChoice struct {
	Choices       []Choice `json:"choices"`
	Correct       int      `json:"correct"`
	Explanation   string   `json:"explanation,omitempty"`
	ExplanationEN string   `json:"explanation_en,omitempty"`
}

// CorrectChoice returns the correct choice. It assumes a validated payload.
func (m MultipleChoice) CorrectChoice() Choice {
	return m.Choices[m.Correct-1]
}

// TrueFalseItem is one statement of a true/false set.
type TrueFalseItem struct {
	Label   string `json:"label"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// TrueFalseExplanation explains the verdict of one item.
type TrueFalseExplanation struct {
	Label    string `json:"label"`
	ItemText string `json:"item_text,omitempty"`
	Verdict  string `json:"verdict"`
	Detail   string `json:"detail,omitempty"`
}

// TrueFalseSet is a context passage followed by statements judged true or false.
type TrueFalseSet struct {
	Context      string                 `json:"context,omitempty"`
	Items        []TrueFalseItem        `json:"items"`
	AnswerBits   string                 `json:"answer_bits"`
	Explanations []TrueFalseExplanation `json:"explanations,omitempty"`
}

// ShortAnswer holds a single short result.
type ShortAnswer struct {
	Answer        string `json:"answer"`
	Explanation   string `json:"explanation,omitempty"`
	ExplanationEN string `json:"explanation_en,omitempty"`
}

// Essay holds a model solution or grading guide.
type Essay struct {
	ModelSolution   string `json:"model_solution"`
	ModelSolutionEN string `json:"model_solution_en,omitempty"`
}

// InvalidPayload keeps a question whose own fields failed validation so it
// can be rendered as a placeholder instead of being dropped.
type InvalidPayload struct {
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

func (MultipleChoice) payloadKind() string { return "multiple_choice" }
func (TrueFalseSet) payloadKind() string   { return "true_false_set" }
func (ShortAnswer) payloadKind() string    { return "short_answer" }
func (Essay) payloadKind() string          { return "essay" }
func (InvalidPayload) payloadKind() string { return "invalid" }

// PayloadKind names the payload variant, for logs and debug dumps.
func PayloadKind(p Payload) string {
	if p == nil {
		return "none"
	}
	return p.payloadKind()
}

// EquationObject is native Word math (OMML) produced from a LaTeX span.
type EquationObject struct {
	Source string
	OMML   string
}

// Task is one unit of work: documents plus a prompt for one question kind.
type Task struct {
	ID            string       `json:"id"`
	BatchName     string       `json:"batch_name"`
	OutputName    string       `json:"output_name"`
	DocumentPaths []string     `json:"document_paths"`
	Kind          QuestionKind `json:"kind"`
	PromptText    string       `json:"prompt_text"`
}

// TaskState tracks a task through the orchestrator.
type TaskState string

const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// Tier records which fail-safe tier produced the artifact.
type Tier int

const (
	TierRendered Tier = iota + 1
	TierRawDump
	TierMinimal
	TierNone
)

func (t Tier) String() string {
	switch t {
	case TierRendered:
		return "rendered"
	case TierRawDump:
		return "raw_dump"
	case TierMinimal:
		return "minimal"
	case TierNone:
		return "none"
	}
	return "unknown"
}

// TaskResult is produced exactly once per task.
type TaskResult struct {
	TaskID       string        `json:"task_id"`
	OutputName   string        `json:"output_name,omitempty"`
	Kind         QuestionKind  `json:"kind,omitempty"`
	ArtifactPath string        `json:"artifact_path,omitempty"`
	DebugPath    string        `json:"debug_path,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Tier         Tier          `json:"tier"`
	Cancelled    bool          `json:"cancelled,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Succeeded reports whether the task produced its primary artifact.
func (r TaskResult) Succeeded() bool {
	return r.ArtifactPath != "" && r.ErrorMessage == ""
}

// State maps the result onto the terminal task state.
func (r TaskResult) State() TaskState {
	if r.Succeeded() {
		return TaskSucceeded
	}
	return TaskFailed
}

// CancelledResult is the result of a task stopped before producing anything.
func CancelledResult(task Task) TaskResult {
	return TaskResult{
		TaskID:       task.ID,
		OutputName:   task.OutputName,
		Kind:         task.Kind,
		ErrorMessage: "cancelled",
		Tier:         TierNone,
		Cancelled:    true,
	}
}

// LogLine is one line of worker output. Finished marks the terminal sentinel.
type LogLine struct {
	TaskID   string    `json:"task_id"`
	Text     string    `json:"text,omitempty"`
	Finished bool      `json:"finished,omitempty"`
	Time     time.Time `json:"time"`
}

// ProgressEvent is what the supervisor reports to its caller.
type ProgressEvent struct {
	BatchID       string    `json:"batch_id"`
	TaskID        string    `json:"task_id,omitempty"`
	Message       string    `json:"message"`
	Percent       int       `json:"percent"`
	ArtifactPaths []string  `json:"artifact_paths,omitempty"`
	TaskDone      bool      `json:"task_done,omitempty"`
	Final         bool      `json:"final,omitempty"`
	Time          time.Time `json:"time"`
}

// Batch is a named group of tasks run by one supervisor call.
type Batch struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Tasks []Task `json:"tasks"`
}

// BatchReport summarizes a finished batch.
type BatchReport struct {
	BatchID       string        `json:"batch_id"`
	BatchName     string        `json:"batch_name"`
	Results       []TaskResult  `json:"results"`
	Succeeded     int           `json:"succeeded"`
	Failed        int           `json:"failed"`
	Cancelled     int           `json:"cancelled"`
	ArtifactPaths []string      `json:"artifact_paths"`
	Duration      time.Duration `json:"duration"`
}

// Document is a source file sent to the AI collaborator.
type Document struct {
	Name     string
	MIMEType string
	Data     []byte
}

// GenerateRequest is one call to the AI collaborator.
type GenerateRequest struct {
	Prompt          string
	Documents       []Document
	SchemaHint      map[string]any
	Model           string
	APIKey          string
	MaxOutputTokens int
	Temperature     float64
	TopP            float64
}
