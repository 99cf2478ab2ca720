package effector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	beadsLib "github.com/steveyegge/beads"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/steveyegge/triage/internal/cache"
	"github.com/steveyegge/triage/internal/deduplication"
	"github.com/steveyegge/triage/internal/triage"
	"github.com/steveyegge/triage/internal/types"
)

func init() {
	color.NoColor = true
}

func testItem() *types.Item {
	return &types.Item{
		Number: 12,
		Repo:   "acme/app",
		Title:  "Crash when saving",
		Body:   "panic: nil map",
		URL:    "https://github.com/acme/app/issues/12",
		State:  types.StateOpen,
		Labels: []string{"bug"},
	}
}

func rulesOutcome(item *types.Item, priority int, labels ...string) *triage.Outcome {
	action := types.NewTriageAction(priority, labels, "Crash with reproduction", types.SourceRules)
	return &triage.Outcome{
		RunID:     "run-1",
		Item:      item,
		Hash:      cache.HashItem(item),
		State:     triage.StateTerminal,
		Facts:     &types.FactSet{Summary: "Fix crash on save", IssueType: types.TypeBug},
		Verdict:   deduplication.NoMatch(0, "no candidate matched"),
		Action:    &action,
		RuleName:  "crash",
		StartedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Duration:  time.Second,
	}
}

func duplicateOutcome(item *types.Item, status deduplication.Status) *triage.Outcome {
	id := 7
	v := &deduplication.Verdict{Status: status, MatchedItemID: &id, Confidence: 0.93, Reasoning: "same stack trace"}
	action, _ := triage.DuplicateAction(v)
	out := rulesOutcome(item, 0)
	out.Verdict = v
	out.Action = &action
	out.RuleName = ""
	return out
}

func TestComment(t *testing.T) {
	item := testItem()

	dup := Comment(duplicateOutcome(item, deduplication.StatusDuplicateOpen))
	assert.Contains(t, dup, "duplicate of #7 (confidence 93%)")
	assert.Contains(t, dup, "> same stack trace")
	assert.Contains(t, dup, CommentMarker)

	prior := Comment(duplicateOutcome(item, deduplication.StatusPriorArtClosed))
	assert.Contains(t, prior, "closed issue, #7")

	possible := rulesOutcome(item, 3, "bug")
	possible.Verdict.Possible = &deduplication.PossibleMatch{ItemID: 4, State: types.StateOpen, Confidence: 0.75}
	assert.Contains(t, Comment(possible), "Possible duplicate of #4 (open, confidence 75%)")

	assert.Empty(t, Comment(rulesOutcome(item, 3, "bug")))

	failed := &triage.Outcome{State: triage.StateFailed, Reason: "extraction"}
	assert.Empty(t, Comment(failed))
	assert.Empty(t, Comment(nil))
}

type failingEffector struct{ err error }

func (f failingEffector) Apply(ctx context.Context, item *types.Item, out *triage.Outcome) error {
	return f.err
}

type countingEffector struct{ n int }

func (c *countingEffector) Apply(ctx context.Context, item *types.Item, out *triage.Outcome) error {
	c.n++
	return nil
}

func TestMultiRunsAllAndJoinsErrors(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	counter := &countingEffector{}
	m := Multi{failingEffector{errA}, nil, counter, failingEffector{errB}}

	err := m.Apply(context.Background(), testItem(), rulesOutcome(testItem(), 3))
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, 1, counter.n)

	assert.NoError(t, Multi{counter}.Apply(context.Background(), testItem(), rulesOutcome(testItem(), 3)))
}

func TestDryRun(t *testing.T) {
	var buf bytes.Buffer
	d := NewDryRun(&buf)
	item := testItem()

	require.NoError(t, d.Apply(context.Background(), item, rulesOutcome(item, 5, "critical", "bug")))
	out := buf.String()
	assert.Contains(t, out, "acme/app#12 Crash when saving")
	assert.Contains(t, out, "P5")
	assert.Contains(t, out, "labels: bug, critical")
	assert.Contains(t, out, "rule: crash")

	buf.Reset()
	require.NoError(t, d.Apply(context.Background(), item, duplicateOutcome(item, deduplication.StatusDuplicateOpen)))
	assert.Contains(t, buf.String(), "would comment:")
	assert.Contains(t, buf.String(), "dup")
	assert.NotContains(t, buf.String(), "P-1")
	assert.NotContains(t, buf.String(), CommentMarker)

	buf.Reset()
	require.NoError(t, d.Apply(context.Background(), item, &triage.Outcome{State: triage.StateFailed, Reason: "extraction failed"}))
	assert.Contains(t, buf.String(), "FAILED extraction failed")
}

type fakeIssueWriter struct {
	labels   []string
	comments []string
	err      error
}

func (f *fakeIssueWriter) ApplyLabels(ctx context.Context, repo string, number int, labels []string) error {
	f.labels = append(f.labels, labels...)
	return f.err
}

func (f *fakeIssueWriter) PostComment(ctx context.Context, repo string, number int, body string) error {
	f.comments = append(f.comments, body)
	return f.err
}

func TestGitHubEffector(t *testing.T) {
	item := testItem()

	w := &fakeIssueWriter{}
	require.NoError(t, NewGitHub(w).Apply(context.Background(), item, rulesOutcome(item, 5, "bug", "critical")))
	assert.Equal(t, []string{"critical"}, w.labels, "existing labels are not re-sent")
	assert.Empty(t, w.comments)

	w = &fakeIssueWriter{}
	require.NoError(t, NewGitHub(w).Apply(context.Background(), item, duplicateOutcome(item, deduplication.StatusDuplicateOpen)))
	assert.Equal(t, []string{types.LabelDuplicate}, w.labels)
	require.Len(t, w.comments, 1)
	assert.Contains(t, w.comments[0], "#7")

	w = &fakeIssueWriter{}
	local := &types.Item{Title: "from a file"}
	require.NoError(t, NewGitHub(w).Apply(context.Background(), local, rulesOutcome(local, 3, "bug")))
	assert.Empty(t, w.labels)

	w = &fakeIssueWriter{err: errors.New("403")}
	err := NewGitHub(w).Apply(context.Background(), item, duplicateOutcome(item, deduplication.StatusDuplicateOpen))
	assert.ErrorContains(t, err, "acme/app#12")
}

type fakeBeadsStore struct {
	issues []*beadsLib.Issue
	labels map[string][]string
	closed bool
}

func (f *fakeBeadsStore) CreateIssue(ctx context.Context, issue *beadsLib.Issue, actor string) error {
	issue.ID = "triage-1"
	f.issues = append(f.issues, issue)
	return nil
}

func (f *fakeBeadsStore) AddLabel(ctx context.Context, issueID, label, actor string) error {
	if f.labels == nil {
		f.labels = map[string][]string{}
	}
	f.labels[issueID] = append(f.labels[issueID], label)
	return nil
}

func (f *fakeBeadsStore) Close() error {
	f.closed = true
	return nil
}

func TestBeadsPriority(t *testing.T) {
	for score, want := range map[int]int{-1: 4, 0: 4, 1: 4, 2: 3, 3: 2, 4: 1, 5: 0, 6: 0, 10: 0} {
		assert.Equal(t, want, BeadsPriority(score), "score %d", score)
	}
}

func TestBeadsEffector(t *testing.T) {
	item := testItem()
	store := &fakeBeadsStore{}
	b := NewBeads(store)

	require.NoError(t, b.Apply(context.Background(), item, rulesOutcome(item, 5, "bug", "critical")))
	require.Len(t, store.issues, 1)
	issue := store.issues[0]
	assert.Equal(t, "acme/app#12: Crash when saving", issue.Title)
	assert.Equal(t, 0, issue.Priority)
	assert.Equal(t, beadsLib.IssueType("bug"), issue.IssueType)
	assert.Contains(t, issue.Description, "Fix crash on save")
	assert.Contains(t, issue.Description, item.URL)
	assert.Equal(t, []string{"bug", "critical"}, store.labels["triage-1"])

	cached := rulesOutcome(item, 5, "bug")
	cached.CacheHit = true
	require.NoError(t, b.Apply(context.Background(), item, cached))
	assert.Len(t, store.issues, 1, "cache hits are not filed again")

	require.NoError(t, b.Apply(context.Background(), item, duplicateOutcome(item, deduplication.StatusDuplicateOpen)))
	require.Len(t, store.issues, 2)
	assert.Equal(t, 4, store.issues[1].Priority, "duplicates are least urgent")

	require.NoError(t, b.Close())
	assert.True(t, store.closed)
}

type fakeProducer struct {
	records []*kgo.Record
	err     error
	closed  bool
}

func (f *fakeProducer) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var res kgo.ProduceResults
	for _, r := range rs {
		f.records = append(f.records, r)
		res = append(res, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return res
}

func (f *fakeProducer) Close() { f.closed = true }

func TestKafkaEffector(t *testing.T) {
	item := testItem()
	out := duplicateOutcome(item, deduplication.StatusDuplicateOpen)
	p := &fakeProducer{}
	k := NewKafkaWithProducer(p, "")

	require.NoError(t, k.Apply(context.Background(), item, out))
	require.Len(t, p.records, 1)
	rec := p.records[0]
	assert.Equal(t, DefaultDecisionTopic, rec.Topic)
	assert.Equal(t, out.Hash.String(), string(rec.Key))

	var decoded DecisionRecord
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, "acme/app#12", decoded.Item)
	assert.Equal(t, triage.StateTerminal, decoded.State)
	assert.Equal(t, types.SourceDuplicate, decoded.Action.Source)
	require.NotNil(t, decoded.Verdict)
	assert.Equal(t, deduplication.StatusDuplicateOpen, decoded.Verdict.Status)
	assert.True(t, time.Date(2024, 5, 1, 10, 0, 1, 0, time.UTC).Equal(decoded.Time), "time %v", decoded.Time)

	p.err = errors.New("broker down")
	assert.Error(t, k.Apply(context.Background(), item, out))

	require.NoError(t, k.Close())
	assert.True(t, p.closed)
	assert.Error(t, k.Apply(context.Background(), item, out))
}

func TestKafkaPublishesFailedOutcome(t *testing.T) {
	item := testItem()
	out := &triage.Outcome{
		RunID:     "run-2",
		Item:      item,
		State:     triage.StateFailed,
		Reason:    "extraction: model returned malformed JSON",
		StartedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Duration:  3 * time.Second,
	}
	p := &fakeProducer{}
	k := NewKafkaWithProducer(p, "decisions")

	require.NoError(t, k.Apply(context.Background(), item, out))
	require.Len(t, p.records, 1)

	var decoded DecisionRecord
	require.NoError(t, json.Unmarshal(p.records[0].Value, &decoded))
	assert.Equal(t, triage.StateFailed, decoded.State)
	assert.Nil(t, decoded.Action)
	assert.Contains(t, decoded.Reason, "extraction")
	assert.True(t, time.Date(2024, 5, 1, 10, 0, 3, 0, time.UTC).Equal(decoded.Time), "time %v", decoded.Time)
}

func TestNewKafkaRequiresBrokers(t *testing.T) {
	_, err := NewKafka(nil, "t")
	assert.Error(t, err)
}
