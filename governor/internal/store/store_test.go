package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sm36384/Phoenix/dbopen"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(dbopen.OpenMemory(t, dbopen.WithSchema(Schema)))
	var clock int64 = 1_700_000_000_000
	s.now = func() int64 { clock += 1000; return clock }
	return s
}

func TestSourceLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertSource(ctx, &Source{ID: "jobstreet", DisplayName: "JobStreet", Region: "singapore"}))

	got, err := s.GetSource(ctx, "jobstreet")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusOK, got.Status)
	assert.Zero(t, got.LastHealAt)

	require.NoError(t, s.SetSourceStatus(ctx, "jobstreet", StatusHealing, 0))
	require.NoError(t, s.SetSourceStatus(ctx, "jobstreet", StatusHealed, 42))
	got, _ = s.GetSource(ctx, "jobstreet")
	assert.Equal(t, StatusHealed, got.Status)
	assert.Equal(t, int64(42), got.LastHealAt)

	// Re-provisioning keeps the status.
	require.NoError(t, s.UpsertSource(ctx, &Source{ID: "jobstreet", DisplayName: "JobStreet SG", Region: "singapore"}))
	got, _ = s.GetSource(ctx, "jobstreet")
	assert.Equal(t, StatusHealed, got.Status)
	assert.Equal(t, "JobStreet SG", got.DisplayName)

	// healed -> ok on the next successful scrape; last_heal_at survives.
	require.NoError(t, s.MarkScraped(ctx, "jobstreet"))
	got, _ = s.GetSource(ctx, "jobstreet")
	assert.Equal(t, StatusOK, got.Status)
	assert.NotZero(t, got.LastScrapedAt)
	assert.Equal(t, int64(42), got.LastHealAt)
}

func TestMarkScraped_KeepsHealing(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetSourceStatus(ctx, "bayt", StatusHealing, 0))
	require.NoError(t, s.MarkScraped(ctx, "bayt"))

	got, _ := s.GetSource(ctx, "bayt")
	assert.Equal(t, StatusHealing, got.Status)
}

func TestGetSource_Unknown(t *testing.T) {
	s := testStore(t)
	got, err := s.GetSource(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSelectors_SeedAndCommitHeal(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.SeedSelector(ctx, "jobstreet", "title", ".job-title"))
	require.NoError(t, s.CommitHeal(ctx, "jobstreet", "title", ".job-title-v2", ".job-title"))

	sel, err := s.GetSelector(ctx, "jobstreet", "title")
	require.NoError(t, err)
	assert.Equal(t, ".job-title-v2", sel.Value)
	assert.Equal(t, ".job-title", sel.Previous)
	assert.NotZero(t, sel.LastVerifiedAt)

	// Seeding again never overwrites a healed selector.
	require.NoError(t, s.SeedSelector(ctx, "jobstreet", "title", ".job-title"))
	sel, _ = s.GetSelector(ctx, "jobstreet", "title")
	assert.Equal(t, ".job-title-v2", sel.Value)

	// Second heal: previous is the value active right before it.
	require.NoError(t, s.CommitHeal(ctx, "jobstreet", "title", "h1.title", ".job-title-v2"))
	sel, _ = s.GetSelector(ctx, "jobstreet", "title")
	assert.Equal(t, "h1.title", sel.Value)
	assert.Equal(t, ".job-title-v2", sel.Previous)
}

func TestCommitHeal_NewField(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.CommitHeal(ctx, "bayt", "salary", ".pay", `[data-field="salary"]`))

	sel, _ := s.GetSelector(ctx, "bayt", "salary")
	require.NotNil(t, sel)
	assert.Equal(t, `[data-field="salary"]`, sel.Previous)
}

func TestSelectorsFor_Fallback(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.SeedSelector(ctx, "jobstreet", "title", ".job-title"))

	got, err := s.SelectorsFor(ctx, "jobstreet", []string{"title", "company"})
	require.NoError(t, err)
	assert.Equal(t, ".job-title", got["title"])
	assert.Equal(t, `[data-field="company"]`, got["company"])

	list, err := s.ListSelectors(ctx, "jobstreet")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestHealEvents(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertHealEvent(ctx, &HealEvent{ID: "heal_1", SourceID: "jobstreet", FieldName: "title",
		TriggerReason: "selector_not_found", SelectorBefore: ".job-title", Method: "text", RawError: "verification failed"}))
	require.NoError(t, s.InsertHealEvent(ctx, &HealEvent{ID: "heal_2", SourceID: "jobstreet", FieldName: "title",
		TriggerReason: "selector_not_found", SelectorBefore: ".job-title", SelectorAfter: ".job-title-v2", Success: true, Method: "text"}))
	require.NoError(t, s.InsertHealEvent(ctx, &HealEvent{ID: "heal_3", SourceID: "bayt", FieldName: "company",
		TriggerReason: "null_field", Method: "vision"}))

	events, err := s.ListHealEvents(ctx, "jobstreet", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "heal_2", events[0].ID)
	assert.True(t, events[0].Success)
	assert.False(t, events[1].Success)

	all, err := s.ListHealEvents(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSessions(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, &Session{HubID: "singapore", SourceID: "jobstreet", CookiesEncrypted: "abc", UserAgent: "UA1", ExpiresAt: 1}))
	require.NoError(t, s.SaveSession(ctx, &Session{HubID: "singapore", SourceID: "jobstreet", CookiesEncrypted: "def", UserAgent: "UA2", ExpiresAt: 9_999_999_999_999}))

	got, err := s.GetSession(ctx, "singapore", "jobstreet")
	require.NoError(t, err)
	assert.Equal(t, "def", got.CookiesEncrypted)
	assert.Equal(t, "UA2", got.UserAgent)

	missing, err := s.GetSession(ctx, "dubai", "jobstreet")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.SaveSession(ctx, &Session{HubID: "dubai", SourceID: "bayt", CookiesEncrypted: "x", ExpiresAt: 1}))
	n, err := s.DeleteExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestEnrichmentCache(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, ok, err := s.CacheGet(ctx, "jane doe|acme")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.CachePut(ctx, "jane doe|acme", "https://linkedin.com/in/jane", "proxycurl"))
	require.NoError(t, s.CachePut(ctx, "jane doe|acme", "https://linkedin.com/in/jane-doe", "phantombuster"))

	v, ok, err := s.CacheGet(ctx, "jane doe|acme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://linkedin.com/in/jane-doe", v)
}
