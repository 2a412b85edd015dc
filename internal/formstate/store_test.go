package formstate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"chata-intake/internal/catalog"
	"chata-intake/internal/domain"
	"chata-intake/internal/drafts"
	"chata-intake/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

type testEnv struct {
	kv        *store.MemoryKV
	drafts    *drafts.Store
	debouncer *drafts.Debouncer
	store     *Store
}

func setupStore(t *testing.T) *testEnv {
	kv := store.NewMemoryKV()
	env := setupStoreOn(t, kv, time.Hour)
	env.kv = kv
	return env
}

func setupStoreOn(t *testing.T, kv store.KV, debounce time.Duration) *testEnv {
	ds := drafts.NewStore(kv, time.Hour, zap.NewNop())
	deb := drafts.NewDebouncer(ds, debounce, zap.NewNop())
	t.Cleanup(deb.Stop)

	s := New(catalog.Default(), ds, deb, zap.NewNop())
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("CHATA-%08d", n)
	}
	s.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return &testEnv{drafts: ds, debouncer: deb, store: s}
}

func clinician() domain.ClinicianInfo {
	age := 36
	return domain.ClinicianInfo{
		Name:           "Dr. Amara Okafor",
		Email:          "a.okafor@clinic.example",
		Clinic:         "Northside Child Development",
		ChildName:      "Sam",
		ChildAgeMonths: &age,
	}
}

func intPtr(v int) *int       { return &v }
func strPtr(s string) *string { return &s }

func TestNewChataID_Format(t *testing.T) {
	id := NewChataID()
	assert.Regexp(t, regexp.MustCompile(`^CHATA-[0-9A-F]{8}$`), id)
	assert.NotEqual(t, id, NewChataID())
}

func TestStart_ValidatesClinician(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()

	_, err := env.store.Start(ctx, domain.ClinicianInfo{Email: "x@y.z"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.store.Start(ctx, domain.ClinicianInfo{Name: "Dr X", Email: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	info := clinician()
	info.ChildAgeMonths = intPtr(-1)
	_, err = env.store.Start(ctx, info)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStart_CreatesAndPersistsDraft(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()

	st, err := env.store.Start(ctx, clinician())
	require.NoError(t, err)
	assert.Equal(t, "CHATA-00000001", st.ChataID)
	assert.Equal(t, domain.StatusDraft, st.Status)
	assert.Equal(t, 0, st.Progress)
	assert.Len(t, st.Assessments.SensoryProfile.Domains, 6)

	stored, err := env.drafts.Load(ctx, st.ChataID)
	require.NoError(t, err)
	assert.Equal(t, "a.okafor@clinic.example", stored.Clinician.Email)
}

func TestUpdateAssessment_RatingDerivesLabelAndProgress(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	st, err := env.store.Start(ctx, clinician())
	require.NoError(t, err)

	patch := AssessmentPatch{Type: domain.SensoryProfile, Domains: map[string]DomainPatch{}}
	for _, key := range catalog.Default().DomainKeys(domain.SensoryProfile) {
		patch.Domains[key] = DomainPatch{Value: intPtr(4), Observations: []string{"notes"}}
	}
	got, err := env.store.UpdateAssessment(ctx, st.ChataID, patch)
	require.NoError(t, err)

	assert.Equal(t, "Mildly hyper-responsive", got.Assessments.SensoryProfile.Domains["auditory"].Label)
	assert.Equal(t, 100, got.Assessments.SensoryProfile.Progress)
	assert.Equal(t, 20, got.Progress)
	assert.Equal(t, 1, env.debouncer.Pending())
}

func TestUpdateAssessment_ProgressNeverDecreases(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	st, err := env.store.Start(ctx, clinician())
	require.NoError(t, err)

	_, err = env.store.UpdateAssessment(ctx, st.ChataID, AssessmentPatch{
		Type:       domain.MilestoneTracker,
		Milestones: []MilestonePatch{{ID: "first_words", ActualAge: intPtr(14)}, {ID: "babbling", ActualAge: intPtr(7)}},
	})
	require.NoError(t, err)
	before, err := env.store.Progress(ctx, st.ChataID)
	require.NoError(t, err)
	require.Greater(t, before.Total, 0)

	got, err := env.store.UpdateAssessment(ctx, st.ChataID, AssessmentPatch{
		Type:       domain.MilestoneTracker,
		Milestones: []MilestonePatch{{ID: "first_words", Unplace: true}, {ID: "babbling", Unplace: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, before.Total, got.Progress)
	assert.Equal(t, before.Parts[3].Percent, got.Assessments.MilestoneTracker.Progress)
	assert.False(t, got.Assessments.MilestoneTracker.Milestones[2].Placed())
}

func TestUpdateAssessment_RejectedPatchLeavesStateUntouched(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	st, err := env.store.Start(ctx, clinician())
	require.NoError(t, err)

	_, err = env.store.UpdateAssessment(ctx, st.ChataID, AssessmentPatch{
		Type: domain.SocialCommunication,
		Domains: map[string]DomainPatch{
			"joint_attention": {Value: intPtr(2)},
			"play_skills":     {Value: intPtr(9)},
		},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	got, err := env.store.Get(ctx, st.ChataID)
	require.NoError(t, err)
	assert.Nil(t, got.Assessments.SocialCommunication.Domains["joint_attention"].Value)
	assert.Equal(t, 0, env.debouncer.Pending())
}

func TestUpdateAssessment_Validation(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	st, err := env.store.Start(ctx, clinician())
	require.NoError(t, err)

	cases := map[string]AssessmentPatch{
		"unknown type":        {Type: "iq_test"},
		"unknown domain":      {Type: domain.BehaviorInterests, Domains: map[string]DomainPatch{"nope": {Value: intPtr(1)}}},
		"value and unset":     {Type: domain.BehaviorInterests, Domains: map[string]DomainPatch{"sensory_seeking": {Value: intPtr(1), Unset: true}}},
		"wrong shape":         {Type: domain.SensoryProfile, Selected: []string{"ADOS-2"}},
		"negative age":        {Type: domain.MilestoneTracker, Milestones: []MilestonePatch{{ID: "babbling", ActualAge: intPtr(-3)}}},
		"unknown milestone":   {Type: domain.MilestoneTracker, Milestones: []MilestonePatch{{ID: "juggling", ActualAge: intPtr(3)}}},
		"remove standard":     {Type: domain.MilestoneTracker, Milestones: []MilestonePatch{{ID: "babbling", Remove: true}}},
		"entry not selected":  {Type: domain.AssessmentLog, Entries: map[string]LogEntryPatch{"ADOS-2": {Notes: strPtr("x")}}},
		"bad date":            {Type: domain.AssessmentLog, Selected: []string{"ADOS-2"}, Entries: map[string]LogEntryPatch{"ADOS-2": {Date: strPtr("03/01/2026")}}},
		"log with milestones": {Type: domain.AssessmentLog, Milestones: []MilestonePatch{{ID: "babbling"}}},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.store.UpdateAssessment(ctx, st.ChataID, p)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestUpdateAssessment_CustomMilestones(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	st, err := env.store.Start(ctx, clinician())
	require.NoError(t, err)
	standard := len(st.Assessments.MilestoneTracker.Milestones)

	got, err := env.store.UpdateAssessment(ctx, st.ChataID, AssessmentPatch{
		Type: domain.MilestoneTracker,
		Milestones: []MilestonePatch{
			{Name: "Rides tricycle", Category: "motor", ExpectedAge: intPtr(36), ActualAge: intPtr(40)},
			{Name: "Rides tricycle", ExpectedAge: intPtr(36)},
		},
	})
	require.NoError(t, err)
	ms := got.Assessments.MilestoneTracker.Milestones
	require.Len(t, ms, standard+2)
	assert.Equal(t, "custom_rides_tricycle", ms[standard].ID)
	assert.Equal(t, "custom_rides_tricycle_2", ms[standard+1].ID)
	assert.Equal(t, "custom", ms[standard+1].Category)

	got, err = env.store.UpdateAssessment(ctx, st.ChataID, AssessmentPatch{
		Type:       domain.MilestoneTracker,
		Milestones: []MilestonePatch{{ID: "custom_rides_tricycle_2", Remove: true}},
	})
	require.NoError(t, err)
	assert.Len(t, got.Assessments.MilestoneTracker.Milestones, standard+1)
}

func TestUpdateAssessment_Log(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	st, err := env.store.Start(ctx, clinician())
	require.NoError(t, err)

	got, err := env.store.UpdateAssessment(ctx, st.ChataID, AssessmentPatch{
		Type:     domain.AssessmentLog,
		Selected: []string{"ADOS-2", " SRS-2 ", "ADOS-2", ""},
		Entries: map[string]LogEntryPatch{
			"ADOS-2": {Date: strPtr("2026-02-20"), Notes: strPtr("Module 1, calibrated severity 7")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ADOS-2", "SRS-2"}, got.Assessments.AssessmentLog.Selected)
	assert.Equal(t, 50, got.Assessments.AssessmentLog.Progress)
	assert.Equal(t, 10, got.Progress)
}

func TestUpdateClinicianAndClinicalForm(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	st, err := env.store.Start(ctx, clinician())
	require.NoError(t, err)

	got, err := env.store.UpdateClinician(ctx, st.ChataID, ClinicianPatch{Phone: strPtr(" 555-0100 ")})
	require.NoError(t, err)
	assert.Equal(t, "555-0100", got.Clinician.Phone)
	assert.Equal(t, "Dr. Amara Okafor", got.Clinician.Name)

	_, err = env.store.UpdateClinician(ctx, st.ChataID, ClinicianPatch{Email: strPtr("")})
	assert.ErrorIs(t, err, domain.ErrValidation)

	got, err = env.store.UpdateClinicalForm(ctx, st.ChataID, ClinicalFormPatch{Strengths: strPtr("Strong visual memory")})
	require.NoError(t, err)
	assert.Equal(t, "Strong visual memory", got.ClinicalForm.Strengths)
}

func TestGet_UnknownSession(t *testing.T) {
	env := setupStore(t)
	_, err := env.store.Get(context.Background(), "CHATA-NOPE")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("requires id", func(t *testing.T) {
		env := setupStore(t)
		_, err := env.store.Restore(ctx, "  ")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("not found", func(t *testing.T) {
		env := setupStore(t)
		_, err := env.store.Restore(ctx, "CHATA-MISSING")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("mismatched identifier", func(t *testing.T) {
		env := setupStore(t)
		raw := `{"chata_id":"CHATA-OTHER","status":"draft"}`
		require.NoError(t, env.kv.Set(ctx, drafts.Key("CHATA-URL"), raw, 0))
		_, err := env.store.Restore(ctx, "CHATA-URL")
		assert.ErrorIs(t, err, ErrSessionMismatch)
	})

	t.Run("submitted drafts are not restored", func(t *testing.T) {
		env := setupStore(t)
		st, err := env.store.Start(ctx, clinician())
		require.NoError(t, err)
		_, err = env.store.MarkSubmitted(ctx, st.ChataID, time.Now())
		require.NoError(t, err)

		_, err = env.store.Restore(ctx, st.ChataID)
		assert.ErrorIs(t, err, ErrAlreadySubmitted)
	})

	t.Run("merges stored values over defaults", func(t *testing.T) {
		env := setupStore(t)
		stored := &domain.FormState{
			ChataID:   "CHATA-OLD",
			Status:    domain.StatusDraft,
			Clinician: clinician(),
			Progress:  30,
			Assessments: domain.Assessments{
				SensoryProfile: domain.RatedAssessment{
					Type: domain.SensoryProfile,
					Domains: map[string]domain.DomainRating{
						"tactile": {Value: intPtr(5)},
						"retired":  {Value: intPtr(2)},
					},
					Progress: 80,
				},
				MilestoneTracker: domain.MilestoneAssessment{
					Type: domain.MilestoneTracker,
					Milestones: []domain.Milestone{
						{ID: "first_words", Name: "First words", ActualAge: intPtr(18)},
						{ID: "custom_x", Name: "Stacks blocks", Custom: true},
					},
				},
			},
		}
		require.NoError(t, env.drafts.Save(ctx, stored))

		got, err := env.store.Restore(ctx, "CHATA-OLD")
		require.NoError(t, err)

		sp := got.Assessments.SensoryProfile
		assert.Len(t, sp.Domains, 6)
		assert.NotContains(t, sp.Domains, "retired")
		assert.Equal(t, 5, *sp.Domains["tactile"].Value)
		assert.Equal(t, "Hyper-responsive", sp.Domains["tactile"].Label)
		assert.Equal(t, 80, sp.Progress, "stored progress is kept")
		assert.Equal(t, 30, got.Progress)

		ms := got.Assessments.MilestoneTracker.Milestones
		assert.Len(t, ms, len(catalog.Default().Milestones)+1)
		assert.Equal(t, "custom_x", ms[len(ms)-1].ID)
		assert.NotNil(t, got.Assessments.AssessmentLog.Entries)
		assert.Equal(t, 1, env.store.Live())
	})

	t.Run("mutations revive drafts after restart", func(t *testing.T) {
		env := setupStore(t)
		st, err := env.store.Start(ctx, clinician())
		require.NoError(t, err)

		fresh := New(catalog.Default(), env.drafts, env.debouncer, zap.NewNop())
		got, err := fresh.UpdateClinicalForm(ctx, st.ChataID, ClinicalFormPatch{Recommendations: strPtr("Speech therapy")})
		require.NoError(t, err)
		assert.Equal(t, "Speech therapy", got.ClinicalForm.Recommendations)
	})
}

func TestMarkSubmitted_LocksRecord(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	st, err := env.store.Start(ctx, clinician())
	require.NoError(t, err)

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	got, err := env.store.MarkSubmitted(ctx, st.ChataID, at)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitted, got.Status)
	assert.Equal(t, at, *got.SubmittedAt)
	assert.Equal(t, 0, env.store.Live())

	_, err = env.store.UpdateClinicalForm(ctx, st.ChataID, ClinicalFormPatch{Strengths: strPtr("x")})
	assert.ErrorIs(t, err, domain.ErrSubmitted)

	_, err = env.store.MarkSubmitted(ctx, st.ChataID, at)
	assert.ErrorIs(t, err, domain.ErrSubmitted)
}

func TestClear(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	st, err := env.store.Start(ctx, clinician())
	require.NoError(t, err)
	_, err = env.store.UpdateClinicalForm(ctx, st.ChataID, ClinicalFormPatch{Strengths: strPtr("x")})
	require.NoError(t, err)

	require.NoError(t, env.store.Clear(ctx, st.ChataID))
	assert.Equal(t, 0, env.debouncer.Pending())
	_, err = env.store.Get(ctx, st.ChataID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFlush_WritesLatestSnapshot(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	st, err := env.store.Start(ctx, clinician())
	require.NoError(t, err)

	_, err = env.store.UpdateClinicalForm(ctx, st.ChataID, ClinicalFormPatch{PriorityAreas: strPtr("Communication")})
	require.NoError(t, err)

	stored, err := env.drafts.Load(ctx, st.ChataID)
	require.NoError(t, err)
	assert.Empty(t, stored.ClinicalForm.PriorityAreas, "debounced write not yet due")

	env.store.Flush(ctx)
	stored, err = env.drafts.Load(ctx, st.ChataID)
	require.NoError(t, err)
	assert.Equal(t, "Communication", stored.ClinicalForm.PriorityAreas)
}

func TestClear_UnknownSession(t *testing.T) {
	env := setupStore(t)
	err := env.store.Clear(context.Background(), "CHATA-MISSING")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClear_SubmittedRecordIsRemoved(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	st, err := env.store.Start(ctx, clinician())
	require.NoError(t, err)
	_, err = env.store.MarkSubmitted(ctx, st.ChataID, time.Now())
	require.NoError(t, err)

	require.NoError(t, env.store.Clear(ctx, st.ChataID))
	_, err = env.drafts.Load(ctx, st.ChataID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBeginSubmit_FreezesSession(t *testing.T) {
	env := setupStore(t)
	ctx := context.Background()
	st, err := env.store.Start(ctx, clinician())
	require.NoError(t, err)

	frozen, err := env.store.BeginSubmit(ctx, st.ChataID)
	require.NoError(t, err)
	assert.Equal(t, st.ChataID, frozen.ChataID)

	_, err = env.store.BeginSubmit(ctx, st.ChataID)
	assert.ErrorIs(t, err, ErrSubmitInProgress)
	_, err = env.store.UpdateClinicalForm(ctx, st.ChataID, ClinicalFormPatch{Strengths: strPtr("late")})
	assert.ErrorIs(t, err, ErrSubmitInProgress)
	assert.ErrorIs(t, env.store.Clear(ctx, st.ChataID), ErrSubmitInProgress)

	restored, err := env.store.Restore(ctx, st.ChataID)
	require.NoError(t, err, "reading a frozen session is allowed")
	assert.True(t, restored.IsDraft())

	env.store.AbortSubmit(st.ChataID)
	got, err := env.store.UpdateClinicalForm(ctx, st.ChataID, ClinicalFormPatch{Strengths: strPtr("after retry")})
	require.NoError(t, err)
	assert.Equal(t, "after retry", got.ClinicalForm.Strengths)

	_, err = env.store.BeginSubmit(ctx, st.ChataID)
	require.NoError(t, err)
	_, err = env.store.MarkSubmitted(ctx, st.ChataID, time.Now())
	require.NoError(t, err)
	_, err = env.store.BeginSubmit(ctx, st.ChataID)
	assert.ErrorIs(t, err, domain.ErrSubmitted)
}

// slowDraftKV delays writes of editable drafts so a debounced write is
// still running when the lifecycle operation starts
type slowDraftKV struct {
	*store.MemoryKV
	delay time.Duration
}

func (k *slowDraftKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if strings.Contains(value, `"status":"draft"`) {
		time.Sleep(k.delay)
	}
	return k.MemoryKV.Set(ctx, key, value, ttl)
}

func TestMarkSubmitted_InFlightDraftWriteCannotReviveRecord(t *testing.T) {
	defer goleak.VerifyNone(t)

	kv := &slowDraftKV{MemoryKV: store.NewMemoryKV(), delay: 200 * time.Millisecond}
	env := setupStoreOn(t, kv, time.Millisecond)
	ctx := context.Background()

	st, err := env.store.Start(ctx, clinician())
	require.NoError(t, err)
	_, err = env.store.UpdateClinicalForm(ctx, st.ChataID, ClinicalFormPatch{Strengths: strPtr("Curious")})
	require.NoError(t, err)

	// the debounced write is now sleeping inside the backend
	time.Sleep(30 * time.Millisecond)
	_, err = env.store.MarkSubmitted(ctx, st.ChataID, time.Now())
	require.NoError(t, err)
	time.Sleep(300 * time.Millisecond)

	stored, err := env.drafts.Load(ctx, st.ChataID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSubmitted, stored.Status)

	fresh := New(catalog.Default(), env.drafts, env.debouncer, zap.NewNop())
	_, err = fresh.Restore(ctx, st.ChataID)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)

	env.debouncer.Stop()
}

func TestClear_InFlightDraftWriteCannotReviveDraft(t *testing.T) {
	defer goleak.VerifyNone(t)

	kv := &slowDraftKV{MemoryKV: store.NewMemoryKV(), delay: 200 * time.Millisecond}
	env := setupStoreOn(t, kv, time.Millisecond)
	ctx := context.Background()

	st, err := env.store.Start(ctx, clinician())
	require.NoError(t, err)
	_, err = env.store.UpdateClinicalForm(ctx, st.ChataID, ClinicalFormPatch{Strengths: strPtr("Curious")})
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, env.store.Clear(ctx, st.ChataID))
	time.Sleep(300 * time.Millisecond)

	_, err = env.drafts.Load(ctx, st.ChataID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	env.debouncer.Stop()
}

func TestStore_ConcurrentEditsAndFlush(t *testing.T) {
	defer goleak.VerifyNone(t)

	env := setupStoreOn(t, store.NewMemoryKV(), time.Millisecond)
	ctx := context.Background()
	st, err := env.store.Start(ctx, clinician())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_, _ = env.store.UpdateClinicalForm(ctx, st.ChataID, ClinicalFormPatch{Strengths: strPtr(fmt.Sprintf("edit %d", i))})
		}
	}()
	for i := 0; i < 10; i++ {
		env.store.Flush(ctx)
	}
	<-done
	env.store.Flush(ctx)
	env.debouncer.Stop()

	stored, err := env.drafts.Load(ctx, st.ChataID)
	require.NoError(t, err)
	assert.Equal(t, "edit 49", stored.ClinicalForm.Strengths)
}
