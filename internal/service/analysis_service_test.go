package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodnudes/FoodNudesBot/internal/models"
)

type fakeVision struct {
	dish           string
	critique       string
	detectErr      error
	critiqueErr    error
	detectCalls    int
	critiqueCalls  int
	critiqueImages [][]byte
	onDetect       func()
}

func (f *fakeVision) DetectDish(ctx context.Context, image []byte) (string, error) {
	f.detectCalls++
	if f.onDetect != nil {
		f.onDetect()
	}
	return f.dish, f.detectErr
}

func (f *fakeVision) Critique(ctx context.Context, dish string, image []byte) (string, error) {
	f.critiqueCalls++
	f.critiqueImages = append(f.critiqueImages, image)
	return f.critique, f.critiqueErr
}

type loggedMeal struct {
	userID   int64
	dish     string
	pool     models.CreditPool
	photoURL string
}

type fakeMealLog struct {
	meals []loggedMeal
}

func (f *fakeMealLog) Log(ctx context.Context, userID int64, dish string, pool models.CreditPool, photoURL string) error {
	f.meals = append(f.meals, loggedMeal{userID, dish, pool, photoURL})
	return nil
}

func newAnalysisFixture(store *fakeAccountStore, vis *fakeVision) (*AnalysisService, *fakeMealLog) {
	meals := &fakeMealLog{}
	ledger := NewLedgerService(store, testLogger(), false)
	return NewAnalysisService(vis, ledger, meals, testLogger(), time.Second), meals
}

func TestSubmitPhotoDebitsOnceAndLogsMeal(t *testing.T) {
	store := &fakeAccountStore{free: 3}
	vis := &fakeVision{dish: "Борщ", critique: "Свекла тебя не спасёт."}
	svc, meals := newAnalysisFixture(store, vis)

	result, err := svc.SubmitPhoto(context.Background(), 1, []byte("photo"), "https://cdn/photo.jpg")
	require.NoError(t, err)

	assert.Equal(t, "Борщ", result.Dish)
	assert.Equal(t, "Свекла тебя не спасёт.", result.Critique)
	assert.Equal(t, 2, result.Free)
	assert.Equal(t, 1, store.used)
	assert.Equal(t, StateAwaitingConfirmation, svc.ActiveState(1))

	require.Len(t, meals.meals, 1)
	assert.Equal(t, loggedMeal{1, "Борщ", models.PoolFree, "https://cdn/photo.jpg"}, meals.meals[0])

	// The critique sees the photo, not just the detected label.
	require.Len(t, vis.critiqueImages, 1)
	assert.Equal(t, []byte("photo"), vis.critiqueImages[0])
}

func TestSubmitPhotoUsesPaidPoolWhenFreeEmpty(t *testing.T) {
	store := &fakeAccountStore{free: 0, paid: 2}
	vis := &fakeVision{dish: "Пицца", critique: "Классика самообмана."}
	svc, meals := newAnalysisFixture(store, vis)

	result, err := svc.SubmitPhoto(context.Background(), 1, []byte("photo"), "")
	require.NoError(t, err)

	assert.Equal(t, 0, result.Free)
	assert.Equal(t, 1, result.Paid)
	require.Len(t, meals.meals, 1)
	assert.Equal(t, models.PoolPaid, meals.meals[0].pool)
}

func TestSubmitPhotoInsufficientCreditsSkipsVision(t *testing.T) {
	store := &fakeAccountStore{}
	vis := &fakeVision{dish: "Борщ", critique: "..."}
	svc, _ := newAnalysisFixture(store, vis)

	_, err := svc.SubmitPhoto(context.Background(), 1, []byte("photo"), "")
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Equal(t, 0, vis.detectCalls)
	assert.Equal(t, StateIdle, svc.ActiveState(1))
}

func TestSubmitPhotoDetectFailureCostsNothing(t *testing.T) {
	store := &fakeAccountStore{free: 3}
	vis := &fakeVision{detectErr: errors.New("vision down")}
	svc, meals := newAnalysisFixture(store, vis)

	_, err := svc.SubmitPhoto(context.Background(), 1, []byte("photo"), "")
	require.Error(t, err)

	assert.Equal(t, 3, store.free)
	assert.Equal(t, 0, store.used)
	assert.Empty(t, meals.meals)
	assert.Equal(t, StateIdle, svc.ActiveState(1))
}

func TestSubmitPhotoCritiqueFailureCostsNothing(t *testing.T) {
	store := &fakeAccountStore{free: 3}
	vis := &fakeVision{dish: "Борщ", critiqueErr: errors.New("vision down")}
	svc, meals := newAnalysisFixture(store, vis)

	_, err := svc.SubmitPhoto(context.Background(), 1, []byte("photo"), "")
	require.Error(t, err)

	assert.Equal(t, 3, store.free)
	assert.Equal(t, 0, store.used)
	assert.Empty(t, meals.meals)
}

func TestRenameNeverRebills(t *testing.T) {
	store := &fakeAccountStore{free: 5}
	vis := &fakeVision{dish: "Салат", critique: "Трава как трава."}
	svc, _ := newAnalysisFixture(store, vis)
	ctx := context.Background()

	_, err := svc.SubmitPhoto(ctx, 1, []byte("photo"), "")
	require.NoError(t, err)
	assert.Equal(t, 4, store.free)

	require.NoError(t, svc.BeginRename(1))
	assert.Equal(t, StateRenaming, svc.ActiveState(1))

	vis.critique = "Оливье — это майонез с гарниром."
	result, err := svc.SubmitRename(ctx, 1, "Оливье")
	require.NoError(t, err)

	assert.Equal(t, "Оливье", result.Dish)
	assert.Equal(t, 4, result.Free)
	assert.Equal(t, 4, store.free)
	assert.Equal(t, 1, store.used)

	// Renames stay free no matter how many times the user disagrees.
	require.NoError(t, svc.BeginRename(1))
	_, err = svc.SubmitRename(ctx, 1, "Винегрет")
	require.NoError(t, err)
	assert.Equal(t, 4, store.free)
	assert.Equal(t, 1, store.used)
	assert.Equal(t, 3, vis.critiqueCalls)

	// Every critique, renames included, re-sends the stored photo.
	require.Len(t, vis.critiqueImages, 3)
	for _, img := range vis.critiqueImages {
		assert.Equal(t, []byte("photo"), img)
	}
}

func TestRenameCritiqueFailureEndsSession(t *testing.T) {
	store := &fakeAccountStore{free: 5}
	vis := &fakeVision{dish: "Салат", critique: "Трава как трава."}
	svc, _ := newAnalysisFixture(store, vis)
	ctx := context.Background()

	_, err := svc.SubmitPhoto(ctx, 1, []byte("photo"), "")
	require.NoError(t, err)
	require.NoError(t, svc.BeginRename(1))

	vis.critiqueErr = errors.New("vision down")
	_, err = svc.SubmitRename(ctx, 1, "Оливье")
	require.Error(t, err)

	// The session is gone, not wedged mid-critique; the spent credit stays spent.
	assert.Equal(t, StateIdle, svc.ActiveState(1))
	assert.Equal(t, 4, store.free)
	assert.Equal(t, 1, store.used)

	_, err = svc.SubmitRename(ctx, 1, "Винегрет")
	assert.ErrorIs(t, err, ErrNoActiveSession)
	_, err = svc.Confirm(1)
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestSubmitRenameValidation(t *testing.T) {
	store := &fakeAccountStore{free: 5}
	vis := &fakeVision{dish: "Салат", critique: "..."}
	svc, _ := newAnalysisFixture(store, vis)
	ctx := context.Background()

	_, err := svc.SubmitRename(ctx, 1, "Борщ")
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, err = svc.SubmitPhoto(ctx, 1, []byte("photo"), "")
	require.NoError(t, err)
	require.NoError(t, svc.BeginRename(1))

	_, err = svc.SubmitRename(ctx, 1, "   ")
	assert.ErrorIs(t, err, ErrEmptyDishName)
}

func TestConfirmClosesSession(t *testing.T) {
	store := &fakeAccountStore{free: 5}
	vis := &fakeVision{dish: "Борщ", critique: "..."}
	svc, _ := newAnalysisFixture(store, vis)

	_, err := svc.Confirm(1)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, err = svc.SubmitPhoto(context.Background(), 1, []byte("photo"), "")
	require.NoError(t, err)

	sess, err := svc.Confirm(1)
	require.NoError(t, err)
	assert.Equal(t, "Борщ", sess.Dish)
	assert.Equal(t, StateIdle, svc.ActiveState(1))
}

func TestNewPhotoSupersedesInFlightAnalysis(t *testing.T) {
	store := &fakeAccountStore{free: 5}
	vis := &fakeVision{dish: "Борщ", critique: "..."}
	svc, meals := newAnalysisFixture(store, vis)
	ctx := context.Background()

	// A second photo arrives while the first is still at the vision stage.
	vis.onDetect = func() {
		vis.onDetect = nil
		_, err := svc.SubmitPhoto(ctx, 1, []byte("photo-2"), "")
		require.NoError(t, err)
	}

	_, err := svc.SubmitPhoto(ctx, 1, []byte("photo-1"), "")
	assert.ErrorIs(t, err, ErrSessionSuperseded)

	// Only the replacement analysis was billed and logged.
	assert.Equal(t, 4, store.free)
	assert.Equal(t, 1, store.used)
	assert.Len(t, meals.meals, 1)
	assert.Equal(t, StateAwaitingConfirmation, svc.ActiveState(1))
}

func TestSessionsAreIndependentPerUser(t *testing.T) {
	store := &fakeAccountStore{free: 5}
	vis := &fakeVision{dish: "Борщ", critique: "..."}
	svc, _ := newAnalysisFixture(store, vis)
	ctx := context.Background()

	_, err := svc.SubmitPhoto(ctx, 1, []byte("photo"), "")
	require.NoError(t, err)
	_, err = svc.SubmitPhoto(ctx, 2, []byte("photo"), "")
	require.NoError(t, err)

	assert.Equal(t, StateAwaitingConfirmation, svc.ActiveState(1))
	assert.Equal(t, StateAwaitingConfirmation, svc.ActiveState(2))

	_, err = svc.Confirm(1)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, svc.ActiveState(1))
	assert.Equal(t, StateAwaitingConfirmation, svc.ActiveState(2))
}
