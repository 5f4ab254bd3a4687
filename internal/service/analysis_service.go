package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/foodnudes/FoodNudesBot/internal/models"
)

var (
	ErrNoActiveSession   = errors.New("no active analysis session")
	ErrSessionSuperseded = errors.New("analysis session superseded")
	ErrEmptyDishName     = errors.New("empty dish name")
)

// SessionState tracks where a meal analysis is in its lifecycle.
type SessionState int

const (
	StateIdle SessionState = iota
	StateDetecting
	StateCritiquing
	StateAwaitingConfirmation
	StateRenaming
)

// Session is one in-flight meal analysis. A user has at most one; a new
// photo replaces whatever was in progress.
type Session struct {
	UserID   int64
	State    SessionState
	Image    []byte
	PhotoURL string
	Dish     string
	Critique string
	Billed   bool
	Pool     models.CreditPool
}

type VisionAnalyzer interface {
	DetectDish(ctx context.Context, image []byte) (string, error)
	Critique(ctx context.Context, dish string, image []byte) (string, error)
}

type CreditDebiter interface {
	Balance(ctx context.Context, userID int64) (free, paid int, err error)
	DebitOne(ctx context.Context, userID int64) (*DebitResult, error)
}

type MealRecorder interface {
	Log(ctx context.Context, userID int64, dish string, pool models.CreditPool, photoURL string) error
}

// AnalysisService runs the photo-to-critique pipeline. Each completed
// analysis debits exactly one credit; renames re-run the critique for free.
type AnalysisService struct {
	vision  VisionAnalyzer
	ledger  CreditDebiter
	meals   MealRecorder
	log     Logger
	timeout time.Duration

	mu       sync.Mutex
	sessions map[int64]*Session
}

// AnalysisResult is what the caller presents to the user after a
// successful detect+critique run.
type AnalysisResult struct {
	Dish     string
	Critique string
	Free     int
	Paid     int
}

func NewAnalysisService(vision VisionAnalyzer, ledger CreditDebiter, meals MealRecorder, log Logger, timeout time.Duration) *AnalysisService {
	return &AnalysisService{
		vision:   vision,
		ledger:   ledger,
		meals:    meals,
		log:      log,
		timeout:  timeout,
		sessions: make(map[int64]*Session),
	}
}

// SubmitPhoto starts a new analysis, replacing any in-flight session for the
// user. The credit is debited only after the critique succeeds, so a vision
// failure costs nothing.
func (s *AnalysisService) SubmitPhoto(ctx context.Context, userID int64, image []byte, photoURL string) (*AnalysisResult, error) {
	free, paid, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check balance: %w", err)
	}
	if free+paid <= 0 {
		return nil, ErrInsufficientCredits
	}

	sess := &Session{
		UserID:   userID,
		State:    StateDetecting,
		Image:    image,
		PhotoURL: photoURL,
	}
	s.mu.Lock()
	s.sessions[userID] = sess
	s.mu.Unlock()

	vctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	dish, err := s.vision.DetectDish(vctx, image)
	if err != nil {
		s.dropIfCurrent(userID, sess)
		return nil, fmt.Errorf("detect dish: %w", err)
	}
	dish = strings.TrimSpace(dish)
	if dish == "" {
		s.dropIfCurrent(userID, sess)
		return nil, fmt.Errorf("detect dish: empty result")
	}
	if !s.isCurrent(userID, sess) {
		return nil, ErrSessionSuperseded
	}
	sess.Dish = dish
	sess.State = StateCritiquing

	return s.critique(ctx, sess)
}

// critique runs the critique call and, on the first success for this
// session, debits one credit and logs the meal. Later runs (renames) reuse
// the already-debited credit.
func (s *AnalysisService) critique(ctx context.Context, sess *Session) (*AnalysisResult, error) {
	vctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	critique, err := s.vision.Critique(vctx, sess.Dish, sess.Image)
	if err != nil {
		// The session ends either way; an already-spent credit stays spent.
		s.dropIfCurrent(sess.UserID, sess)
		return nil, fmt.Errorf("critique dish: %w", err)
	}
	if !s.isCurrent(sess.UserID, sess) {
		return nil, ErrSessionSuperseded
	}
	sess.Critique = critique

	result := &AnalysisResult{Dish: sess.Dish, Critique: critique}
	if !sess.Billed {
		debit, err := s.ledger.DebitOne(ctx, sess.UserID)
		if err != nil {
			s.dropIfCurrent(sess.UserID, sess)
			return nil, fmt.Errorf("debit credit: %w", err)
		}
		sess.Billed = true
		sess.Pool = debit.Pool
		result.Free = debit.Free
		result.Paid = debit.Paid

		if err := s.meals.Log(ctx, sess.UserID, sess.Dish, debit.Pool, sess.PhotoURL); err != nil {
			s.log.Error("log meal", "user_id", sess.UserID, "dish", sess.Dish, "err", err)
		}
	} else {
		free, paid, err := s.ledger.Balance(ctx, sess.UserID)
		if err == nil {
			result.Free = free
			result.Paid = paid
		}
	}

	sess.State = StateAwaitingConfirmation
	return result, nil
}

// Confirm closes the active session after the user accepts the dish name.
func (s *AnalysisService) Confirm(userID int64) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok || sess.State != StateAwaitingConfirmation {
		return nil, ErrNoActiveSession
	}
	delete(s.sessions, userID)
	return sess, nil
}

// BeginRename switches the session into rename mode; the next text message
// from the user is taken as the corrected dish name.
func (s *AnalysisService) BeginRename(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok || sess.State != StateAwaitingConfirmation {
		return ErrNoActiveSession
	}
	sess.State = StateRenaming
	return nil
}

// SubmitRename re-runs the critique with the user-supplied dish name.
// Renames never debit: the session was billed on its first critique.
func (s *AnalysisService) SubmitRename(ctx context.Context, userID int64, dish string) (*AnalysisResult, error) {
	dish = strings.TrimSpace(dish)
	if dish == "" {
		return nil, ErrEmptyDishName
	}

	s.mu.Lock()
	sess, ok := s.sessions[userID]
	if !ok || sess.State != StateRenaming {
		s.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	sess.Dish = dish
	sess.State = StateCritiquing
	s.mu.Unlock()

	return s.critique(ctx, sess)
}

// ActiveState reports the state of the user's session, StateIdle if none.
func (s *AnalysisService) ActiveState(userID int64) SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		return sess.State
	}
	return StateIdle
}

// Cancel drops the user's session regardless of state.
func (s *AnalysisService) Cancel(userID int64) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}

func (s *AnalysisService) isCurrent(userID int64, sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[userID] == sess
}

func (s *AnalysisService) dropIfCurrent(userID int64, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[userID] == sess {
		delete(s.sessions, userID)
	}
}
