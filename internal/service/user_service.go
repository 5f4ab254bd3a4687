package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/foodnudes/FoodNudesBot/internal/models"
	"github.com/foodnudes/FoodNudesBot/internal/repository"
)

var (
	ErrInvalidAge      = errors.New("age must be between 0 and 120")
	ErrInvalidHeight   = errors.New("height must be between 50 and 250 cm")
	ErrInvalidWeight   = errors.New("weight must be between 3 and 300 kg")
	ErrInvalidGoal     = errors.New("unknown goal")
	ErrInvalidActivity = errors.New("unknown activity level")
)

// Goals and activity levels accepted by the profile.
const (
	GoalLose     = "lose"
	GoalMaintain = "maintain"
	GoalGain     = "gain"

	ActivityLow    = "low"
	ActivityMedium = "medium"
	ActivityHigh   = "high"
)

var activityFactors = map[string]float64{
	ActivityLow:    1.2,
	ActivityMedium: 1.55,
	ActivityHigh:   1.725,
}

var goalAdjustments = map[string]float64{
	GoalLose:     -500,
	GoalMaintain: 0,
	GoalGain:     300,
}

// UserService provisions accounts and manages profile data.
type UserService struct {
	users           *repository.UserRepository
	meals           *repository.MealRepository
	log             Logger
	defaultFreeCred int
}

func NewUserService(users *repository.UserRepository, meals *repository.MealRepository, log Logger, defaultFreeCredits int) *UserService {
	return &UserService{
		users:           users,
		meals:           meals,
		log:             log,
		defaultFreeCred: defaultFreeCredits,
	}
}

// Ensure returns the account for a Telegram user, creating it with the
// starter free-credit grant on first contact.
func (s *UserService) Ensure(ctx context.Context, telegramID int64, username, firstName, lastName string) (*models.User, bool, error) {
	return s.users.Ensure(ctx, telegramID, username, firstName, lastName, s.defaultFreeCred)
}

func (s *UserService) FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	return s.users.FindByTelegramID(ctx, telegramID)
}

func (s *UserService) SetAge(ctx context.Context, user *models.User, age int) error {
	if age < 0 || age > 120 {
		return ErrInvalidAge
	}
	if err := s.users.UpdateAge(ctx, user.ID, age); err != nil {
		return fmt.Errorf("update age: %w", err)
	}
	user.Age = age
	return s.recomputeCalories(ctx, user)
}

func (s *UserService) SetHeight(ctx context.Context, user *models.User, heightCm float64) error {
	if heightCm < 50 || heightCm > 250 {
		return ErrInvalidHeight
	}
	if err := s.users.UpdateHeight(ctx, user.ID, heightCm); err != nil {
		return fmt.Errorf("update height: %w", err)
	}
	user.HeightCm = heightCm
	return s.recomputeCalories(ctx, user)
}

func (s *UserService) SetWeight(ctx context.Context, user *models.User, weightKg float64) error {
	if weightKg < 3 || weightKg > 300 {
		return ErrInvalidWeight
	}
	if err := s.users.UpdateWeight(ctx, user.ID, weightKg); err != nil {
		return fmt.Errorf("update weight: %w", err)
	}
	user.WeightKg = weightKg
	return s.recomputeCalories(ctx, user)
}

func (s *UserService) SetGoal(ctx context.Context, user *models.User, goal string) error {
	if _, ok := goalAdjustments[goal]; !ok {
		return ErrInvalidGoal
	}
	if err := s.users.UpdateGoal(ctx, user.ID, goal); err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	user.Goal = goal
	return s.recomputeCalories(ctx, user)
}

func (s *UserService) SetActivityLevel(ctx context.Context, user *models.User, level string) error {
	if _, ok := activityFactors[level]; !ok {
		return ErrInvalidActivity
	}
	if err := s.users.UpdateActivityLevel(ctx, user.ID, level); err != nil {
		return fmt.Errorf("update activity level: %w", err)
	}
	user.ActivityLevel = level
	return s.recomputeCalories(ctx, user)
}

func (s *UserService) recomputeCalories(ctx context.Context, user *models.User) error {
	calories := DailyCalories(user)
	if calories == 0 {
		return nil
	}
	if err := s.users.UpdateDailyCalories(ctx, user.ID, calories); err != nil {
		return fmt.Errorf("update daily calories: %w", err)
	}
	user.DailyCalories = calories
	return nil
}

// DailyCalories estimates a daily target with the Mifflin-St Jeor formula.
// Returns 0 until age, height and weight are all known.
func DailyCalories(user *models.User) int {
	if user.Age <= 0 || user.HeightCm <= 0 || user.WeightKg <= 0 {
		return 0
	}
	bmr := 10*user.WeightKg + 6.25*user.HeightCm - 5*float64(user.Age) + 5

	factor, ok := activityFactors[user.ActivityLevel]
	if !ok {
		factor = activityFactors[ActivityMedium]
	}
	adjustment := goalAdjustments[user.Goal]

	calories := bmr*factor + adjustment
	if calories < 0 {
		return 0
	}
	return int(math.Round(calories))
}

// Progress summarizes the user's activity for the progress report.
type Progress struct {
	Analyses      int
	TopDishes     []models.MealStat
	DailyCalories int
}

func (s *UserService) Progress(ctx context.Context, user *models.User) (*Progress, error) {
	count, err := s.meals.CountForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("count meals: %w", err)
	}
	top, err := s.meals.TopDishes(ctx, user.ID, 5)
	if err != nil {
		return nil, fmt.Errorf("top dishes: %w", err)
	}
	return &Progress{
		Analyses:      count,
		TopDishes:     top,
		DailyCalories: user.DailyCalories,
	}, nil
}

// Stats aggregates bot-wide numbers for the admin panel.
type Stats struct {
	TotalUsers     int
	TotalAnalyses  int
	ActiveLastWeek int
}

func (s *UserService) Stats(ctx context.Context) (*Stats, error) {
	users, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	analyses, err := s.meals.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("count analyses: %w", err)
	}
	active, err := s.users.CountActiveSince(ctx, time.Now().AddDate(0, 0, -7))
	if err != nil {
		return nil, fmt.Errorf("count active users: %w", err)
	}
	return &Stats{TotalUsers: users, TotalAnalyses: analyses, ActiveLastWeek: active}, nil
}

func (s *UserService) ListTelegramIDs(ctx context.Context) ([]int64, error) {
	return s.users.ListTelegramIDs(ctx)
}
