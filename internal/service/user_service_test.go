package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/foodnudes/FoodNudesBot/internal/models"
)

func TestDailyCalories(t *testing.T) {
	tests := []struct {
		name string
		user models.User
		want int
	}{
		{
			name: "maintain medium activity",
			user: models.User{Age: 30, HeightCm: 175, WeightKg: 70, Goal: GoalMaintain, ActivityLevel: ActivityMedium},
			want: 2556,
		},
		{
			name: "lose subtracts deficit",
			user: models.User{Age: 30, HeightCm: 175, WeightKg: 70, Goal: GoalLose, ActivityLevel: ActivityMedium},
			want: 2056,
		},
		{
			name: "gain high activity",
			user: models.User{Age: 30, HeightCm: 175, WeightKg: 70, Goal: GoalGain, ActivityLevel: ActivityHigh},
			want: 3144,
		},
		{
			name: "unset activity falls back to medium",
			user: models.User{Age: 30, HeightCm: 175, WeightKg: 70, Goal: GoalMaintain},
			want: 2556,
		},
		{
			name: "incomplete profile yields zero",
			user: models.User{Age: 30, WeightKg: 70},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DailyCalories(&tt.user))
		})
	}
}

func TestProfileValidation(t *testing.T) {
	svc := NewUserService(nil, nil, testLogger(), 5)
	ctx := context.Background()
	user := &models.User{ID: 1}

	assert.ErrorIs(t, svc.SetAge(ctx, user, -1), ErrInvalidAge)
	assert.ErrorIs(t, svc.SetAge(ctx, user, 121), ErrInvalidAge)
	assert.ErrorIs(t, svc.SetHeight(ctx, user, 49), ErrInvalidHeight)
	assert.ErrorIs(t, svc.SetHeight(ctx, user, 251), ErrInvalidHeight)
	assert.ErrorIs(t, svc.SetWeight(ctx, user, 2.9), ErrInvalidWeight)
	assert.ErrorIs(t, svc.SetWeight(ctx, user, 301), ErrInvalidWeight)
	assert.ErrorIs(t, svc.SetGoal(ctx, user, "bulk"), ErrInvalidGoal)
	assert.ErrorIs(t, svc.SetActivityLevel(ctx, user, "extreme"), ErrInvalidActivity)
}
