package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/foodnudes/FoodNudesBot/internal/models"
)

const (
	cbConfirmMeal = "meal_confirm"
	cbRenameMeal  = "meal_rename"

	cbProfileAge      = "profile_age"
	cbProfileHeight   = "profile_height"
	cbProfileWeight   = "profile_weight"
	cbProfileGoal     = "profile_goal"
	cbProfileActivity = "profile_activity"

	cbGoalPrefix     = "goal:"
	cbActivityPrefix = "activity:"
	cbTariffPrefix   = "tariff:"
)

func mealConfirmationKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Всё верно", cbConfirmMeal),
			tgbotapi.NewInlineKeyboardButtonData("Это не то блюдо", cbRenameMeal),
		),
	)
}

func profileKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Возраст", cbProfileAge),
			tgbotapi.NewInlineKeyboardButtonData("Рост", cbProfileHeight),
			tgbotapi.NewInlineKeyboardButtonData("Вес", cbProfileWeight),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Цель", cbProfileGoal),
			tgbotapi.NewInlineKeyboardButtonData("Активность", cbProfileActivity),
		),
	)
}

func goalKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Похудеть", cbGoalPrefix+"lose"),
			tgbotapi.NewInlineKeyboardButtonData("Поддерживать", cbGoalPrefix+"maintain"),
			tgbotapi.NewInlineKeyboardButtonData("Набрать", cbGoalPrefix+"gain"),
		),
	)
}

func activityKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Низкая", cbActivityPrefix+"low"),
			tgbotapi.NewInlineKeyboardButtonData("Средняя", cbActivityPrefix+"medium"),
			tgbotapi.NewInlineKeyboardButtonData("Высокая", cbActivityPrefix+"high"),
		),
	)
}

func tariffKeyboard(tariffs []models.Tariff) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(tariffs))
	for _, t := range tariffs {
		label := fmt.Sprintf("%s — %d анализов за %.0f %s", t.Name, t.Credits, float64(t.PriceMinorUnits)/100, t.Currency)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbTariffPrefix+t.Name),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
