package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/foodnudes/FoodNudesBot/internal/config"
	"github.com/foodnudes/FoodNudesBot/internal/models"
	"github.com/foodnudes/FoodNudesBot/internal/service"
)

type ImageStorage interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

type Bot struct {
	cfg        config.Config
	api        *tgbotapi.BotAPI
	log        *slog.Logger
	users      *service.UserService
	analysis   *service.AnalysisService
	ledger     *service.LedgerService
	promo      *service.PromoService
	payments   *service.PaymentService
	tariffs    *service.TariffService
	storage    ImageStorage
	state      *StateManager
	httpClient *http.Client
}

func NewBot(cfg config.Config, api *tgbotapi.BotAPI, log *slog.Logger, users *service.UserService, analysis *service.AnalysisService, ledger *service.LedgerService, promo *service.PromoService, payments *service.PaymentService, tariffs *service.TariffService, storage ImageStorage) *Bot {
	return &Bot{
		cfg:        cfg,
		api:        api,
		log:        log,
		users:      users,
		analysis:   analysis,
		ledger:     ledger,
		promo:      promo,
		payments:   payments,
		tariffs:    tariffs,
		storage:    storage,
		state:      NewStateManager(),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update := <-updates:
			// Each update gets its own goroutine: a slow vision call for one
			// user must not stall everyone else's updates.
			go b.handleUpdate(ctx, update)
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
	} else if update.PreCheckoutQuery != nil {
		if err := b.payments.HandlePreCheckout(ctx, b.api, update.PreCheckoutQuery); err != nil {
			b.log.Error("pre-checkout failed", "err", err)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.SuccessfulPayment != nil {
		b.handleSuccessfulPayment(ctx, msg)
		return
	}

	if len(msg.Photo) > 0 {
		b.handlePhoto(ctx, msg)
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	b.handleText(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		user, created, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
		if err != nil {
			b.log.Error("ensure user", "err", err)
			return
		}
		greeting := fmt.Sprintf(
			"Привет, %s! Я FoodNudes — дерзкий диетолог.\n\nПришли фото блюда, и я скажу всё, что о нём думаю. Каждый анализ стоит 1 кредит.\n\nКоманды:\n/profile — настроить профиль\n/progress — мой прогресс\n/balance — баланс кредитов\n/buy — купить кредиты\n/promo — активировать промокод",
			user.FirstName,
		)
		if created {
			greeting += fmt.Sprintf("\n\nДарю %d бесплатных анализов на старт!", user.FreeCredits)
		}
		b.sendText(msg.Chat.ID, greeting)
	case "profile":
		if _, _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID); err != nil {
			b.log.Error("ensure user profile", "err", err)
			return
		}
		b.sendProfile(ctx, msg.Chat.ID)
	case "progress":
		b.handleProgress(ctx, msg)
	case "balance":
		b.handleBalance(ctx, msg)
	case "buy":
		b.handleBuy(ctx, msg)
	case "promo":
		b.handlePromo(ctx, msg)
	case "cancel":
		user, _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
		if err != nil {
			b.log.Error("ensure user cancel", "err", err)
			return
		}
		b.analysis.Cancel(user.ID)
		b.state.Reset(msg.Chat.ID)
		b.sendText(msg.Chat.ID, "Ок, отменил. Пришли фото блюда, когда будешь готов.")
	default:
		b.sendText(msg.Chat.ID, "Неизвестная команда. Пришлите фото блюда или используйте /start.")
	}
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	user, _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user text", "err", err)
		return
	}

	if b.analysis.ActiveState(user.ID) == service.StateRenaming {
		b.handleRename(ctx, msg, user)
		return
	}

	switch b.state.Get(msg.Chat.ID) {
	case InputAge:
		b.handleAgeInput(ctx, msg, user)
	case InputHeight:
		b.handleHeightInput(ctx, msg, user)
	case InputWeight:
		b.handleWeightInput(ctx, msg, user)
	case InputPromoCode:
		b.state.Reset(msg.Chat.ID)
		b.applyPromo(ctx, msg.Chat.ID, user, msg.Text)
	default:
		b.sendText(msg.Chat.ID, "Пришлите фото блюда, и я его разберу по косточкам.")
	}
}

func (b *Bot) handleRename(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	result, err := b.analysis.SubmitRename(ctx, user.ID, msg.Text)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyDishName):
			b.sendText(msg.Chat.ID, "Название блюда не может быть пустым. Напишите, что это за блюдо.")
		case errors.Is(err, service.ErrSessionSuperseded):
			// replaced by a newer photo, nothing to say
		case errors.Is(err, service.ErrNoActiveSession):
			b.sendText(msg.Chat.ID, "Нет активного анализа. Пришлите фото блюда.")
		default:
			b.log.Error("rename critique", "err", err)
			b.sendText(msg.Chat.ID, "Не удалось переоценить блюдо, попробуйте ещё раз.")
		}
		return
	}
	b.deliverCritique(msg.Chat.ID, result)
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	user, _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user photo", "err", err)
		return
	}

	free, paid, err := b.ledger.Balance(ctx, user.ID)
	if err != nil {
		b.log.Error("check balance", "err", err)
		b.sendText(msg.Chat.ID, "Что-то пошло не так, попробуйте позже.")
		return
	}
	if free+paid <= 0 {
		b.sendText(msg.Chat.ID, "Кредиты закончились. Используйте /buy для покупки или /promo для промокода.")
		return
	}

	photo := msg.Photo[len(msg.Photo)-1]
	data, err := b.downloadFile(ctx, photo.FileID)
	if err != nil {
		b.log.Error("download photo", "err", err)
		b.sendText(msg.Chat.ID, "Не удалось получить фото, попробуйте ещё раз.")
		return
	}

	photoURL := ""
	if b.storage != nil {
		url, err := b.storage.Upload(ctx, data, "image/jpeg")
		if err != nil {
			b.log.Error("archive photo", "err", err)
		} else {
			photoURL = url
		}
	}

	b.sendText(msg.Chat.ID, "Смотрю на твою тарелку...")

	result, err := b.analysis.SubmitPhoto(ctx, user.ID, data, photoURL)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientCredits):
			b.sendText(msg.Chat.ID, "Кредиты закончились. Используйте /buy для покупки или /promo для промокода.")
		case errors.Is(err, service.ErrSessionSuperseded):
			// user sent a newer photo while this one was processing
		default:
			b.log.Error("analyze photo", "err", err)
			b.sendText(msg.Chat.ID, "Не удалось распознать блюдо, попробуйте другое фото.")
		}
		return
	}
	b.deliverCritique(msg.Chat.ID, result)
}

func (b *Bot) deliverCritique(chatID int64, result *service.AnalysisResult) {
	text := fmt.Sprintf("Это %s?\n\n%s\n\nОсталось кредитов: %d", result.Dish, result.Critique, result.Free+result.Paid)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = mealConfirmationKeyboard()
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send critique", "err", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	user, _, err := b.ensureUser(ctx, cb.From, cb.Message.Chat.ID)
	if err != nil {
		b.log.Error("ensure user callback", "err", err)
		return
	}
	chatID := cb.Message.Chat.ID

	ack := func(text string) {
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, text)); err != nil {
			b.log.Error("callback ack", "err", err)
		}
	}

	switch {
	case cb.Data == cbConfirmMeal:
		sess, err := b.analysis.Confirm(user.ID)
		if err != nil {
			ack("Нет активного анализа")
			return
		}
		ack("Записано")
		b.sendText(chatID, fmt.Sprintf("Записал: %s. Пришли следующее блюдо, когда осмелишься.", sess.Dish))
	case cb.Data == cbRenameMeal:
		if err := b.analysis.BeginRename(user.ID); err != nil {
			ack("Нет активного анализа")
			return
		}
		ack("")
		b.sendText(chatID, "Ок, а что это тогда? Напиши название блюда.")
	case cb.Data == cbProfileAge:
		ack("")
		b.state.Set(chatID, InputAge)
		b.sendText(chatID, "Сколько тебе лет?")
	case cb.Data == cbProfileHeight:
		ack("")
		b.state.Set(chatID, InputHeight)
		b.sendText(chatID, "Какой у тебя рост в сантиметрах?")
	case cb.Data == cbProfileWeight:
		ack("")
		b.state.Set(chatID, InputWeight)
		b.sendText(chatID, "Сколько ты весишь в килограммах?")
	case cb.Data == cbProfileGoal:
		ack("")
		msg := tgbotapi.NewMessage(chatID, "Какая цель?")
		msg.ReplyMarkup = goalKeyboard()
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send goal keyboard", "err", err)
		}
	case cb.Data == cbProfileActivity:
		ack("")
		msg := tgbotapi.NewMessage(chatID, "Какой уровень активности?")
		msg.ReplyMarkup = activityKeyboard()
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error("send activity keyboard", "err", err)
		}
	case strings.HasPrefix(cb.Data, cbGoalPrefix):
		goal := strings.TrimPrefix(cb.Data, cbGoalPrefix)
		if err := b.users.SetGoal(ctx, user, goal); err != nil {
			b.log.Error("set goal", "err", err)
			ack("Не удалось сохранить")
			return
		}
		ack("Сохранено")
		b.sendProfileSummary(chatID, user)
	case strings.HasPrefix(cb.Data, cbActivityPrefix):
		level := strings.TrimPrefix(cb.Data, cbActivityPrefix)
		if err := b.users.SetActivityLevel(ctx, user, level); err != nil {
			b.log.Error("set activity", "err", err)
			ack("Не удалось сохранить")
			return
		}
		ack("Сохранено")
		b.sendProfileSummary(chatID, user)
	case strings.HasPrefix(cb.Data, cbTariffPrefix):
		ack("")
		tariffName := strings.TrimPrefix(cb.Data, cbTariffPrefix)
		if err := b.payments.SendInvoice(ctx, b.api, user, chatID, tariffName); err != nil {
			b.log.Error("send invoice", "err", err)
			b.sendText(chatID, "Не удалось отправить счёт. Попробуйте позже.")
		}
	default:
		ack("Неизвестный выбор")
	}
}

func (b *Bot) handleAgeInput(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	age, err := strconv.Atoi(strings.TrimSpace(msg.Text))
	if err != nil {
		b.sendText(msg.Chat.ID, "Напишите возраст числом, например: 30")
		return
	}
	if err := b.users.SetAge(ctx, user, age); err != nil {
		if errors.Is(err, service.ErrInvalidAge) {
			b.sendText(msg.Chat.ID, "Возраст должен быть от 0 до 120 лет.")
			return
		}
		b.log.Error("set age", "err", err)
		b.sendText(msg.Chat.ID, "Не удалось сохранить, попробуйте позже.")
		return
	}
	b.state.Reset(msg.Chat.ID)
	b.sendProfileSummary(msg.Chat.ID, user)
}

func (b *Bot) handleHeightInput(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	height, err := parseNumber(msg.Text)
	if err != nil {
		b.sendText(msg.Chat.ID, "Напишите рост числом в сантиметрах, например: 175")
		return
	}
	if err := b.users.SetHeight(ctx, user, height); err != nil {
		if errors.Is(err, service.ErrInvalidHeight) {
			b.sendText(msg.Chat.ID, "Рост должен быть от 50 до 250 см.")
			return
		}
		b.log.Error("set height", "err", err)
		b.sendText(msg.Chat.ID, "Не удалось сохранить, попробуйте позже.")
		return
	}
	b.state.Reset(msg.Chat.ID)
	b.sendProfileSummary(msg.Chat.ID, user)
}

func (b *Bot) handleWeightInput(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	weight, err := parseNumber(msg.Text)
	if err != nil {
		b.sendText(msg.Chat.ID, "Напишите вес числом в килограммах, например: 72.5")
		return
	}
	if err := b.users.SetWeight(ctx, user, weight); err != nil {
		if errors.Is(err, service.ErrInvalidWeight) {
			b.sendText(msg.Chat.ID, "Вес должен быть от 3 до 300 кг.")
			return
		}
		b.log.Error("set weight", "err", err)
		b.sendText(msg.Chat.ID, "Не удалось сохранить, попробуйте позже.")
		return
	}
	b.state.Reset(msg.Chat.ID)
	b.sendProfileSummary(msg.Chat.ID, user)
}

func (b *Bot) sendProfile(ctx context.Context, chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "Что настраиваем?")
	msg.ReplyMarkup = profileKeyboard()
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send profile keyboard", "err", err)
	}
}

func (b *Bot) sendProfileSummary(chatID int64, user *models.User) {
	var sb strings.Builder
	sb.WriteString("Профиль обновлён.\n")
	if user.Age > 0 {
		fmt.Fprintf(&sb, "Возраст: %d\n", user.Age)
	}
	if user.HeightCm > 0 {
		fmt.Fprintf(&sb, "Рост: %.0f см\n", user.HeightCm)
	}
	if user.WeightKg > 0 {
		fmt.Fprintf(&sb, "Вес: %.1f кг\n", user.WeightKg)
	}
	if user.Goal != "" {
		fmt.Fprintf(&sb, "Цель: %s\n", goalLabel(user.Goal))
	}
	if user.ActivityLevel != "" {
		fmt.Fprintf(&sb, "Активность: %s\n", activityLabel(user.ActivityLevel))
	}
	if user.DailyCalories > 0 {
		fmt.Fprintf(&sb, "Дневная норма: %d ккал", user.DailyCalories)
	} else {
		sb.WriteString("Заполни возраст, рост и вес, и я посчитаю дневную норму калорий.")
	}
	b.sendText(chatID, sb.String())
}

func goalLabel(goal string) string {
	switch goal {
	case service.GoalLose:
		return "похудеть"
	case service.GoalMaintain:
		return "поддерживать вес"
	case service.GoalGain:
		return "набрать массу"
	default:
		return goal
	}
}

func activityLabel(level string) string {
	switch level {
	case service.ActivityLow:
		return "низкая"
	case service.ActivityMedium:
		return "средняя"
	case service.ActivityHigh:
		return "высокая"
	default:
		return level
	}
}

func (b *Bot) handleProgress(ctx context.Context, msg *tgbotapi.Message) {
	user, _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user progress", "err", err)
		return
	}
	progress, err := b.users.Progress(ctx, user)
	if err != nil {
		b.log.Error("load progress", "err", err)
		b.sendText(msg.Chat.ID, "Не удалось собрать прогресс, попробуйте позже.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Разобрано блюд: %d\n", progress.Analyses)
	if progress.DailyCalories > 0 {
		fmt.Fprintf(&sb, "Дневная норма: %d ккал\n", progress.DailyCalories)
	}
	if len(progress.TopDishes) > 0 {
		sb.WriteString("\nЛюбимые блюда:\n")
		for i, stat := range progress.TopDishes {
			fmt.Fprintf(&sb, "%d. %s — %d раз\n", i+1, stat.Dish, stat.Count)
		}
	}
	b.sendText(msg.Chat.ID, sb.String())
}

func (b *Bot) handleBalance(ctx context.Context, msg *tgbotapi.Message) {
	user, _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user balance", "err", err)
		return
	}
	free, paid, err := b.ledger.Balance(ctx, user.ID)
	if err != nil {
		b.log.Error("load balance", "err", err)
		b.sendText(msg.Chat.ID, "Не удалось получить баланс, попробуйте позже.")
		return
	}
	b.sendText(msg.Chat.ID, fmt.Sprintf("Баланс:\nБесплатные кредиты: %d\nПлатные кредиты: %d", free, paid))
}

func (b *Bot) handleBuy(ctx context.Context, msg *tgbotapi.Message) {
	if _, _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID); err != nil {
		b.log.Error("ensure user buy", "err", err)
		return
	}
	tariffs, err := b.tariffs.ListActive(ctx)
	if err != nil {
		b.log.Error("list tariffs", "err", err)
		b.sendText(msg.Chat.ID, "Не удалось загрузить тарифы, попробуйте позже.")
		return
	}
	if len(tariffs) == 0 {
		b.sendText(msg.Chat.ID, "Тарифы пока не настроены.")
		return
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, "Выберите тариф:")
	out.ReplyMarkup = tariffKeyboard(tariffs)
	if _, err := b.api.Send(out); err != nil {
		b.log.Error("send tariffs", "err", err)
	}
}

func (b *Bot) handlePromo(ctx context.Context, msg *tgbotapi.Message) {
	user, _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user promo", "err", err)
		return
	}
	code := strings.TrimSpace(msg.CommandArguments())
	if code == "" {
		b.state.Set(msg.Chat.ID, InputPromoCode)
		b.sendText(msg.Chat.ID, "Напишите промокод.")
		return
	}
	b.applyPromo(ctx, msg.Chat.ID, user, code)
}

func (b *Bot) applyPromo(ctx context.Context, chatID int64, user *models.User, code string) {
	granted, err := b.promo.Apply(ctx, user.ID, code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPromoInvalid):
			b.sendText(chatID, "Промокод недействителен.")
		case errors.Is(err, service.ErrPromoAlreadyRedeemed):
			b.sendText(chatID, "Этот промокод уже использован.")
		default:
			b.log.Error("apply promo", "err", err)
			b.sendText(chatID, "Не удалось применить промокод, попробуйте позже.")
		}
		return
	}
	b.sendText(chatID, fmt.Sprintf("Промокод активирован! +%d кредитов.", granted))
}

func (b *Bot) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) {
	user, _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user payment", "err", err)
		return
	}
	status, err := b.payments.HandleSuccessfulPayment(ctx, user, msg.SuccessfulPayment)
	if err != nil {
		b.log.Error("process successful payment", "err", err)
		return
	}
	switch status {
	case service.ApplyCredited, service.ApplyAlreadyProcessed:
		free, paid, err := b.ledger.Balance(ctx, user.ID)
		if err != nil {
			b.sendText(msg.Chat.ID, "Оплата получена! Кредиты зачислены.")
			return
		}
		b.sendText(msg.Chat.ID, fmt.Sprintf("Оплата получена! Кредиты зачислены.\nБаланс: %d бесплатных и %d платных.", free, paid))
		if b.cfg.AdminTelegramID != 0 && status == service.ApplyCredited {
			b.sendText(b.cfg.AdminTelegramID, fmt.Sprintf("Новая оплата от @%s: %d %s", user.Username, msg.SuccessfulPayment.TotalAmount, msg.SuccessfulPayment.Currency))
		}
	default:
		b.sendText(msg.Chat.ID, "Оплата получена, но не прошла проверку. Напишите в поддержку.")
	}
}

func (b *Bot) downloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("file path empty")
	}
	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", b.api.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("telegram file status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file body: %w", err)
	}
	return body, nil
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User, chatID int64) (*models.User, bool, error) {
	username := ""
	firstName := ""
	lastName := ""
	telegramID := chatID
	if from != nil {
		username = from.UserName
		firstName = from.FirstName
		lastName = from.LastName
		telegramID = from.ID
	}
	return b.users.Ensure(ctx, telegramID, username, firstName, lastName)
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send text", "err", err)
	}
}

func parseNumber(text string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(text), ",", "."), 64)
}
