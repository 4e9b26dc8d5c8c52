package bot

import (
	"github.com/ashureev/intake-bot/internal/flow"
	"github.com/ashureev/intake-bot/internal/transport"
)

// Admin menu labels.
const (
	labelStats   = "📊 Статистика"
	labelExport  = "📥 Выгрузить данные"
	labelBlock   = "🚫 Заблокировать пользователя"
	labelUnblock = "✅ Разблокировать пользователя"
	labelBlocked = "📋 Список заблокированных"
)

const (
	msgWelcomeUser  = "👋 Добро пожаловать в бот для подачи заявок!\n\nНажмите кнопку ниже, чтобы начать:"
	msgWelcomeAdmin = "👋 Добро пожаловать, администратор!\n\nВыберите действие:"

	helpUser = "ℹ️ Команды:\n" +
		"/new — начать заявку\n" +
		"/cancel — отменить заявку\n" +
		"/start — главное меню\n" +
		"/help — эта справка"
	helpAdmin = helpUser + "\n\n" +
		"Администратор:\n" +
		"/stats — статистика\n" +
		"/export — выгрузка CSV\n" +
		"/block <id> — заблокировать\n" +
		"/unblock <id> — разблокировать\n" +
		"/blocked — список заблокированных\n" +
		"/clear [id] — сбросить ограничение частоты\n" +
		"/broadcast <текст> — рассылка"
)

func adminMenu() [][]string {
	return [][]string{
		{labelStats},
		{labelExport},
		{labelBlock},
		{labelUnblock},
		{labelBlocked},
		{flow.StartLabel},
	}
}

func welcome(isAdmin bool) transport.Message {
	if isAdmin {
		return transport.Message{Text: msgWelcomeAdmin, Buttons: adminMenu()}
	}
	return transport.Message{Text: msgWelcomeUser, Buttons: flow.MainMenu()}
}

func helpText(isAdmin bool) string {
	if isAdmin {
		return helpAdmin
	}
	return helpUser
}
