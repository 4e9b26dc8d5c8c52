package flow

import (
	"fmt"
	"math"
	"time"

	"github.com/ashureev/intake-bot/internal/transport"
	"github.com/ashureev/intake-bot/internal/validate"
)

// Menu button labels. The dispatcher matches incoming text against them.
const (
	StartLabel   = "🚀 Начать заявку"
	RestartLabel = "📤 Отправить заявку заново"
	CancelLabel  = "✖️ Отменить"
)

const (
	msgIntro         = "📝 Начинаем заполнение заявки\n\n"
	msgRetry         = "❌ %s\n\nПопробуйте ещё раз:"
	msgChooseYesNo   = "❌ Пожалуйста, выберите Да или Нет"
	msgBlocked       = "🚫 Вы заблокированы в боте"
	msgCooling       = "⏳ Подождите %d мин"
	msgCancelled     = "Заявка отменена."
	msgNothingCancel = "Нет активной заявки."
	msgExpired       = "⌛ Заявка не была завершена и удалена из-за неактивности."
	msgLost          = "⚠️ Заявка потеряна. Начните заново."
	msgSuccess       = "✅ Ваша заявка успешно отправлена!\n\nСпасибо за обращение. С вами свяжутся в ближайшее время."
	msgDegraded      = "⚠️ Заявка сохранена, но не удалось отправить уведомление администраторам.\n\nС вами свяжутся позже."
	msgFailed        = "❌ Произошла ошибка при обработке заявки\n\nПопробуйте позже или обратитесь к администратору."
)

// MainMenu is the keyboard shown to users outside a conversation.
func MainMenu() [][]string { return [][]string{{StartLabel}} }

func restartMenu() [][]string { return [][]string{{RestartLabel}} }

func yesNoKeyboard() [][]string { return [][]string{{validate.YesLabel, validate.NoLabel}} }

// promptFor renders a step's question with the keyboard it needs.
func promptFor(s Step) transport.Message {
	if s.YesNo {
		return transport.Message{Text: s.Prompt, Buttons: yesNoKeyboard()}
	}
	return transport.Message{Text: s.Prompt, RemoveKeyboard: true}
}

// cooldownMessage rounds up so a user never sees "0 min".
func cooldownMessage(remaining time.Duration) string {
	minutes := int(math.Ceil(remaining.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf(msgCooling, minutes)
}
