package flow

import (
	"fmt"
	"html"
	"strings"

	"github.com/ashureev/intake-bot/internal/domain"
)

const reportTimeLayout = "02.01.2006 15:04"

func yesNo(v bool) string {
	if v {
		return "✅ Да"
	}
	return "❌ Нет"
}

func pick(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// FormatReport renders a submission as the HTML message sent to recipients.
// Every user-supplied value is escaped.
func FormatReport(sub domain.Submission) string {
	q := html.EscapeString
	a := sub.Answers

	var b strings.Builder
	if sub.Seq > 0 {
		fmt.Fprintf(&b, "📋 <b>НОВАЯ ЗАЯВКА №%d</b>\n\n", sub.Seq)
	} else {
		b.WriteString("📋 <b>НОВАЯ ЗАЯВКА</b>\n\n")
	}
	fmt.Fprintf(&b, "👤 <b>ФИО:</b> %s\n", q(a.FullName))
	fmt.Fprintf(&b, "🏢 <b>Войсковая часть:</b> %s\n", q(a.MilitaryUnit))
	fmt.Fprintf(&b, "🪖 <b>Рота/батальон:</b> %s\n", q(a.CompanyBattalion))
	fmt.Fprintf(&b, "🆔 <b>Личный номер:</b> %s\n", q(a.PersonalNumber))
	fmt.Fprintf(&b, "🚪 <b>Комната:</b> %s\n\n", q(a.Room))
	fmt.Fprintf(&b, "📱 <b>Телефон:</b> %s\n\n", q(a.PhoneNumber))

	fmt.Fprintf(&b, "📄 <b>Военный билет:</b> %s\n", yesNo(a.MilitaryID))
	if !a.MilitaryID {
		fmt.Fprintf(&b, "   └ <b>Причина:</b> %s\n", q(orDefault(a.LostMilitaryIDReason, "Не указана")))
	}
	fmt.Fprintf(&b, "\n🎖 <b>Удостоверение ветерана:</b> %s\n", yesNo(a.VeteranCertificate))

	fmt.Fprintf(&b, "\n💰 <b>Денежное довольствие:</b> %s\n", pick(a.Salary, "✅ Выплачивается", "❌ Не выплачивается"))
	if !a.Salary {
		fmt.Fprintf(&b, "   └ <b>Проблема:</b> %s\n", q(orDefault(a.SalaryProblems, "Не указана")))
	}

	fmt.Fprintf(&b, "\n💵 <b>Контрактные выплаты:</b> %s\n", pick(a.ContractPayments, "✅ Выплачены", "❌ Не выплачены"))
	if !a.ContractPayments {
		fmt.Fprintf(&b, "   └ <b>Проблема:</b> %s\n", q(orDefault(a.ContractProblems, "Не указана")))
	}

	fmt.Fprintf(&b, "\n❓ <b>Дополнительные вопросы:</b> %s\n", yesNo(a.MoreQuestions))
	if a.MoreQuestions {
		fmt.Fprintf(&b, "   └ %s\n", q(orDefault(a.MoreQuestionsDetails, "Не указаны")))
	}

	user := domain.User{ID: sub.UserID, Username: sub.Username}
	fmt.Fprintf(&b, "\n👤 <b>От пользователя:</b> %s (ID: %s)", q(user.Handle()), q(sub.UserID))
	fmt.Fprintf(&b, "\n📅 <b>Дата:</b> %s", sub.SubmittedAt.Local().Format(reportTimeLayout))
	return b.String()
}
