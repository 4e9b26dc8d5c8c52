package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ashureev/intake-bot/internal/domain"
)

func TestFormatReportEscapesUserInput(t *testing.T) {
	sub := domain.Submission{
		Seq:      7,
		UserID:   "42",
		Username: "<b>boss</b>",
		Answers: domain.Answers{
			FullName:       "Иванов <script>alert(1)</script> Иванович",
			Room:           "3 & 4",
			MilitaryID:     false,
			Salary:         true,
			MoreQuestions:  true,
			PhoneNumber:    "+79991234567",
			PersonalNumber: "А-123456",
		},
		SubmittedAt: time.Date(2024, 3, 1, 10, 30, 0, 0, time.Local),
	}

	got := FormatReport(sub)
	assert.Contains(t, got, "НОВАЯ ЗАЯВКА №7")
	assert.Contains(t, got, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.NotContains(t, got, "<script>")
	assert.Contains(t, got, "3 &amp; 4")
	assert.Contains(t, got, "@&lt;b&gt;boss&lt;/b&gt;")
	assert.Contains(t, got, "<b>Причина:</b> Не указана")
	assert.Contains(t, got, "✅ Выплачивается")
	assert.Contains(t, got, "└ Не указаны")
	assert.Contains(t, got, "01.03.2024 10:30")
}

func TestFormatReportWithoutSequence(t *testing.T) {
	got := FormatReport(domain.Submission{UserID: "1", Answers: domain.Answers{MilitaryID: true, ContractPayments: true}})
	assert.Contains(t, got, "📋 <b>НОВАЯ ЗАЯВКА</b>")
	assert.Contains(t, got, "без username")
	assert.NotContains(t, got, "Причина")
}

func TestCooldownMessageRoundsUp(t *testing.T) {
	assert.Equal(t, "⏳ Подождите 1 мин", cooldownMessage(10*time.Second))
	assert.Equal(t, "⏳ Подождите 2 мин", cooldownMessage(61*time.Second))
	assert.Equal(t, "⏳ Подождите 60 мин", cooldownMessage(time.Hour))
}
