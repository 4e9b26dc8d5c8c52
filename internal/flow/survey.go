package flow

import (
	"github.com/ashureev/intake-bot/internal/domain"
	"github.com/ashureev/intake-bot/internal/validate"
)

// Survey step IDs.
const (
	StepFullName             domain.StepID = "full_name"
	StepMilitaryUnit         domain.StepID = "military_unit"
	StepCompanyBattalion     domain.StepID = "company_battalion"
	StepPersonalNumber       domain.StepID = "personal_number"
	StepRoom                 domain.StepID = "room"
	StepMilitaryID           domain.StepID = "military_id"
	StepLostMilitaryIDReason domain.StepID = "lost_military_id_reason"
	StepVeteranCertificate   domain.StepID = "veteran_certificate"
	StepSalary               domain.StepID = "salary"
	StepSalaryProblems       domain.StepID = "salary_problems"
	StepContractPayments     domain.StepID = "contract_payments"
	StepContractProblems     domain.StepID = "contract_problems"
	StepMoreQuestions        domain.StepID = "more_questions"
	StepMoreQuestionsDetails domain.StepID = "more_questions_details"
	StepPhoneNumber          domain.StepID = "phone_number"
)

// ElaborationMin is the minimum length of free-text explanations.
const ElaborationMin = 10

const phonePrompt = "Введите ваш номер телефона\n\nФормат: +79991234567 или 89991234567"

// SurveySteps returns the intake questionnaire.
func SurveySteps() []Step {
	elaborate := validate.FreeText(ElaborationMin)
	return []Step{
		{ID: StepFullName, Field: domain.FieldFullName, Rule: validate.FullName, Next: StepMilitaryUnit,
			Prompt: "Введите ФИО (Фамилия Имя Отчество):"},
		{ID: StepMilitaryUnit, Field: domain.FieldMilitaryUnit, Rule: validate.UnitNumber, Next: StepCompanyBattalion,
			Prompt: "Введите номер войсковой части (5 цифр):"},
		{ID: StepCompanyBattalion, Field: domain.FieldCompanyBattalion, Rule: validate.NonEmpty, Next: StepPersonalNumber,
			Prompt: "Введите вашу роту / батальон:"},
		{ID: StepPersonalNumber, Field: domain.FieldPersonalNumber, Rule: validate.PersonalNumber, Next: StepRoom,
			Prompt: "Введите личный номер (формат: А-123456 или АБ-123456):"},
		{ID: StepRoom, Field: domain.FieldRoom, Rule: validate.NonEmpty, Next: StepMilitaryID,
			Prompt: "Введите номер этажа / комнаты / кровати:"},
		{ID: StepMilitaryID, Field: domain.FieldMilitaryID, YesNo: true, OnYes: StepVeteranCertificate, OnNo: StepLostMilitaryIDReason,
			Prompt: "Имеется ли у Вас военный билет?"},
		{ID: StepLostMilitaryIDReason, Field: domain.FieldLostMilitaryIDReason, Rule: elaborate, Next: StepVeteranCertificate,
			Prompt: "Опишите причину отсутствия военного билета:"},
		{ID: StepVeteranCertificate, Field: domain.FieldVeteranCertificate, YesNo: true, OnYes: StepSalary, OnNo: StepSalary,
			Prompt: "Имеется ли у Вас удостоверение ветерана боевых действий?"},
		{ID: StepSalary, Field: domain.FieldSalary, YesNo: true, OnYes: StepContractPayments, OnNo: StepSalaryProblems,
			Prompt: "Выплачивается ли вам денежное довольствие?"},
		{ID: StepSalaryProblems, Field: domain.FieldSalaryProblems, Rule: elaborate, Next: StepContractPayments,
			Prompt: "Опишите проблему с денежным довольствием:"},
		{ID: StepContractPayments, Field: domain.FieldContractPayments, YesNo: true, OnYes: StepMoreQuestions, OnNo: StepContractProblems,
			Prompt: "Выплачены ли все выплаты за контракт (подъёмные, ежемесячные)?"},
		{ID: StepContractProblems, Field: domain.FieldContractProblems, Rule: elaborate, Next: StepMoreQuestions,
			Prompt: "Опишите проблему с выплатами:"},
		{ID: StepMoreQuestions, Field: domain.FieldMoreQuestions, YesNo: true, OnYes: StepMoreQuestionsDetails, OnNo: StepPhoneNumber,
			Prompt: "Остались ли у Вас ещё вопросы?"},
		{ID: StepMoreQuestionsDetails, Field: domain.FieldMoreQuestionsDetails, Rule: elaborate, Next: StepPhoneNumber,
			Prompt: "Опишите ваши вопросы:"},
		{ID: StepPhoneNumber, Field: domain.FieldPhoneNumber, Rule: validate.Phone, Next: StepDone,
			Prompt: phonePrompt},
	}
}

// SurveyGraph builds the intake questionnaire graph.
func SurveyGraph() (*Graph, error) {
	return NewGraph(StepFullName, SurveySteps())
}
