package domain

// Field names one collected answer. The string value doubles as the JSON key
// in the record store and the CSV column key in exports.
type Field string

const (
	FieldFullName             Field = "full_name"
	FieldMilitaryUnit         Field = "military_unit"
	FieldCompanyBattalion     Field = "company_battalion"
	FieldPersonalNumber       Field = "personal_number"
	FieldRoom                 Field = "room"
	FieldMilitaryID           Field = "military_id"
	FieldLostMilitaryIDReason Field = "lost_military_id_reason"
	FieldVeteranCertificate   Field = "veteran_certificate"
	FieldSalary               Field = "salary"
	FieldSalaryProblems       Field = "salary_problems"
	FieldContractPayments     Field = "contract_payments"
	FieldContractProblems     Field = "contract_problems"
	FieldMoreQuestions        Field = "more_questions"
	FieldMoreQuestionsDetails Field = "more_questions_details"
	FieldPhoneNumber          Field = "phone_number"
)

// Answers holds every field a conversation can collect. Elaboration fields
// stay empty when their fork was not taken.
type Answers struct {
	FullName             string `json:"full_name"`
	MilitaryUnit         string `json:"military_unit"`
	CompanyBattalion     string `json:"company_battalion"`
	PersonalNumber       string `json:"personal_number"`
	Room                 string `json:"room"`
	MilitaryID           bool   `json:"military_id"`
	LostMilitaryIDReason string `json:"lost_military_id_reason,omitempty"`
	VeteranCertificate   bool   `json:"veteran_certificate"`
	Salary               bool   `json:"salary"`
	SalaryProblems       string `json:"salary_problems,omitempty"`
	ContractPayments     bool   `json:"contract_payments"`
	ContractProblems     string `json:"contract_problems,omitempty"`
	MoreQuestions        bool   `json:"more_questions"`
	MoreQuestionsDetails string `json:"more_questions_details,omitempty"`
	PhoneNumber          string `json:"phone_number"`
}

// SetText stores a text answer. It reports false if f is not a text field.
func (a *Answers) SetText(f Field, v string) bool {
	switch f {
	case FieldFullName:
		a.FullName = v
	case FieldMilitaryUnit:
		a.MilitaryUnit = v
	case FieldCompanyBattalion:
		a.CompanyBattalion = v
	case FieldPersonalNumber:
		a.PersonalNumber = v
	case FieldRoom:
		a.Room = v
	case FieldLostMilitaryIDReason:
		a.LostMilitaryIDReason = v
	case FieldSalaryProblems:
		a.SalaryProblems = v
	case FieldContractProblems:
		a.ContractProblems = v
	case FieldMoreQuestionsDetails:
		a.MoreQuestionsDetails = v
	case FieldPhoneNumber:
		a.PhoneNumber = v
	default:
		return false
	}
	return true
}

// SetFlag stores a yes/no answer. It reports false if f is not a boolean field.
func (a *Answers) SetFlag(f Field, v bool) bool {
	switch f {
	case FieldMilitaryID:
		a.MilitaryID = v
	case FieldVeteranCertificate:
		a.VeteranCertificate = v
	case FieldSalary:
		a.Salary = v
	case FieldContractPayments:
		a.ContractPayments = v
	case FieldMoreQuestions:
		a.MoreQuestions = v
	default:
		return false
	}
	return true
}
