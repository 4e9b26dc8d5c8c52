package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ashureev/intake-bot/internal/domain"
)

// utf8BOM lets spreadsheet software detect the encoding of exported files.
const utf8BOM = "\ufeff"

// ExportColumns is the fixed column order of CSV exports. The first column is
// a synthetic 1-based row index.
var ExportColumns = []string{
	"№",
	"seq",
	"id",
	"timestamp",
	"user_id",
	"username",
	string(domain.FieldFullName),
	string(domain.FieldMilitaryUnit),
	string(domain.FieldCompanyBattalion),
	string(domain.FieldPersonalNumber),
	string(domain.FieldRoom),
	string(domain.FieldPhoneNumber),
	string(domain.FieldMilitaryID),
	string(domain.FieldLostMilitaryIDReason),
	string(domain.FieldVeteranCertificate),
	string(domain.FieldSalary),
	string(domain.FieldSalaryProblems),
	string(domain.FieldContractPayments),
	string(domain.FieldContractProblems),
	string(domain.FieldMoreQuestions),
	string(domain.FieldMoreQuestionsDetails),
}

// WriteCSV renders subs as CSV with ExportColumns as header.
func WriteCSV(w io.Writer, subs []domain.Submission) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, s := range subs {
		if err := cw.Write(exportRow(i+1, s)); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func exportRow(index int, s domain.Submission) []string {
	a := s.Answers
	return []string{
		strconv.Itoa(index),
		strconv.FormatInt(s.Seq, 10),
		s.ID,
		s.SubmittedAt.Format(time.RFC3339),
		s.UserID,
		s.Username,
		a.FullName,
		a.MilitaryUnit,
		a.CompanyBattalion,
		a.PersonalNumber,
		a.Room,
		a.PhoneNumber,
		yesNo(a.MilitaryID),
		a.LostMilitaryIDReason,
		yesNo(a.VeteranCertificate),
		yesNo(a.Salary),
		a.SalaryProblems,
		yesNo(a.ContractPayments),
		a.ContractProblems,
		yesNo(a.MoreQuestions),
		a.MoreQuestionsDetails,
	}
}

func yesNo(v bool) string {
	if v {
		return "да"
	}
	return "нет"
}

// ExportFileName returns the download name for an export taken at t.
func ExportFileName(t time.Time) string {
	return "export_" + t.Format("20060102_150405") + ".csv"
}
