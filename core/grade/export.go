package grade

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	CSVContentType  = "text/csv"
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	gradebookSheet = "Gradebook"
)

var (
	ErrUnknownFormat = errors.New("unknown export format")

	exportHeader = []string{"student_id", "name", "username", "percentage", "letter_grade", "weighted"}
)

// ExportFilename names a gradebook export, e.g. "MATH101-gradebook-20240131.xlsx".
func ExportFilename(gb Gradebook, format string) string {
	code := strings.ReplaceAll(gb.Course.Code, " ", "_")
	if code == "" {
		code = "course"
	}
	return fmt.Sprintf("%s-gradebook-%s.%s", code, gb.GeneratedAt.Format("20060102"), format)
}

// ContentType returns the MIME type of an export format.
func ContentType(format string) (string, error) {
	switch format {
	case FormatCSV:
		return CSVContentType, nil
	case FormatXLSX:
		return XLSXContentType, nil
	default:
		return "", ErrUnknownFormat
	}
}

// Export writes the gradebook to w in the given format.
func Export(w io.Writer, gb Gradebook, format string) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, gb)
	case FormatXLSX:
		return WriteXLSX(w, gb)
	default:
		return ErrUnknownFormat
	}
}

func WriteCSV(w io.Writer, gb Gradebook) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return errors.Wrap(err, "writing header")
	}
	for _, row := range gb.Rows {
		record := []string{
			row.StudentID,
			row.Name,
			row.Username,
			strconv.FormatFloat(row.Percentage, 'f', 1, 64),
			row.LetterGrade,
			strconv.FormatBool(row.IsWeighted),
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrap(err, "writing row")
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteXLSX(w io.Writer, gb Gradebook) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cErr := f.Close(); err == nil {
			err = cErr
		}
	}()

	if err = f.SetSheetName("Sheet1", gradebookSheet); err != nil {
		return errors.Wrap(err, "naming sheet")
	}

	header := make([]interface{}, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err = f.SetSheetRow(gradebookSheet, "A1", &header); err != nil {
		return errors.Wrap(err, "writing header")
	}

	for i, row := range gb.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{row.StudentID, row.Name, row.Username, row.Percentage, row.LetterGrade, row.IsWeighted}
		if err = f.SetSheetRow(gradebookSheet, cell, &values); err != nil {
			return errors.Wrapf(err, "writing row %d", i+2)
		}
	}

	_, err = f.WriteTo(w)
	return errors.Wrap(err, "writing workbook")
}
