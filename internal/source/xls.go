// internal/source/xls.go
package source

import (
	"bytes"
	"fmt"

	"datasync-service/internal/syncerr"

	"github.com/extrame/xls"
)

// oleSignature opens every Compound File Binary document, which is how
// Excel 97-2003 stores a BIFF workbook.
var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

func isLegacyXLS(buf []byte) bool {
	return bytes.HasPrefix(buf, oleSignature)
}

// readXLS returns the sheet names and the cell text of the first sheet of a
// BIFF workbook. The decoder panics on some malformed files.
func readXLS(buf []byte) (sheets []string, rows [][]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			sheets, rows = nil, nil
			err = &syncerr.ParseError{Message: "unable to open the legacy .xls workbook", Err: fmt.Errorf("%v", r)}
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(buf), "utf-8")
	if err != nil {
		return nil, nil, &syncerr.ParseError{Message: "unable to open the legacy .xls workbook", Err: err}
	}
	for i := 0; i < wb.NumSheets(); i++ {
		if sheet := wb.GetSheet(i); sheet != nil {
			sheets = append(sheets, sheet.Name)
		}
	}
	first := wb.GetSheet(0)
	if first == nil || len(sheets) == 0 {
		return nil, nil, &syncerr.ParseError{Message: "the Excel file has no worksheet"}
	}

	rows = make([][]string, 0, int(first.MaxRow)+1)
	for i := 0; i <= int(first.MaxRow); i++ {
		row := first.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			cells[j] = row.Col(j)
		}
		rows = append(rows, cells)
	}
	return sheets, rows, nil
}
