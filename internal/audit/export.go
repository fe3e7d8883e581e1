package audit

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"
)

// WriteCSV encodes timeline rows with a header line.
func WriteCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"at", "user_id", "action", "table", "description", "ip"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		user := ""
		if row.UserID != nil {
			user = strconv.FormatInt(*row.UserID, 10)
		}
		record := []string{row.At.UTC().Format(time.RFC3339), user, row.Action, row.Table, row.Description, row.IP}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
