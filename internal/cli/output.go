package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/bigkaa/goaudiostore/internal/domain/model"
)

// printRecords выводит список записей таблицей.
func printRecords(w io.Writer, records []model.AudioRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "Записей нет")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tФАЙЛ\tСОЗДАНА\tURL")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			r.ID, r.FileName, r.CreatedAt.Local().Format(time.DateTime), r.AudioURL)
	}
	_ = tw.Flush()
}
