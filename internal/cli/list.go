package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// NewListCmd — вывод списка записей сервера.
func NewListCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Список записей на сервере",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := deps.api().List(cmd.Context())
			if err != nil {
				deps.Logger.Error("Не удалось получить список записей", slog.String("error", err.Error()))
				return err
			}
			printRecords(cmd.OutOrStdout(), records)
			return nil
		},
	}
}
