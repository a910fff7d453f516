package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goaudiostore/internal/client"
)

// NewDeleteCmd — удаление записи и её файла на сервере.
func NewDeleteCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Удалить запись",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := deps.api()
			id := args[0]

			if err := api.Delete(cmd.Context(), id); err != nil {
				if client.IsNotFound(err) {
					return fmt.Errorf("запись %s не найдена", id)
				}
				deps.Logger.Error("Не удалось удалить запись",
					slog.String("id", id),
					slog.String("error", err.Error()),
				)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Запись %s удалена\n", id)

			return refreshAndPrint(cmd, deps, api)
		},
	}
}

// refreshAndPrint обновляет список после изменяющей команды.
// Ошибка обновления логируется, но не отменяет результат команды.
func refreshAndPrint(cmd *cobra.Command, deps *Dependencies, api API) error {
	records, err := api.List(cmd.Context())
	if err != nil {
		deps.Logger.Warn("Не удалось обновить список записей", slog.String("error", err.Error()))
		return nil
	}
	printRecords(cmd.OutOrStdout(), records)
	return nil
}
