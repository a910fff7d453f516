package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goaudiostore/internal/client"
)

// NewDownloadCmd — скачивание файла записи.
func NewDownloadCmd(deps *Dependencies) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Скачать файл записи",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			dir := "."
			if output != "" {
				dir = filepath.Dir(output)
			}
			tmp, err := os.CreateTemp(dir, ".download-*.tmp")
			if err != nil {
				return fmt.Errorf("ошибка создания временного файла: %w", err)
			}
			tmpPath := tmp.Name()
			defer os.Remove(tmpPath)

			fileName, n, err := deps.api().Download(cmd.Context(), id, tmp)
			if closeErr := tmp.Close(); err == nil && closeErr != nil {
				err = fmt.Errorf("ошибка записи файла: %w", closeErr)
			}
			if client.IsNotFound(err) {
				return fmt.Errorf("запись %s не найдена или её файл отсутствует", id)
			}
			if err != nil {
				deps.Logger.Error("Не удалось скачать запись",
					slog.String("id", id),
					slog.String("error", err.Error()),
				)
				return err
			}

			target := output
			if target == "" {
				target = filepath.Base(fileName)
				if fileName == "" || target == "." || target == string(filepath.Separator) {
					target = id
				}
			}
			if err := os.Rename(tmpPath, target); err != nil {
				return fmt.Errorf("ошибка сохранения файла %s: %w", target, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Сохранено %s (%d байт)\n", target, n)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "путь для сохранения (по умолчанию имя файла с сервера)")
	return cmd
}
