package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goaudiostore/internal/domain/recorder"
)

// NewRecordCmd — запись клипа с микрофона и, по флагу, сохранение на сервер.
func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var (
		save   bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Записать клип с микрофона",
		Long: "Записывает звук с микрофона в течение --duration (Ctrl+C останавливает раньше).\n" +
			"С флагом --save клип загружается на сервер, с -o сохраняется в файл.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			duration, err := cmd.Flags().GetDuration("duration")
			if err != nil {
				return err
			}

			api := deps.api()
			session := recorder.NewSession(deps.NewCapturer(deps.Config.FFmpeg), api, duration, deps.Logger)
			out := cmd.OutOrStdout()

			// Устройство живёт дольше контекста команды: Ctrl+C останавливает
			// запись через Stop, а не убивает процесс захвата.
			if err := session.Start(context.WithoutCancel(cmd.Context())); err != nil {
				deps.Logger.Error("Не удалось начать запись", slog.String("error", err.Error()))
				switch {
				case errors.Is(err, recorder.ErrPermissionDenied):
					return fmt.Errorf("нет доступа к микрофону: %w", err)
				case errors.Is(err, recorder.ErrDeviceUnavailable):
					return fmt.Errorf("микрофон недоступен: %w", err)
				}
				return err
			}
			fmt.Fprintf(out, "Идёт запись (%s)...\n", session.Duration())

			clip, err := session.Wait(cmd.Context())
			if err != nil {
				// Прерывание: останавливаем запись и сохраняем то, что успели захватить.
				// Если таймер сработал раньше, клип уже собран.
				if clip, err = session.Stop(); err != nil {
					if clip = session.Clip(); clip == nil {
						return err
					}
				}
			}
			for _, tr := range session.History() {
				deps.Logger.Debug("Переход состояния записи",
					slog.String("from", string(tr.From)),
					slog.String("to", string(tr.To)),
					slog.String("event", string(tr.Event)),
				)
			}
			fmt.Fprintf(out, "Записано %d байт за %s\n", len(clip.Data), clip.Duration.Round(10*time.Millisecond))

			if output != "" {
				if err := os.WriteFile(output, clip.Data, 0o644); err != nil {
					deps.Logger.Error("Не удалось записать клип в файл",
						slog.String("path", output),
						slog.String("error", err.Error()),
					)
					return err
				}
				fmt.Fprintf(out, "Клип сохранён в %s\n", output)
			}

			if !save {
				if output == "" {
					fmt.Fprintln(out, "Клип не сохранён: укажите --save или -o")
				}
				return nil
			}

			rec, err := session.Save(context.WithoutCancel(cmd.Context()))
			if err != nil {
				deps.Logger.Error("Не удалось сохранить запись на сервере", slog.String("error", err.Error()))
				return err
			}
			fmt.Fprintf(out, "Аудиозапись сохранена: %s (%s)\n", rec.FileName, rec.ID)
			printRecords(out, session.Records())
			return nil
		},
	}

	cmd.Flags().Duration("duration", deps.Config.Duration, "длительность записи")
	cmd.Flags().BoolVar(&save, "save", false, "загрузить клип на сервер")
	cmd.Flags().StringVarP(&output, "output", "o", "", "сохранить клип в файл")
	return cmd
}
