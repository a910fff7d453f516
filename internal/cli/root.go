// Пакет cli — команды клиента записи audio-recorder (cobra).
package cli

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goaudiostore/internal/clientconfig"
	"github.com/bigkaa/goaudiostore/internal/domain/recorder"
	"github.com/bigkaa/goaudiostore/internal/version"
)

// API — операции сервера, используемые командами.
type API interface {
	recorder.Backend
	Delete(ctx context.Context, id string) error
	Download(ctx context.Context, id string, w io.Writer) (string, int64, error)
}

// Dependencies — зависимости команд. Клиент и устройство создаются
// после разбора флагов, поэтому передаются фабриками.
type Dependencies struct {
	Config      *clientconfig.Config
	Logger      *slog.Logger
	NewAPI      func(serverURL string, timeout time.Duration) API
	NewCapturer func(cfg clientconfig.FFmpegConfig) recorder.Capturer
}

func (d *Dependencies) api() API {
	return d.NewAPI(d.Config.ServerURL, d.Config.RequestTimeout)
}

// NewRootCmd собирает корневую команду.
func NewRootCmd(deps *Dependencies) *cobra.Command {
	var serverURL string

	rootCmd := &cobra.Command{
		Use:           "audio-recorder",
		Short:         "Запись аудио с микрофона и управление записями на сервере",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if serverURL != "" {
				deps.Config.ServerURL = serverURL
			}
			return deps.Config.Validate()
		},
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full("audio-recorder") + "\n")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "адрес сервера (по умолчанию из конфигурации)")

	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewListCmd(deps))
	rootCmd.AddCommand(NewDownloadCmd(deps))
	rootCmd.AddCommand(NewDeleteCmd(deps))

	return rootCmd
}
