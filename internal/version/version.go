// Пакет version — сведения о сборке, общие для сервера и клиента записи.
// Значения задаются через -ldflags "-X .../internal/version.Version=...".
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Full возвращает строку версии для вывода --version.
func Full(binary string) string {
	return fmt.Sprintf("%s %s, commit %s, built at %s", binary, Version, Commit, Date)
}
