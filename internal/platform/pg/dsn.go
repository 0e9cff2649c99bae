package pg

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateDSN проверяет, что строка подключения - URL PostgreSQL с базой данных.
func ValidateDSN(dsn string) error {
	u, err := url.Parse(dsn)
	if err != nil {
		return fmt.Errorf("invalid DSN format: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("host is required")
	}
	if strings.Trim(u.Path, "/") == "" {
		return fmt.Errorf("database is required")
	}
	return nil
}

// RedactDSN скрывает пароль в строке подключения для логов.
// Некорректная строка заменяется целиком.
func RedactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "[REDACTED]"
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
