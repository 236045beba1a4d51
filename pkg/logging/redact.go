package logging

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// Redacted replaces secret values in log output.
const Redacted = "[REDACTED]"

var (
	sensitiveKeys = []string{"private_key", "privatekey", "password", "secret", "token"}

	// Matches "PrivateKey = <value>" as it appears in rendered tunnel configs.
	privateKeyLine = regexp.MustCompile(`(?i)(PrivateKey\s*=\s*)\S+`)
)

// RedactHook scrubs secret material from entries before they are formatted.
type RedactHook struct{}

// NewRedactHook returns a hook that masks sensitive fields and inline private keys.
func NewRedactHook() *RedactHook {
	return &RedactHook{}
}

func (h *RedactHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *RedactHook) Fire(entry *logrus.Entry) error {
	for k, v := range entry.Data {
		if isSensitiveKey(k) {
			entry.Data[k] = Redacted
			continue
		}
		if s, ok := v.(string); ok {
			entry.Data[k] = RedactText(s)
		}
		if err, ok := v.(error); ok && err != nil {
			if scrubbed := RedactText(err.Error()); scrubbed != err.Error() {
				entry.Data[k] = fmt.Errorf("%s", scrubbed)
			}
		}
	}
	entry.Message = RedactText(entry.Message)
	return nil
}

// RedactText masks any "PrivateKey = ..." assignment inside s.
func RedactText(s string) string {
	if !strings.Contains(strings.ToLower(s), "privatekey") {
		return s
	}
	return privateKeyLine.ReplaceAllString(s, "${1}"+Redacted)
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
