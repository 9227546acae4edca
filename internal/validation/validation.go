// Package validation holds the input checks of the exchange flow.
package validation

import (
	"encoding/base64"
	"strconv"
	"strings"
)

var urlSafe = strings.NewReplacer("-", "+", "_", "/")

// LooksLikeEncodedDeviceID is a permissive syntactic check: the trimmed input
// must use only the URL-safe base64 alphabet and decode once padded to a
// multiple of 4. The decoded bytes are not inspected.
func LooksLikeEncodedDeviceID(input string) bool {
	s := strings.TrimSpace(input)
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isBase64Rune(r) {
			return false
		}
	}

	s = urlSafe.Replace(s)
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	// паддинг внутри строки завершает данные, хвост после него не читаем.
	// Строка из одного паддинга ("=", "====") данных не несёт и не проходит
	if i := strings.IndexByte(s, '='); i >= 0 {
		s = s[:(i/4+1)*4]
	}

	_, err := base64.StdEncoding.DecodeString(s)
	return err == nil
}

// ParsePositiveBoundedInt parses the trimmed input as a base-10 integer and
// accepts it only when 1 <= n <= max.
func ParsePositiveBoundedInt(input string, max int) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n <= 0 || n > max {
		return 0, false
	}
	return n, true
}

func isBase64Rune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '+', r == '/', r == '=', r == '_', r == '-':
		return true
	}
	return false
}
