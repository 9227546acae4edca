// Package presenter renders exchange results for chat output.
package presenter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/larriantoniy/tg_license_bot/internal/domain"
)

const expireLayout = "2006-01-02 15:04:05 MST"

// RenderDeviceInfo builds the fixed-format device block.
func RenderDeviceInfo(info domain.SystemInfo, expireMillis int64) string {
	lines := []string{
		"┏━━━━━━━━━━ Device Info ━━━━━━━━━━┓",
		fmt.Sprintf("┃ Android ID     : %s", info.AndroidID),
		fmt.Sprintf("┃ Manufacturer   : %s", info.Manufacturer),
		fmt.Sprintf("┃ Model          : %s", info.Model),
		fmt.Sprintf("┃ Product        : %s", info.Product),
		fmt.Sprintf("┃ Expire         : %s", FormatExpire(expireMillis, time.Local)),
		"┗━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━┛",
	}
	return strings.Join(lines, "\n")
}

// FormatExpire converts epoch milliseconds to a timestamp in loc. Instants
// that do not fit a four-digit year are rendered as the raw number.
func FormatExpire(ms int64, loc *time.Location) string {
	t := time.UnixMilli(ms).In(loc)
	if y := t.Year(); y < 1 || y > 9999 {
		return strconv.FormatInt(ms, 10)
	}
	return t.Format(expireLayout)
}
